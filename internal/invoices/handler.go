package invoices

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finpilot/finpilot/internal/platform/httpx"
	"github.com/finpilot/finpilot/internal/shared"
)

// PDFRenderer turns an invoice into a PDF document.
type PDFRenderer interface {
	Render(ctx context.Context, inv *Invoice) ([]byte, error)
}

// Handler exposes invoice endpoints as JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pdf     PDFRenderer
}

// NewHandler builds Handler instance. pdf may be nil when rendering is disabled.
func NewHandler(logger *slog.Logger, service *Service, pdf PDFRenderer) *Handler {
	return &Handler{logger: logger, service: service, pdf: pdf}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/calculate", h.calculate)
	r.Get("/next-number", h.nextNumber)
	r.Get("/summary", h.summary)
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.delete)
		r.Patch("/status", h.updateStatus)
		r.Get("/pdf", h.renderPDF)
		r.Post("/send", h.send)
	})
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	var in CalculateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	totals, err := h.service.Calculate(in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) nextNumber(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var asOf time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			var errs shared.ValidationErrors
			errs.Add("date", "must be a date formatted YYYY-MM-DD")
			httpx.RespondError(w, errs)
			return
		}
		asOf = t
	}
	number, err := h.service.NextNumber(r.Context(), userID, asOf)
	if err != nil {
		h.fail(w, "next invoice number", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"invoiceNumber": number})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), userID)
	if err != nil {
		h.fail(w, "invoice summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	items, err := h.service.List(r.Context(), userID, ListFilter{Status: Status(q.Get("status")), Limit: limit, Offset: offset})
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	now := h.service.Now()
	views := make([]View, 0, len(items))
	for i := range items {
		views = append(views, View{Invoice: &items[i], IsOverdue: items[i].IsOverdue(now)})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": views, "limit": limit, "offset": offset})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in InvoiceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Create(r.Context(), userID, in, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.fail(w, "create invoice", err)
		return
	}
	h.respond(w, http.StatusCreated, inv)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	h.respond(w, http.StatusOK, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in InvoiceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Update(r.Context(), userID, id, in)
	if err != nil {
		h.fail(w, "update invoice", err)
		return
	}
	h.respond(w, http.StatusOK, inv)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in StatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := validate.Struct(in); err != nil {
		httpx.RespondError(w, structErrors(err))
		return
	}
	inv, err := h.service.UpdateStatus(r.Context(), userID, id, in.Status)
	if err != nil {
		h.fail(w, "update invoice status", err)
		return
	}
	h.respond(w, http.StatusOK, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, "delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) renderPDF(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "PDF Unavailable", "pdf rendering is not configured")
		return
	}
	inv, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, "get invoice for pdf", err)
		return
	}
	doc, err := h.pdf.Render(r.Context(), inv)
	if err != nil {
		h.logger.Error("render invoice pdf", slog.String("invoice_id", id.String()), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "PDF Render Failed", "")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+FileName(inv)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in SendInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if err := validate.Struct(in); err != nil {
		httpx.RespondError(w, structErrors(err))
		return
	}
	if err := h.service.RequestSend(r.Context(), userID, id, in.To); err != nil {
		h.fail(w, "send invoice", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) respond(w http.ResponseWriter, status int, inv *Invoice) {
	httpx.JSON(w, status, View{Invoice: inv, IsOverdue: inv.IsOverdue(h.service.Now())})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return "", uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return "", uuid.Nil, false
	}
	return userID, id, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := shared.UserFromContext(r.Context())
	if userID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
