package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finpilot/finpilot/internal/platform/httpx"
	"github.com/finpilot/finpilot/internal/shared"
)

// TimelineService is the contract the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, actorID string, f TimelineFilters) (Result, error)
	Export(ctx context.Context, actorID string, f TimelineFilters) ([]TimelineRow, error)
}

// Handler serves the audit trail over HTTP.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleTimeline)
	r.Get("/export.csv", h.handleExport)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	userID := shared.UserFromContext(r.Context())
	if userID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), userID, filters)
	if err != nil {
		h.fail(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	userID := shared.UserFromContext(r.Context())
	if userID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), userID, filters)
	if err != nil {
		h.fail(w, "export audit timeline", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	if err := WriteCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// WriteCSV encodes rows with a header line.
func WriteCSV(w io.Writer, rows []TimelineRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"at", "action", "entity", "entity_id", "meta"}); err != nil {
		return err
	}
	for _, row := range rows {
		meta := ""
		if len(row.Meta) > 0 {
			raw, err := json.Marshal(row.Meta)
			if err != nil {
				return err
			}
			meta = string(raw)
		}
		if err := cw.Write([]string{row.At.UTC().Format(time.RFC3339), row.Action, row.Entity, row.EntityID, meta}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	var (
		f    TimelineFilters
		errs shared.ValidationErrors
	)
	f.Entity = strings.TrimSpace(q.Get("entity"))
	f.EntityID = strings.TrimSpace(q.Get("entityId"))
	f.Action = strings.TrimSpace(q.Get("action"))
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			errs.Add("from", "must be a date in YYYY-MM-DD format")
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			errs.Add("to", "must be a date in YYYY-MM-DD format")
		} else {
			f.To = t.AddDate(0, 0, 1)
		}
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &f.Page}, {"pageSize", &f.PageSize}} {
		name, dst := p.name, p.dst
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs.Add(name, "must be a positive integer")
			continue
		}
		*dst = n
	}
	return f, errs.Err()
}
