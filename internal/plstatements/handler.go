package plstatements

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finpilot/finpilot/internal/platform/httpx"
	"github.com/finpilot/finpilot/internal/shared"
)

// Handler exposes statement endpoints as JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers statement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}/archive", h.archive)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID := shared.UserFromContext(r.Context())
	if userID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	items, err := h.service.List(r.Context(), userID, ListFilter{
		Period:          Period(q.Get("period")),
		IncludeArchived: q.Get("archived") == "true",
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		h.fail(w, "list pl statements", err)
		return
	}
	if items == nil {
		items = []Statement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"statements": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	userID := shared.UserFromContext(r.Context())
	if userID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		h.fail(w, "create pl statement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, st)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := target(w, r)
	if !ok {
		return
	}
	st, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, "get pl statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := target(w, r)
	if !ok {
		return
	}
	st, err := h.service.Archive(r.Context(), userID, id)
	if err != nil {
		h.fail(w, "archive pl statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := target(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, "delete pl statement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func target(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	userID := shared.UserFromContext(r.Context())
	if userID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return "", uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return "", uuid.Nil, false
	}
	return userID, id, true
}
