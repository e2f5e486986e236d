package gst

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/finpilot/finpilot/internal/platform/httpx"
)

// Handler serves GST reference data.
type Handler struct{}

// NewHandler builds Handler instance.
func NewHandler() *Handler {
	return &Handler{}
}

// MountRoutes registers reference routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/states", h.states)
	r.Get("/rates", h.rates)
	r.Get("/validate-gstin", h.validateGSTIN)
}

func (h *Handler) states(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"states": States()})
}

func (h *Handler) rates(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"rates": Rates, "units": Units})
}

type gstinResult struct {
	GSTIN     string    `json:"gstin"`
	Valid     bool      `json:"valid"`
	StateCode StateCode `json:"stateCode,omitempty"`
	StateName string    `json:"stateName,omitempty"`
	PAN       string    `json:"pan,omitempty"`
}

func (h *Handler) validateGSTIN(w http.ResponseWriter, r *http.Request) {
	gstin := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("gstin")))
	if gstin == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "gstin query parameter is required")
		return
	}
	res := gstinResult{GSTIN: gstin}
	if code, ok := GSTINState(gstin); ok && ValidState(code) {
		res.Valid = true
		res.StateCode = code
		res.StateName = StateName(code)
		res.PAN, _ = GSTINPAN(gstin)
	}
	httpx.JSON(w, http.StatusOK, res)
}
