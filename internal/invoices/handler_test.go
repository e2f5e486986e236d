package invoices

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpilot/finpilot/internal/shared"
)

type stubPDF struct{}

func (stubPDF) Render(_ context.Context, inv *Invoice) ([]byte, error) {
	return []byte("%PDF-" + inv.Number), nil
}

func newTestRouter(t *testing.T) (http.Handler, serviceFixture) {
	t.Helper()
	f := newFixture(t, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, stubPDF{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user := req.Header.Get("X-Test-User"); user != "" {
				req = req.WithContext(shared.ContextWithUser(req.Context(), user))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/invoices", h.MountRoutes)
	return r, f
}

func doJSON(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateAndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/invoices", "user-a", validInput())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "INV/2025-26/001", created["invoiceNumber"])
	assert.Equal(t, "inter-state", created["supplyType"])
	assert.Equal(t, 18820.0, created["grandTotal"])
	assert.Equal(t, false, created["isOverdue"])

	id := created["id"].(string)
	rr = doJSON(t, router, http.MethodGet, "/invoices/"+id, "user-a", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/invoices/"+id, "user-b", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/invoices/not-a-uuid", "user-a", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerRejectsInvalidDraftWithFieldErrors(t *testing.T) {
	router, _ := newTestRouter(t)
	in := validInput()
	in.Supplier.GSTIN = "27AAAAA0000A125"
	in.Items[0].Description = ""

	rr := doJSON(t, router, http.MethodPost, "/invoices", "user-a", in)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var problem struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Contains(t, problem.Errors, "supplier.gstin")
	assert.Contains(t, problem.Errors, "items[0].description")
}

func TestHandlerRequiresUser(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := doJSON(t, router, http.MethodGet, "/invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlerCalculate(t *testing.T) {
	router, _ := newTestRouter(t)
	in := CalculateInput{SupplierState: "27", PlaceOfSupply: "27", Items: validInput().Items}

	rr := doJSON(t, router, http.MethodPost, "/invoices/calculate", "user-a", in)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var totals map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &totals))
	assert.Equal(t, "intra-state", totals["supplyType"])
	assert.Equal(t, 1410.0, totals["totalCGST"])
	assert.Equal(t, 0.0, totals["totalIGST"])

	in.SupplierState = "25"
	rr = doJSON(t, router, http.MethodPost, "/invoices/calculate", "user-a", in)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerStatusNextNumberAndPDF(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/invoices/next-number?date=2026-04-01", "user-a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"invoiceNumber":"INV/2026-27/001"}`, rr.Body.String())

	rr = doJSON(t, router, http.MethodPost, "/invoices", "user-a", validInput())
	require.Equal(t, http.StatusCreated, rr.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	id := created["id"].(string)

	rr = doJSON(t, router, http.MethodPatch, "/invoices/"+id+"/status", "user-a", StatusInput{Status: StatusPaid})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, router, http.MethodPatch, "/invoices/"+id+"/status", "user-a", StatusInput{Status: StatusSent})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/invoices/"+id+"/pdf", "user-a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "INV-2025-26-001.pdf")
	assert.Equal(t, "%PDF-INV/2025-26/001", rr.Body.String())

	rr = doJSON(t, router, http.MethodPost, "/invoices/"+id+"/send", "user-a", SendInput{To: "cfo@example.com"})
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/invoices/summary", "user-a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"invoiceCount":1`)

	rr = doJSON(t, router, http.MethodDelete, "/invoices/"+id, "user-a", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
