package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpilot/finpilot/internal/auth"
	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/plstatements"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTotalsFromYAML(t *testing.T) {
	draft := `
supplierState: "27"
placeOfSupply: "27"
items:
  - description: Consulting
    hsnSac: "998311"
    quantity: 2
    rate: 1000
    gstRate: 18
`
	out, err := run(t, draft, "totals", "-")
	require.NoError(t, err)

	var totals gst.Totals
	require.NoError(t, json.Unmarshal([]byte(out), &totals))
	assert.Equal(t, gst.SupplyIntraState, totals.SupplyType)
	assert.Equal(t, 2000.0, totals.TotalTaxableValue)
	assert.Equal(t, 180.0, totals.TotalCGST)
	assert.Equal(t, 180.0, totals.TotalSGST)
	assert.Equal(t, 2360.0, totals.GrandTotal)
	assert.Equal(t, gst.UnitNos, totals.Items[0].Unit)
	assert.Equal(t, "Two Thousand Three Hundred Sixty Rupees Only", totals.AmountInWords)
}

func TestTotalsRejectsInvalidDraft(t *testing.T) {
	_, err := run(t, `{"supplierState":"27","placeOfSupply":"99","items":[]}`, "totals", "-")
	assert.Error(t, err)
}

func TestWords(t *testing.T) {
	out, err := run(t, "", "words", "1234.5")
	require.NoError(t, err)
	assert.Equal(t, "One Thousand Two Hundred Thirty Four Rupees and Fifty Paise Only\n", out)

	_, err = run(t, "", "words", "abc")
	assert.Error(t, err)
}

func TestGSTIN(t *testing.T) {
	out, err := run(t, "", "gstin", "27AAAAA0000A1Z5")
	require.NoError(t, err)
	var report gstinReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, gst.StateCode("27"), report.StateCode)
	assert.Equal(t, "Maharashtra", report.StateName)
	assert.Equal(t, "AAAAA0000A", report.PAN)

	_, err = run(t, "", "gstin", "27AAAAA0000A125")
	assert.Error(t, err)
}

func TestFY(t *testing.T) {
	out, err := run(t, "", "fy", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, "2025-26\n", out)

	out, err = run(t, "", "fy", "2026-04-01", "--seq", "7")
	require.NoError(t, err)
	assert.Equal(t, "2026-27 INV/2026-27/007\n", out)
}

func TestTokenUsesJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	out, err := run(t, "", "token", "--user", "user-a")
	require.NoError(t, err)

	issuer, err := auth.NewIssuer("cli-secret", 0)
	require.NoError(t, err)
	claims, err := issuer.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user-a", claims.UserID)

	t.Setenv("JWT_SECRET", "")
	_, err = run(t, "", "token", "--user", "user-a")
	assert.Error(t, err)
}

func TestPLCheck(t *testing.T) {
	statement := `
period: Monthly
startDate: "2025-04-01"
endDate: "2025-04-30"
revenue:
  total: 1000
  breakdown:
    - {category: Sales, amount: 995}
expenses:
  total: 400
  breakdown:
    - {category: Rent, amount: 300}
`
	out, err := run(t, statement, "plcheck", "-")
	require.Error(t, err)
	assert.ErrorIs(t, err, plstatements.ErrBreakdownMismatch)

	var report plReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Valid)
	assert.Equal(t, 600.0, report.NetProfit)
	assert.Equal(t, 60.0, report.ProfitMargin)
	assert.Contains(t, report.Error, "expenses.breakdown")
	assert.NotContains(t, report.Error, "revenue.breakdown")
}
