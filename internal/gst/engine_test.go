package gst

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpilot/finpilot/internal/platform/httpx"
	"github.com/finpilot/finpilot/internal/shared"
)

func sampleItems() []LineItemDraft {
	return []LineItemDraft{
		{Description: "Consulting", HSNSAC: "998311", Quantity: 10, Unit: UnitHrs, Rate: 1500, GSTRate: Rate18},
		{Description: "Laptop stand", HSNSAC: "8473", Quantity: 3, Unit: UnitPcs, Rate: 799.99, GSTRate: Rate12},
		{Description: "Rice", HSNSAC: "1006", Quantity: 25, Unit: UnitKg, Rate: 62.4, GSTRate: Rate5},
		{Description: "Books", HSNSAC: "4901", Quantity: 2, Unit: UnitNos, Rate: 350, GSTRate: Rate0},
	}
}

func TestComputeTotalsIntraState(t *testing.T) {
	totals := ComputeTotals([]LineItemDraft{
		{Description: "Design", HSNSAC: "998391", Quantity: 2, Unit: UnitHrs, Rate: 1000, GSTRate: Rate18},
	}, "27", "27")

	require.Len(t, totals.Items, 1)
	line := totals.Items[0]
	assert.Equal(t, SupplyIntraState, totals.SupplyType)
	assert.Equal(t, 9.0, line.CGSTRate)
	assert.Equal(t, 9.0, line.SGSTRate)
	assert.Equal(t, 0.0, line.IGSTRate)
	assert.Equal(t, 2000.0, line.TaxableValue)
	assert.Equal(t, 180.0, line.CGSTAmount)
	assert.Equal(t, 180.0, line.SGSTAmount)
	assert.Equal(t, 0.0, line.IGSTAmount)
	assert.Equal(t, 2360.0, line.TotalAmount)

	assert.Equal(t, 2000.0, totals.TotalTaxableValue)
	assert.Equal(t, 360.0, totals.TotalTax)
	assert.Equal(t, 2360.0, totals.GrandTotal)
	assert.Equal(t, "Two Thousand Three Hundred Sixty Rupees Only", totals.AmountInWords)
}

func TestComputeTotalsInterState(t *testing.T) {
	totals := ComputeTotals([]LineItemDraft{
		{Description: "Design", HSNSAC: "998391", Quantity: 2, Unit: UnitHrs, Rate: 1000, GSTRate: Rate18},
	}, "27", "07")

	line := totals.Items[0]
	assert.Equal(t, SupplyInterState, totals.SupplyType)
	assert.Equal(t, 18.0, line.IGSTRate)
	assert.Equal(t, 0.0, line.CGSTRate)
	assert.Equal(t, 0.0, line.SGSTRate)
	assert.Equal(t, 360.0, line.IGSTAmount)
	assert.Equal(t, 0.0, line.CGSTAmount)
	assert.Equal(t, 0.0, line.SGSTAmount)
	assert.Equal(t, 360.0, totals.TotalIGST)
	assert.Equal(t, 0.0, totals.TotalCGST+totals.TotalSGST)
}

func TestComputeTotalsOnlyOneTaxTypeActive(t *testing.T) {
	for _, tc := range []struct {
		name     string
		supplier StateCode
		place    StateCode
	}{
		{name: "intra", supplier: "29", place: "29"},
		{name: "inter", supplier: "29", place: "33"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			totals := ComputeTotals(sampleItems(), tc.supplier, tc.place)
			for _, line := range totals.Items {
				split := line.CGSTAmount + line.SGSTAmount
				if tc.supplier == tc.place {
					assert.Zero(t, line.IGSTAmount)
					assert.Zero(t, line.IGSTRate)
				} else {
					assert.Zero(t, split)
					assert.Zero(t, line.CGSTRate+line.SGSTRate)
				}
			}
		})
	}
}

func TestComputeTotalsSumConsistency(t *testing.T) {
	for _, place := range []StateCode{"27", "07"} {
		totals := ComputeTotals(sampleItems(), "27", place)
		assert.InDelta(t, totals.TotalTaxableValue+totals.TotalCGST+totals.TotalSGST+totals.TotalIGST, totals.GrandTotal, 1e-9)
		assert.InDelta(t, totals.TotalCGST+totals.TotalSGST+totals.TotalIGST, totals.TotalTax, 1e-9)
	}
}

func TestComputeTotalsIsDeterministic(t *testing.T) {
	first := ComputeTotals(sampleItems(), "27", "07")
	second := ComputeTotals(sampleItems(), "27", "07")
	assert.Equal(t, first, second)
}

func TestComputeTotalsRoundsAtOutputOnly(t *testing.T) {
	// Three lines of 0.333 each: per line tax rounds to 0.06 but the
	// aggregate is taken from the unrounded values.
	items := []LineItemDraft{
		{Description: "a", HSNSAC: "1", Quantity: 1, Rate: 0.333, GSTRate: Rate18},
		{Description: "b", HSNSAC: "1", Quantity: 1, Rate: 0.333, GSTRate: Rate18},
		{Description: "c", HSNSAC: "1", Quantity: 1, Rate: 0.333, GSTRate: Rate18},
	}
	totals := ComputeTotals(items, "27", "07")
	assert.Equal(t, 0.06, totals.Items[0].IGSTAmount)
	assert.Equal(t, 1.0, totals.TotalTaxableValue)
	assert.Equal(t, 0.18, totals.TotalIGST)
}

func TestComputeTotalsLineAmountsMayNotAddUp(t *testing.T) {
	line := LineItemDraft{Description: "bolt", HSNSAC: "7318", Quantity: 3, Rate: 0.335, GSTRate: Rate5}
	totals := ComputeTotals([]LineItemDraft{line, line, line}, "27", "27")

	var lineCGST []float64
	for _, item := range totals.Items {
		lineCGST = append(lineCGST, item.CGSTAmount)
	}
	assert.Equal(t, 0.09, Sum(lineCGST...))
	assert.Equal(t, 0.08, totals.TotalCGST)
	assert.Equal(t, 0.08, totals.TotalSGST)
	assert.Equal(t, Sum(totals.TotalTaxableValue, totals.TotalTax), totals.GrandTotal)
}

func TestValidateDraft(t *testing.T) {
	err := ValidateDraft([]LineItemDraft{
		{Description: "x", HSNSAC: "1", Quantity: -1, Rate: -2, GSTRate: 7, Unit: "Dozen"},
	}, "25", "99")
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrValidation))

	var verrs shared.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	for _, field := range []string{
		"supplierState", "placeOfSupply",
		"items[0].quantity", "items[0].rate", "items[0].gstRate", "items[0].unit",
	} {
		assert.True(t, verrs.Has(field), "expected error for %s", field)
	}
}

func TestValidateDraftRequiresItems(t *testing.T) {
	_, err := Calculate(nil, "27", "27")
	var verrs shared.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.True(t, verrs.Has("items"))
}

func TestCalculateValidDraft(t *testing.T) {
	totals, err := Calculate(sampleItems(), "27", "27")
	require.NoError(t, err)
	assert.Len(t, totals.Items, 4)
	assert.Equal(t, SupplyIntraState, totals.SupplyType)
}
