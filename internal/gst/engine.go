// Package gst computes Indian GST for invoice drafts: per line CGST/SGST or
// IGST, invoice aggregates and the amount in words.
package gst

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/finpilot/finpilot/internal/shared"
)

// LineItemDraft is a line as entered by the user.
type LineItemDraft struct {
	Description string  `json:"description" yaml:"description" validate:"required"`
	HSNSAC      string  `json:"hsnSac" yaml:"hsnSac" validate:"required"`
	Quantity    float64 `json:"quantity" yaml:"quantity"`
	Unit        Unit    `json:"unit" yaml:"unit"`
	Rate        float64 `json:"rate" yaml:"rate"`
	GSTRate     Rate    `json:"gstRate" yaml:"gstRate"`
}

// LineItem is a draft line with its derived tax fields.
type LineItem struct {
	LineItemDraft
	TaxableValue float64 `json:"taxableValue"`
	CGSTRate     float64 `json:"cgstRate"`
	SGSTRate     float64 `json:"sgstRate"`
	IGSTRate     float64 `json:"igstRate"`
	CGSTAmount   float64 `json:"cgstAmount"`
	SGSTAmount   float64 `json:"sgstAmount"`
	IGSTAmount   float64 `json:"igstAmount"`
	TotalAmount  float64 `json:"totalAmount"`
}

// Totals is the result of a tax computation over a whole draft. Aggregates
// are taken from unrounded line values, so the rounded per line amounts in
// Items may not add up to them by a paisa or two.
type Totals struct {
	SupplyType        SupplyType `json:"supplyType"`
	Items             []LineItem `json:"items"`
	TotalTaxableValue float64    `json:"totalTaxableValue"`
	TotalCGST         float64    `json:"totalCGST"`
	TotalSGST         float64    `json:"totalSGST"`
	TotalIGST         float64    `json:"totalIGST"`
	TotalTax          float64    `json:"totalTax"`
	GrandTotal        float64    `json:"grandTotal"`
	AmountInWords     string     `json:"amountInWords"`
}

// ComputeTotals derives every tax field of a draft. It does not validate its
// input; call ValidateDraft first or use Calculate.
//
// Amounts are carried unrounded through the computation and rounded to two
// decimals on output. The grand total is the sum of the rounded aggregates so
// that the printed figures always add up.
func ComputeTotals(items []LineItemDraft, supplierState, placeOfSupply StateCode) Totals {
	supply := SupplyTypeOf(supplierState, placeOfSupply)
	interState := supply == SupplyInterState

	out := Totals{SupplyType: supply, Items: make([]LineItem, 0, len(items))}
	var taxable, cgst, sgst, igst float64
	for _, draft := range items {
		line := computeLine(draft, interState)
		taxable += draft.Quantity * draft.Rate
		if interState {
			igst += draft.Quantity * draft.Rate * float64(draft.GSTRate) / 100
		} else {
			half := draft.Quantity * draft.Rate * (float64(draft.GSTRate) / 2) / 100
			cgst += half
			sgst += half
		}
		out.Items = append(out.Items, line)
	}

	out.TotalTaxableValue = Round2(taxable)
	out.TotalCGST = Round2(cgst)
	out.TotalSGST = Round2(sgst)
	out.TotalIGST = Round2(igst)
	out.TotalTax = Sum(out.TotalCGST, out.TotalSGST, out.TotalIGST)
	out.GrandTotal = Sum(out.TotalTaxableValue, out.TotalTax)
	out.AmountInWords = AmountInWords(out.GrandTotal)
	return out
}

func computeLine(draft LineItemDraft, interState bool) LineItem {
	line := LineItem{LineItemDraft: draft}
	taxable := draft.Quantity * draft.Rate
	rate := float64(draft.GSTRate)
	if interState {
		line.IGSTRate = rate
		line.IGSTAmount = Round2(taxable * rate / 100)
	} else {
		line.CGSTRate = rate / 2
		line.SGSTRate = rate / 2
		half := Round2(taxable * (rate / 2) / 100)
		line.CGSTAmount = half
		line.SGSTAmount = half
	}
	line.TaxableValue = Round2(taxable)
	line.TotalAmount = Sum(line.TaxableValue, line.CGSTAmount, line.SGSTAmount, line.IGSTAmount)
	return line
}

// Sum adds money amounts exactly and rounds the result to paise.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

// ValidateDraft checks the inputs of a tax computation.
func ValidateDraft(items []LineItemDraft, supplierState, placeOfSupply StateCode) error {
	var errs shared.ValidationErrors
	if !ValidState(supplierState) {
		errs.Add("supplierState", fmt.Sprintf("unknown state code %q", supplierState))
	}
	if !ValidState(placeOfSupply) {
		errs.Add("placeOfSupply", fmt.Sprintf("unknown state code %q", placeOfSupply))
	}
	if len(items) == 0 {
		errs.Add("items", "at least one line item is required")
	}
	for i, item := range items {
		errs.Merge(fmt.Sprintf("items[%d]", i), ValidateLine(item))
	}
	return errs.Err()
}

// ValidateLine checks a single draft line.
func ValidateLine(item LineItemDraft) shared.ValidationErrors {
	var errs shared.ValidationErrors
	if item.Quantity < 0 {
		errs.Add("quantity", "must not be negative")
	}
	if item.Rate < 0 {
		errs.Add("rate", "must not be negative")
	}
	if !ValidRate(item.GSTRate) {
		errs.Add("gstRate", fmt.Sprintf("must be one of 0, 5, 12, 18, 28; got %v", float64(item.GSTRate)))
	}
	if item.Unit != "" && !ValidUnit(item.Unit) {
		errs.Add("unit", fmt.Sprintf("unsupported unit %q", item.Unit))
	}
	return errs
}

// Calculate validates the draft and computes its totals.
func Calculate(items []LineItemDraft, supplierState, placeOfSupply StateCode) (Totals, error) {
	if err := ValidateDraft(items, supplierState, placeOfSupply); err != nil {
		return Totals{}, err
	}
	return ComputeTotals(items, supplierState, placeOfSupply), nil
}
