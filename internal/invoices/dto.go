package invoices

import (
	"time"

	"github.com/finpilot/finpilot/internal/gst"
)

const dateLayout = "2006-01-02"

// PartyInput is the submitted shape of a supplier or buyer.
type PartyInput struct {
	Name      string        `json:"name" validate:"required,max=200"`
	GSTIN     string        `json:"gstin" validate:"omitempty,gstin"`
	PAN       string        `json:"pan" validate:"omitempty,pan"`
	Address   string        `json:"address" validate:"max=500"`
	StateCode gst.StateCode `json:"stateCode" validate:"required"`
	Email     string        `json:"email" validate:"omitempty,email"`
}

func (p PartyInput) party() Party {
	return Party{Name: p.Name, GSTIN: p.GSTIN, PAN: p.PAN, Address: p.Address, StateCode: p.StateCode, Email: p.Email}
}

// InvoiceInput is a submitted invoice draft. SupplierState and PlaceOfSupply
// default to the supplier's and buyer's state codes.
type InvoiceInput struct {
	Number        string              `json:"invoiceNumber" validate:"omitempty,max=50"`
	InvoiceDate   string              `json:"invoiceDate" validate:"omitempty,datetime=2006-01-02"`
	DueDate       string              `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Supplier      PartyInput          `json:"supplier"`
	Buyer         PartyInput          `json:"buyer"`
	SupplierState gst.StateCode       `json:"supplierState"`
	PlaceOfSupply gst.StateCode       `json:"placeOfSupply"`
	Items         []gst.LineItemDraft `json:"items" validate:"required,min=1,max=200,dive"`
	Notes         string              `json:"notes" validate:"max=2000"`
	Terms         string              `json:"terms" validate:"max=2000"`
}

// CalculateInput is a totals preview request.
type CalculateInput struct {
	SupplierState gst.StateCode       `json:"supplierState"`
	PlaceOfSupply gst.StateCode       `json:"placeOfSupply"`
	Items         []gst.LineItemDraft `json:"items"`
}

// StatusInput requests a status transition.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=draft sent paid overdue cancelled"`
}

// SendInput requests e-mail delivery of an invoice.
type SendInput struct {
	To string `json:"to" validate:"omitempty,email"`
}

// draft is a validated and normalised InvoiceInput.
type draft struct {
	InvoiceInput
	invoiceDate time.Time
	dueDate     time.Time
}

// apply copies the draft onto inv and recomputes every derived field.
func (d draft) apply(inv *Invoice) {
	inv.InvoiceDate = d.invoiceDate
	inv.DueDate = d.dueDate
	inv.Supplier = d.Supplier.party()
	inv.Buyer = d.Buyer.party()
	inv.SupplierState = d.SupplierState
	inv.PlaceOfSupply = d.PlaceOfSupply
	inv.Notes = d.Notes
	inv.Terms = d.Terms
	inv.Totals = gst.ComputeTotals(d.Items, d.SupplierState, d.PlaceOfSupply)
}
