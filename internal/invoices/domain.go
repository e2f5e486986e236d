// Package invoices manages GST invoices: drafting, numbering per financial
// year, persistence, status workflow and PDF delivery.
package invoices

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/platform/httpx"
)

// Status enumerates invoice lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusDraft:   {StatusSent, StatusCancelled},
	StatusSent:    {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue: {StatusPaid, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an invoice in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Editable reports whether the invoice content may still change.
func (s Status) Editable() bool {
	return s != StatusPaid && s != StatusCancelled
}

var (
	// ErrNotFound is returned for missing or foreign invoices.
	ErrNotFound = fmt.Errorf("invoices: %w", httpx.ErrNotFound)
	// ErrNumberConflict signals that (user, number) is already taken.
	ErrNumberConflict = fmt.Errorf("invoices: invoice number already in use: %w", httpx.ErrConflict)
	// ErrInvalidTransition rejects a status change outside the workflow.
	ErrInvalidTransition = fmt.Errorf("invoices: status transition not allowed: %w", httpx.ErrConflict)
	// ErrNotEditable rejects edits of paid or cancelled invoices.
	ErrNotEditable = fmt.Errorf("invoices: invoice can no longer be edited: %w", httpx.ErrConflict)
)

// Party is the supplier or buyer of an invoice.
type Party struct {
	Name      string        `json:"name"`
	GSTIN     string        `json:"gstin,omitempty"`
	PAN       string        `json:"pan,omitempty"`
	Address   string        `json:"address,omitempty"`
	StateCode gst.StateCode `json:"stateCode"`
	Email     string        `json:"email,omitempty"`
}

// Invoice is a persisted GST invoice. The embedded totals are derived from
// Items, SupplierState and PlaceOfSupply and are never set independently.
type Invoice struct {
	ID            uuid.UUID     `json:"id"`
	UserID        string        `json:"userId"`
	Number        string        `json:"invoiceNumber"`
	FinancialYear string        `json:"financialYear"`
	InvoiceDate   time.Time     `json:"invoiceDate"`
	DueDate       time.Time     `json:"dueDate,omitzero"`
	Supplier      Party         `json:"supplier"`
	Buyer         Party         `json:"buyer"`
	SupplierState gst.StateCode `json:"supplierState"`
	PlaceOfSupply gst.StateCode `json:"placeOfSupply"`
	gst.Totals
	Status    Status     `json:"status"`
	Notes     string     `json:"notes,omitempty"`
	Terms     string     `json:"terms,omitempty"`
	PDFKey    string     `json:"pdfKey,omitempty"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsOverdue reports whether the invoice is unpaid past its due date.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.Status == StatusPaid || inv.Status == StatusCancelled || inv.DueDate.IsZero() {
		return false
	}
	return now.After(inv.DueDate)
}

// Recompute derives supply type and every aggregate from the current items
// and state codes.
func (inv *Invoice) Recompute() {
	drafts := make([]gst.LineItemDraft, 0, len(inv.Items))
	for _, item := range inv.Items {
		drafts = append(drafts, item.LineItemDraft)
	}
	inv.Totals = gst.ComputeTotals(drafts, inv.SupplierState, inv.PlaceOfSupply)
}

// View decorates an invoice with fields derived at read time.
type View struct {
	*Invoice
	IsOverdue bool `json:"isOverdue"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// StatusSummary aggregates invoices sharing a status.
type StatusSummary struct {
	Count      int     `json:"count"`
	GrandTotal float64 `json:"grandTotal"`
}

// Summary is the dashboard roll-up of a user's invoices.
type Summary struct {
	ByStatus     map[Status]StatusSummary `json:"byStatus"`
	TotalBilled  float64                  `json:"totalBilled"`
	TotalTax     float64                  `json:"totalTax"`
	Outstanding  float64                  `json:"outstanding"`
	InvoiceCount int                      `json:"invoiceCount"`
}

// FileName is the download name of an invoice PDF.
func FileName(inv *Invoice) string {
	return strings.NewReplacer("/", "-", " ", "_").Replace(inv.Number) + ".pdf"
}
