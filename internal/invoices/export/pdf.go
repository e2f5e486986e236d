// Package export renders invoices as printable HTML and PDF.
package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/invoices"
	"github.com/finpilot/finpilot/web"
)

// HTMLRenderer converts HTML to PDF.
type HTMLRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// PDFExporter renders invoices through the embedded template and a
// Gotenberg compatible renderer.
type PDFExporter struct {
	renderer  HTMLRenderer
	templates *template.Template
	now       func() time.Time
}

var indian = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR prints an amount with Indian digit grouping, e.g. ₹1,23,456.00.
func FormatINR(amount float64) string {
	return "₹" + indian.Sprintf("%.2f", gst.Round2(amount))
}

// NewPDFExporter creates a PDFExporter with parsed templates.
func NewPDFExporter(renderer HTMLRenderer) (*PDFExporter, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
		"formatQty": func(qty float64) string {
			return strconv.FormatFloat(qty, 'f', -1, 64)
		},
		"inr": FormatINR,
		"pct": func(rate float64) string {
			return strconv.FormatFloat(gst.Round2(rate), 'f', -1, 64) + "%"
		},
		"inc":       func(i int) int { return i + 1 },
		"stateName": gst.StateName,
	}
	tpl, err := template.New("invoice_pdf.html").Funcs(funcMap).ParseFS(
		web.Templates, "templates/invoices/invoice_pdf.html",
	)
	if err != nil {
		return nil, fmt.Errorf("parse invoice template: %w", err)
	}
	return &PDFExporter{renderer: renderer, templates: tpl, now: time.Now}, nil
}

type pdfView struct {
	Invoice       *invoices.Invoice
	InterState    bool
	PlaceOfSupply string
	GeneratedAt   string
}

// HTML renders the printable invoice document.
func (e *PDFExporter) HTML(inv *invoices.Invoice) (string, error) {
	view := pdfView{
		Invoice:       inv,
		InterState:    inv.SupplyType == gst.SupplyInterState,
		PlaceOfSupply: fmt.Sprintf("%s (%s)", gst.StateName(inv.PlaceOfSupply), inv.PlaceOfSupply),
		GeneratedAt:   e.now().Format("02 Jan 2006 15:04"),
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, "invoice_pdf.html", view); err != nil {
		return "", fmt.Errorf("render invoice html: %w", err)
	}
	return buf.String(), nil
}

// Render produces the invoice PDF.
func (e *PDFExporter) Render(ctx context.Context, inv *invoices.Invoice) ([]byte, error) {
	if e.renderer == nil {
		return nil, fmt.Errorf("export: pdf renderer not configured")
	}
	html, err := e.HTML(inv)
	if err != nil {
		return nil, err
	}
	return e.renderer.RenderHTML(ctx, html)
}
