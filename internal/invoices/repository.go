package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/platform/db"
)

const numberConstraint = "invoices_user_number_key"

// StatusTotal aggregates a user's invoices sharing a status.
type StatusTotal struct {
	Status     Status
	Count      int
	GrandTotal float64
	TotalTax   float64
}

// OverdueMark identifies an invoice flipped to overdue by the sweep.
type OverdueMark struct {
	ID     uuid.UUID
	UserID string
}

// Repository provides PostgreSQL backed persistence for invoices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, user_id, number, financial_year, invoice_date, due_date, supplier, buyer,
	supplier_state, place_of_supply, supply_type, items,
	total_taxable_value::float8, total_cgst::float8, total_sgst::float8, total_igst::float8,
	total_tax::float8, grand_total::float8, amount_in_words, status, notes, terms, pdf_key,
	paid_at, created_at, updated_at`

// LatestNumber returns the highest generated number of userID in fy.
func (r *Repository) LatestNumber(ctx context.Context, userID, fy string) (string, error) {
	var number string
	err := r.pool.QueryRow(ctx, `SELECT number FROM invoices
		WHERE user_id = $1 AND financial_year = $2 AND number ~ $3
		ORDER BY length(number) DESC, number DESC
		LIMIT 1`, userID, fy, numberPattern(fy)).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("invoices: latest number: %w", err)
	}
	return number, nil
}

// Insert stores a new invoice. A duplicate number yields ErrNumberConflict.
func (r *Repository) Insert(ctx context.Context, inv *Invoice) error {
	supplier, buyer, items, err := encodeJSON(inv)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO invoices (
			id, user_id, number, financial_year, invoice_date, due_date, supplier, buyer,
			supplier_state, place_of_supply, supply_type, items,
			total_taxable_value, total_cgst, total_sgst, total_igst, total_tax, grand_total,
			amount_in_words, status, notes, terms, pdf_key, paid_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26)`,
		inv.ID, inv.UserID, inv.Number, inv.FinancialYear, dateParam(inv.InvoiceDate), dateParam(inv.DueDate),
		supplier, buyer, string(inv.SupplierState), string(inv.PlaceOfSupply), string(inv.SupplyType), items,
		inv.TotalTaxableValue, inv.TotalCGST, inv.TotalSGST, inv.TotalIGST, inv.TotalTax, inv.GrandTotal,
		inv.AmountInWords, string(inv.Status), inv.Notes, inv.Terms, inv.PDFKey, inv.PaidAt, inv.CreatedAt, inv.UpdatedAt,
	)
	if db.IsUniqueViolation(err, numberConstraint) {
		return ErrNumberConflict
	}
	if err != nil {
		return fmt.Errorf("invoices: insert: %w", err)
	}
	return nil
}

// Get loads an invoice owned by userID.
func (r *Repository) Get(ctx context.Context, userID string, id uuid.UUID) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND user_id = $2`, id, userID)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inv, err
}

// List returns invoices of userID, newest first.
func (r *Repository) List(ctx context.Context, userID string, filter ListFilter) ([]Invoice, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{userID}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE %s
		ORDER BY invoice_date DESC, created_at DESC
		LIMIT $%d OFFSET $%d`, invoiceColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("invoices: list: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// Update rewrites the mutable columns of an invoice.
func (r *Repository) Update(ctx context.Context, inv *Invoice) error {
	supplier, buyer, items, err := encodeJSON(inv)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET
			invoice_date = $3, due_date = $4, supplier = $5, buyer = $6, supplier_state = $7,
			place_of_supply = $8, supply_type = $9, items = $10, total_taxable_value = $11,
			total_cgst = $12, total_sgst = $13, total_igst = $14, total_tax = $15, grand_total = $16,
			amount_in_words = $17, status = $18, notes = $19, terms = $20, pdf_key = $21,
			paid_at = $22, updated_at = $23
		WHERE id = $1 AND user_id = $2`,
		inv.ID, inv.UserID, dateParam(inv.InvoiceDate), dateParam(inv.DueDate), supplier, buyer,
		string(inv.SupplierState), string(inv.PlaceOfSupply), string(inv.SupplyType), items,
		inv.TotalTaxableValue, inv.TotalCGST, inv.TotalSGST, inv.TotalIGST, inv.TotalTax, inv.GrandTotal,
		inv.AmountInWords, string(inv.Status), inv.Notes, inv.Terms, inv.PDFKey, inv.PaidAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("invoices: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPDFKey records where the rendered PDF of an invoice is stored.
func (r *Repository) SetPDFKey(ctx context.Context, userID string, id uuid.UUID, key string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET pdf_key = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`, id, userID, key)
	if err != nil {
		return fmt.Errorf("invoices: set pdf key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an invoice owned by userID.
func (r *Repository) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("invoices: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StatusTotals aggregates the invoices of userID per status.
func (r *Repository) StatusTotals(ctx context.Context, userID string) ([]StatusTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(grand_total), 0)::float8, COALESCE(SUM(total_tax), 0)::float8
		FROM invoices WHERE user_id = $1 GROUP BY status`, userID)
	if err != nil {
		return nil, fmt.Errorf("invoices: status totals: %w", err)
	}
	defer rows.Close()
	var out []StatusTotal
	for rows.Next() {
		var (
			st     StatusTotal
			status string
		)
		if err := rows.Scan(&status, &st.Count, &st.GrandTotal, &st.TotalTax); err != nil {
			return nil, err
		}
		st.Status = Status(status)
		out = append(out, st)
	}
	return out, rows.Err()
}

// MarkOverdue flips sent invoices whose due date is before asOf to overdue.
func (r *Repository) MarkOverdue(ctx context.Context, asOf time.Time) ([]OverdueMark, error) {
	rows, err := r.pool.Query(ctx, `UPDATE invoices SET status = 'overdue', updated_at = NOW()
		WHERE status = 'sent' AND due_date IS NOT NULL AND due_date < $1
		RETURNING id, user_id`, dateParam(asOf))
	if err != nil {
		return nil, fmt.Errorf("invoices: mark overdue: %w", err)
	}
	defer rows.Close()
	var out []OverdueMark
	for rows.Next() {
		var m OverdueMark
		if err := rows.Scan(&m.ID, &m.UserID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func encodeJSON(inv *Invoice) (supplier, buyer, items []byte, err error) {
	if supplier, err = json.Marshal(inv.Supplier); err != nil {
		return nil, nil, nil, fmt.Errorf("invoices: encode supplier: %w", err)
	}
	if buyer, err = json.Marshal(inv.Buyer); err != nil {
		return nil, nil, nil, fmt.Errorf("invoices: encode buyer: %w", err)
	}
	if items, err = json.Marshal(inv.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("invoices: encode items: %w", err)
	}
	return supplier, buyer, items, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv                                  Invoice
		dueDate                              pgtype.Date
		supplier, buyer, items               []byte
		supplierState, placeOfSupply, supply string
		status                               string
	)
	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.Number, &inv.FinancialYear, &inv.InvoiceDate, &dueDate, &supplier, &buyer,
		&supplierState, &placeOfSupply, &supply, &items,
		&inv.TotalTaxableValue, &inv.TotalCGST, &inv.TotalSGST, &inv.TotalIGST,
		&inv.TotalTax, &inv.GrandTotal, &inv.AmountInWords, &status, &inv.Notes, &inv.Terms, &inv.PDFKey,
		&inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		inv.DueDate = dueDate.Time
	}
	inv.SupplierState = gst.StateCode(supplierState)
	inv.PlaceOfSupply = gst.StateCode(placeOfSupply)
	inv.SupplyType = gst.SupplyType(supply)
	inv.Status = Status(status)
	if err := json.Unmarshal(supplier, &inv.Supplier); err != nil {
		return nil, fmt.Errorf("invoices: decode supplier: %w", err)
	}
	if err := json.Unmarshal(buyer, &inv.Buyer); err != nil {
		return nil, fmt.Errorf("invoices: decode buyer: %w", err)
	}
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return nil, fmt.Errorf("invoices: decode items: %w", err)
	}
	return &inv, nil
}

func dateParam(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}
