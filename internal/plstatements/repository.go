package plstatements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for statements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const statementColumns = `id, user_id, period, start_date, end_date, revenue, expenses,
	net_profit::float8, profit_margin::float8, insights, status, source_file, created_at, updated_at`

// Insert stores a new statement.
func (r *Repository) Insert(ctx context.Context, st *Statement) error {
	revenue, expenses, insights, err := encodeJSON(st)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO pl_statements (
			id, user_id, period, start_date, end_date, revenue, expenses, net_profit, profit_margin,
			insights, status, source_file, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		st.ID, st.UserID, string(st.Period), st.StartDate, st.EndDate, revenue, expenses, st.NetProfit,
		st.ProfitMargin, insights, string(st.Status), st.SourceFile, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("plstatements: insert: %w", err)
	}
	return nil
}

// Get loads a statement owned by userID.
func (r *Repository) Get(ctx context.Context, userID string, id uuid.UUID) (*Statement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+statementColumns+` FROM pl_statements WHERE id = $1 AND user_id = $2`, id, userID)
	st, err := scanStatement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

// List returns statements of userID, most recent period first.
func (r *Repository) List(ctx context.Context, userID string, filter ListFilter) ([]Statement, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	if filter.Period != "" {
		args = append(args, string(filter.Period))
		where = append(where, fmt.Sprintf("period = $%d", len(args)))
	}
	if !filter.IncludeArchived {
		where = append(where, "status <> 'archived'")
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM pl_statements WHERE %s
		ORDER BY start_date DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		statementColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("plstatements: list: %w", err)
	}
	defer rows.Close()
	var out []Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// UpdateStatus changes the status of a statement.
func (r *Repository) UpdateStatus(ctx context.Context, userID string, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE pl_statements SET status = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`, id, userID, string(status))
	if err != nil {
		return fmt.Errorf("plstatements: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a statement owned by userID.
func (r *Repository) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pl_statements WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("plstatements: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeJSON(st *Statement) (revenue, expenses, insights []byte, err error) {
	if revenue, err = json.Marshal(st.Revenue); err != nil {
		return nil, nil, nil, fmt.Errorf("plstatements: encode revenue: %w", err)
	}
	if expenses, err = json.Marshal(st.Expenses); err != nil {
		return nil, nil, nil, fmt.Errorf("plstatements: encode expenses: %w", err)
	}
	if st.Insights == nil {
		st.Insights = []Insight{}
	}
	if insights, err = json.Marshal(st.Insights); err != nil {
		return nil, nil, nil, fmt.Errorf("plstatements: encode insights: %w", err)
	}
	return revenue, expenses, insights, nil
}

func scanStatement(row pgx.Row) (*Statement, error) {
	var (
		st                          Statement
		period, status              string
		revenue, expenses, insights []byte
	)
	err := row.Scan(&st.ID, &st.UserID, &period, &st.StartDate, &st.EndDate, &revenue, &expenses,
		&st.NetProfit, &st.ProfitMargin, &insights, &status, &st.SourceFile, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	st.Period = Period(period)
	st.Status = Status(status)
	if err := json.Unmarshal(revenue, &st.Revenue); err != nil {
		return nil, fmt.Errorf("plstatements: decode revenue: %w", err)
	}
	if err := json.Unmarshal(expenses, &st.Expenses); err != nil {
		return nil, fmt.Errorf("plstatements: decode expenses: %w", err)
	}
	if err := json.Unmarshal(insights, &st.Insights); err != nil {
		return nil, fmt.Errorf("plstatements: decode insights: %w", err)
	}
	return &st, nil
}
