package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func whereClause(actorID string, f TimelineFilters) (string, []any) {
	conds := []string{"actor_id = $1"}
	args := []any{actorID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}
	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Count returns the number of entries matching the filters.
func (r *Repository) Count(ctx context.Context, actorID string, f TimelineFilters) (int, error) {
	where, args := whereClause(actorID, f)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return total, nil
}

// List returns entries newest first.
func (r *Repository) List(ctx context.Context, actorID string, f TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	where, args := whereClause(actorID, f)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT occurred_at, action, entity, entity_id, meta FROM audit_logs%s
ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.At, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
