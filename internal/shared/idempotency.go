package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore remembers which resource a client supplied key produced.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// Lookup returns the resource recorded for key, "" when the key is unseen.
func (s *IdempotencyStore) Lookup(ctx context.Context, key, module string) (string, error) {
	if s == nil || key == "" {
		return "", nil
	}
	var resourceID string
	err := s.pool.QueryRow(ctx, `SELECT resource_id FROM idempotency_keys WHERE key=$1 AND module=$2`, key, module).Scan(&resourceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return resourceID, err
}

// Remember records key for module. A second insert of the same key yields
// ErrIdempotencyConflict.
func (s *IdempotencyStore) Remember(ctx context.Context, key, module, resourceID string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, resource_id, created_at) VALUES ($1, $2, $3, $4)`, key, module, resourceID, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
