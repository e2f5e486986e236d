package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/finpilot/finpilot/internal/shared"
)

// Locker serialises critical sections across goroutines or processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SequenceStore reads the highest generated number of a user in a financial
// year. It returns "" when the user has none.
type SequenceStore interface {
	LatestNumber(ctx context.Context, userID, financialYear string) (string, error)
}

// Sequencer hands out invoice numbers per user and financial year.
type Sequencer struct {
	store   SequenceStore
	locker  Locker
	clock   shared.Clock
	lockTTL time.Duration
}

// NewSequencer wires a Sequencer. A nil locker falls back to an in-process
// keyed mutex and a nil clock to the system clock.
func NewSequencer(store SequenceStore, locker Locker, clock shared.Clock, lockTTL time.Duration) *Sequencer {
	if locker == nil {
		locker = shared.NewKeyedMutex()
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Sequencer{store: store, locker: locker, clock: clock, lockTTL: lockTTL}
}

// NextNumber returns the number the next invoice dated asOf would receive.
// It reserves nothing; use Reserve when the number is about to be stored.
func (s *Sequencer) NextNumber(ctx context.Context, userID string, asOf time.Time) (string, error) {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	fy := FinancialYear(asOf)
	latest, err := s.store.LatestNumber(ctx, userID, fy)
	if err != nil {
		return "", fmt.Errorf("invoices: latest number: %w", err)
	}
	seq, ok := ParseSequence(latest, fy)
	if !ok {
		seq = 0
	}
	return FormatNumber(fy, seq+1), nil
}

// Reserve computes the next number under the (user, financial year) lock and
// hands it to insert before releasing the lock. Whatever insert returns is
// passed through, so a unique violation surfaces to the caller for retry.
func (s *Sequencer) Reserve(ctx context.Context, userID string, asOf time.Time, insert func(ctx context.Context, number, financialYear string) error) (string, error) {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	fy := FinancialYear(asOf)
	release, err := s.locker.Acquire(ctx, shared.InvoiceSequenceLockKey(userID, fy), s.lockTTL)
	if err != nil {
		return "", fmt.Errorf("invoices: acquire sequence lock: %w", err)
	}
	defer release()

	number, err := s.NextNumber(ctx, userID, asOf)
	if err != nil {
		return "", err
	}
	if err := insert(ctx, number, fy); err != nil {
		return "", err
	}
	return number, nil
}
