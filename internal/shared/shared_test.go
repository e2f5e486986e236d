package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpilot/finpilot/internal/platform/httpx"
)

func TestKeyedMutexBlocksSameKey(t *testing.T) {
	m := NewKeyedMutex()
	release, err := m.Acquire(context.Background(), "a", 0)
	require.NoError(t, err)

	other, err := m.Acquire(context.Background(), "b", 0)
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "a", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	again, err := m.Acquire(context.Background(), "a", 0)
	require.NoError(t, err)
	again()
}

func TestKeyedMutexForgetsIdleKeys(t *testing.T) {
	m := NewKeyedMutex()
	for _, key := range []string{"user-a:2025-26", "user-b:2025-26", "user-a:2026-27"} {
		release, err := m.Acquire(context.Background(), key, 0)
		require.NoError(t, err)
		release()
	}
	assert.Empty(t, m.locks)

	release, err := m.Acquire(context.Background(), "busy", 0)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "busy", 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, m.locks, 1)

	release()
	assert.Empty(t, m.locks)
}

func TestKeyedMutexHandsOverToWaiter(t *testing.T) {
	m := NewKeyedMutex()
	release, err := m.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		next, err := m.Acquire(context.Background(), "k", 0)
		if err == nil {
			acquired <- next
		}
	}()
	release()

	select {
	case next := <-acquired:
		next()
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the key")
	}
	assert.Empty(t, m.locks)
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	require.NoError(t, errs.Err())

	errs.Add("name", "required")
	var nested ValidationErrors
	nested.Add("gstin", "invalid")
	errs.Merge("supplier", nested)

	err := errs.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrValidation))
	assert.True(t, errs.Has("supplier.gstin"))
	assert.Equal(t, "invalid", errs.Fields()["supplier.gstin"])
	assert.Contains(t, err.Error(), "name: required")
}

func TestUserContext(t *testing.T) {
	ctx := ContextWithUser(context.Background(), "user-1")
	assert.Equal(t, "user-1", UserFromContext(ctx))
	assert.Equal(t, "", UserFromContext(context.Background()))
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, at, FixedClock(at).Now())
	assert.Equal(t, InvoiceSequenceLockKey("u", "2025-26"), "invoices:seq:u:2025-26:lock")
}
