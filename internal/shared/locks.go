package shared

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InvoiceSequenceLockKey builds lock keys serialising invoice numbering for
// one user within one financial year.
func InvoiceSequenceLockKey(userID, financialYear string) string {
	return fmt.Sprintf("invoices:seq:%s:%s:lock", userID, financialYear)
}

// KeyedMutex is an in-process lock per key. It satisfies the same Acquire
// contract as the Redis locker and serves single-instance deployments and
// tests. Keys are forgotten once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedSlot
}

type keyedSlot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex constructs an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedSlot)}
}

func (m *KeyedMutex) join(key string) *keyedSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.locks[key]
	if !ok {
		slot = &keyedSlot{ch: make(chan struct{}, 1)}
		m.locks[key] = slot
	}
	slot.refs++
	return slot
}

func (m *KeyedMutex) leave(key string, slot *keyedSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(m.locks, key)
	}
}

// Acquire waits for key until ctx is done. The ttl is ignored; the lock is
// held until release is called.
func (m *KeyedMutex) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	slot := m.join(key)
	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				m.leave(key, slot)
			})
		}, nil
	case <-ctx.Done():
		m.leave(key, slot)
		return nil, ctx.Err()
	}
}
