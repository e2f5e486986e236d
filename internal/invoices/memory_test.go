package invoices

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finpilot/finpilot/internal/shared"
)

// memoryStore enforces the (user, number) uniqueness of the invoices table.
type memoryStore struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]Invoice
	inserts  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{invoices: make(map[uuid.UUID]Invoice)}
}

func (m *memoryStore) LatestNumber(_ context.Context, userID, fy string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best, bestSeq := "", 0
	for _, inv := range m.invoices {
		if inv.UserID != userID || inv.FinancialYear != fy {
			continue
		}
		if seq, ok := ParseSequence(inv.Number, fy); ok && seq > bestSeq {
			best, bestSeq = inv.Number, seq
		}
	}
	return best, nil
}

func (m *memoryStore) Insert(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invoices {
		if existing.UserID == inv.UserID && existing.Number == inv.Number {
			return ErrNumberConflict
		}
	}
	m.inserts++
	m.invoices[inv.ID] = *inv
	return nil
}

func (m *memoryStore) Get(_ context.Context, userID string, id uuid.UUID) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.UserID != userID {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (m *memoryStore) List(_ context.Context, userID string, filter ListFilter) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.UserID != userID || (filter.Status != "" && inv.Status != filter.Status) {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryStore) Update(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.invoices[inv.ID]
	if !ok || existing.UserID != inv.UserID {
		return ErrNotFound
	}
	m.invoices[inv.ID] = *inv
	return nil
}

func (m *memoryStore) SetPDFKey(_ context.Context, userID string, id uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.UserID != userID {
		return ErrNotFound
	}
	inv.PDFKey = key
	m.invoices[id] = inv
	return nil
}

func (m *memoryStore) Delete(_ context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.UserID != userID {
		return ErrNotFound
	}
	delete(m.invoices, id)
	return nil
}

func (m *memoryStore) StatusTotals(_ context.Context, userID string) ([]StatusTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStatus := map[Status]*StatusTotal{}
	for _, inv := range m.invoices {
		if inv.UserID != userID {
			continue
		}
		st, ok := byStatus[inv.Status]
		if !ok {
			st = &StatusTotal{Status: inv.Status}
			byStatus[inv.Status] = st
		}
		st.Count++
		st.GrandTotal += inv.GrandTotal
		st.TotalTax += inv.TotalTax
	}
	out := make([]StatusTotal, 0, len(byStatus))
	for _, st := range byStatus {
		out = append(out, *st)
	}
	return out, nil
}

func (m *memoryStore) MarkOverdue(_ context.Context, asOf time.Time) ([]OverdueMark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OverdueMark
	for id, inv := range m.invoices {
		if inv.Status == StatusSent && !inv.DueDate.IsZero() && inv.DueDate.Before(asOf) {
			inv.Status = StatusOverdue
			m.invoices[id] = inv
			out = append(out, OverdueMark{ID: id, UserID: inv.UserID})
		}
	}
	return out, nil
}

type recordedJob struct {
	kind   string
	userID string
	id     uuid.UUID
	to     string
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs []recordedJob
}

func (f *fakeJobs) EnqueueRenderPDF(_ context.Context, userID string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, recordedJob{kind: "pdf", userID: userID, id: id})
	return nil
}

func (f *fakeJobs) EnqueueSendEmail(_ context.Context, userID string, id uuid.UUID, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, recordedJob{kind: "email", userID: userID, id: id, to: to})
	return nil
}

type countingRecorder struct {
	mu        sync.Mutex
	created   map[string]int
	conflicts int
}

func (c *countingRecorder) InvoiceCreated(supplyType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.created == nil {
		c.created = map[string]int{}
	}
	c.created[supplyType]++
}

func (c *countingRecorder) NumberConflict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conflicts++
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryIdempotency) Lookup(_ context.Context, key, module string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[module+"|"+key], nil
}

func (m *memoryIdempotency) Remember(_ context.Context, key, module, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	if _, ok := m.keys[module+"|"+key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"|"+key] = resourceID
	return nil
}
