package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/platform/httpx"
	"github.com/finpilot/finpilot/internal/shared"
)

const (
	idempotencyModule = "invoices"
	defaultRetries    = 5
	defaultListLimit  = 50
	maxListLimit      = 200
)

// Store is the persistence port of the invoice service.
type Store interface {
	SequenceStore
	Insert(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, userID string, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	SetPDFKey(ctx context.Context, userID string, id uuid.UUID, key string) error
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	StatusTotals(ctx context.Context, userID string) ([]StatusTotal, error)
	MarkOverdue(ctx context.Context, asOf time.Time) ([]OverdueMark, error)
}

// Jobs enqueues background work for invoices.
type Jobs interface {
	EnqueueRenderPDF(ctx context.Context, userID string, id uuid.UUID) error
	EnqueueSendEmail(ctx context.Context, userID string, id uuid.UUID, to string) error
}

// Recorder receives domain metrics.
type Recorder interface {
	InvoiceCreated(supplyType string)
	NumberConflict()
}

// Auditor persists audit trail entries.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Idempotency maps client supplied keys to created resources.
type Idempotency interface {
	Lookup(ctx context.Context, key, module string) (string, error)
	Remember(ctx context.Context, key, module, resourceID string) error
}

// SummaryCache caches per-user dashboard summaries.
type SummaryCache interface {
	BuildKey(ctx context.Context, scope string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context, scope string) error
}

// Options carries the optional collaborators of Service.
type Options struct {
	Locker      Locker
	Clock       shared.Clock
	LockTTL     time.Duration
	Retries     int
	Cache       SummaryCache
	Audit       Auditor
	Idempotency Idempotency
	Metrics     Recorder
	Jobs        Jobs
	Logger      *slog.Logger
}

// Service handles invoice business logic.
type Service struct {
	repo    Store
	seq     *Sequencer
	clock   shared.Clock
	retries int
	cache   SummaryCache
	audit   Auditor
	idem    Idempotency
	metrics Recorder
	jobs    Jobs
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService builds a Service.
func NewService(repo Store, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		seq:     NewSequencer(repo, opts.Locker, opts.Clock, opts.LockTTL),
		clock:   opts.Clock,
		retries: opts.Retries,
		cache:   opts.Cache,
		audit:   opts.Audit,
		idem:    opts.Idempotency,
		metrics: opts.Metrics,
		jobs:    opts.Jobs,
		logger:  opts.Logger.With(slog.String("component", "invoices")),
	}
}

// Now exposes the service clock for read-time derivations.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Calculate previews the totals of a draft without persisting anything.
func (s *Service) Calculate(in CalculateInput) (gst.Totals, error) {
	return gst.Calculate(in.Items, in.SupplierState, in.PlaceOfSupply)
}

// NextNumber previews the number the next invoice dated asOf would receive.
func (s *Service) NextNumber(ctx context.Context, userID string, asOf time.Time) (string, error) {
	return s.seq.NextNumber(ctx, userID, asOf)
}

// Create validates a draft, assigns a number when none was supplied and
// persists the invoice. Repeating a request with the same idempotency key
// returns the invoice created the first time.
func (s *Service) Create(ctx context.Context, userID string, in InvoiceInput, idemKey string) (*Invoice, error) {
	if idemKey != "" {
		idemKey = userID + ":" + idemKey
	}
	if prior, err := s.lookupIdempotent(ctx, userID, idemKey); err != nil || prior != nil {
		return prior, err
	}

	now := s.clock.Now()
	d, err := validateInput(in, now)
	if err != nil {
		return nil, err
	}
	inv := &Invoice{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.apply(inv)

	if d.Number != "" {
		inv.Number = d.Number
		inv.FinancialYear = FinancialYear(inv.InvoiceDate)
		err = s.repo.Insert(ctx, inv)
	} else {
		err = s.insertNumbered(ctx, inv)
	}
	if err != nil {
		return nil, err
	}

	if idemKey != "" && s.idem != nil {
		if err := s.idem.Remember(ctx, idemKey, idempotencyModule, inv.ID.String()); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return s.lookupIdempotent(ctx, userID, idemKey)
			}
			s.logger.Warn("remember idempotency key", slog.Any("error", err))
		}
	}
	if s.metrics != nil {
		s.metrics.InvoiceCreated(string(inv.SupplyType))
	}
	s.record(ctx, userID, "invoice.created", inv, map[string]any{"number": inv.Number, "grandTotal": inv.GrandTotal})
	s.invalidate(ctx, userID)
	if s.jobs != nil {
		if err := s.jobs.EnqueueRenderPDF(ctx, userID, inv.ID); err != nil {
			s.logger.Warn("enqueue pdf render", slog.String("invoice_id", inv.ID.String()), slog.Any("error", err))
		}
	}
	return inv, nil
}

// insertNumbered reserves a number under the sequence lock and inserts the
// invoice, regenerating the number when another writer took it first.
func (s *Service) insertNumbered(ctx context.Context, inv *Invoice) error {
	for attempt := 1; ; attempt++ {
		_, err := s.seq.Reserve(ctx, inv.UserID, inv.InvoiceDate, func(ctx context.Context, number, fy string) error {
			inv.Number = number
			inv.FinancialYear = fy
			return s.repo.Insert(ctx, inv)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNumberConflict) {
			return err
		}
		if s.metrics != nil {
			s.metrics.NumberConflict()
		}
		s.logger.Warn("invoice number conflict",
			slog.String("user_id", inv.UserID),
			slog.String("number", inv.Number),
			slog.Int("attempt", attempt))
		if attempt >= s.retries {
			return fmt.Errorf("invoices: no free number after %d attempts: %w", attempt, err)
		}
	}
}

func (s *Service) lookupIdempotent(ctx context.Context, userID, key string) (*Invoice, error) {
	if key == "" || s.idem == nil {
		return nil, nil
	}
	resourceID, err := s.idem.Lookup(ctx, key, idempotencyModule)
	if err != nil || resourceID == "" {
		return nil, err
	}
	id, err := uuid.Parse(resourceID)
	if err != nil {
		return nil, fmt.Errorf("invoices: idempotency record: %w", err)
	}
	return s.repo.Get(ctx, userID, id)
}

// Get loads one invoice of userID.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (*Invoice, error) {
	return s.repo.Get(ctx, userID, id)
}

// List returns invoices of userID.
func (s *Service) List(ctx context.Context, userID string, filter ListFilter) ([]Invoice, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		var errs shared.ValidationErrors
		errs.Add("status", fmt.Sprintf("unknown status %q", filter.Status))
		return nil, errs
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, userID, filter)
}

// Update replaces the editable fields of an invoice and recomputes its totals.
// The invoice number is immutable once assigned.
func (s *Service) Update(ctx context.Context, userID string, id uuid.UUID, in InvoiceInput) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.Editable() {
		return nil, ErrNotEditable
	}
	now := s.clock.Now()
	if in.InvoiceDate == "" {
		in.InvoiceDate = inv.InvoiceDate.Format(dateLayout)
	}
	d, err := validateInput(in, now)
	if err != nil {
		return nil, err
	}
	var errs shared.ValidationErrors
	if d.Number != "" && d.Number != inv.Number {
		errs.Add("invoiceNumber", "cannot be changed once assigned")
	}
	if fy := FinancialYear(d.invoiceDate); fy != inv.FinancialYear {
		errs.Add("invoiceDate", fmt.Sprintf("must stay within financial year %s", inv.FinancialYear))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	d.apply(inv)
	inv.UpdatedAt = now
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}
	s.record(ctx, userID, "invoice.updated", inv, map[string]any{"grandTotal": inv.GrandTotal})
	s.invalidate(ctx, userID)
	return inv, nil
}

// UpdateStatus moves an invoice along its workflow. Marking it paid stamps
// PaidAt.
func (s *Service) UpdateStatus(ctx context.Context, userID string, id uuid.UUID, next Status) (*Invoice, error) {
	if !next.Valid() {
		var errs shared.ValidationErrors
		errs.Add("status", fmt.Sprintf("unknown status %q", next))
		return nil, errs
	}
	inv, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == next {
		return inv, nil
	}
	if !inv.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inv.Status, next)
	}
	now := s.clock.Now()
	prev := inv.Status
	inv.Status = next
	inv.UpdatedAt = now
	if next == StatusPaid {
		inv.PaidAt = &now
	}
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}
	s.record(ctx, userID, "invoice.status_changed", inv, map[string]any{"from": string(prev), "to": string(next)})
	s.invalidate(ctx, userID)
	return inv, nil
}

// Delete removes an invoice owned by userID.
func (s *Service) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	inv, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.record(ctx, userID, "invoice.deleted", inv, map[string]any{"number": inv.Number})
	s.invalidate(ctx, userID)
	return nil
}

// RequestSend enqueues e-mail delivery to to, or to the buyer's address.
func (s *Service) RequestSend(ctx context.Context, userID string, id uuid.UUID, to string) error {
	inv, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if inv.Status == StatusCancelled {
		return fmt.Errorf("%w: cancelled invoices cannot be sent", ErrInvalidTransition)
	}
	if to == "" {
		to = inv.Buyer.Email
	}
	if to == "" {
		var errs shared.ValidationErrors
		errs.Add("to", "no recipient given and buyer has no e-mail address")
		return errs
	}
	if s.jobs == nil {
		return fmt.Errorf("invoices: job queue not configured: %w", httpx.ErrConflict)
	}
	return s.jobs.EnqueueSendEmail(ctx, userID, id, to)
}

// MarkSent records delivery of a draft invoice. Other statuses are kept.
func (s *Service) MarkSent(ctx context.Context, userID string, id uuid.UUID) error {
	inv, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if inv.Status != StatusDraft {
		return nil
	}
	_, err = s.UpdateStatus(ctx, userID, id, StatusSent)
	return err
}

// AttachPDF stores the object key of a rendered invoice PDF.
func (s *Service) AttachPDF(ctx context.Context, userID string, id uuid.UUID, key string) error {
	return s.repo.SetPDFKey(ctx, userID, id, key)
}

// SweepOverdue marks every sent invoice past its due date as overdue.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	marks, err := s.repo.MarkOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, m := range marks {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		s.invalidate(ctx, m.UserID)
	}
	return len(marks), nil
}

// Summary returns per-status counts and totals of userID's invoices.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	load := func(ctx context.Context) (any, error) {
		rows, err := s.repo.StatusTotals(ctx, userID)
		if err != nil {
			return nil, err
		}
		return buildSummary(rows), nil
	}
	if s.cache == nil {
		v, err := load(ctx)
		if err != nil {
			return Summary{}, err
		}
		return v.(Summary), nil
	}
	key, err := s.cache.BuildKey(ctx, userID, "summary")
	if err != nil {
		return Summary{}, err
	}
	res, err, _ := s.group.Do(key, func() (any, error) {
		var out Summary
		if err := s.cache.FetchJSON(ctx, key, &out, load); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return res.(Summary), nil
}

func buildSummary(rows []StatusTotal) Summary {
	out := Summary{ByStatus: make(map[Status]StatusSummary, len(rows))}
	var billed, tax, outstanding []float64
	for _, row := range rows {
		out.ByStatus[row.Status] = StatusSummary{Count: row.Count, GrandTotal: gst.Round2(row.GrandTotal)}
		out.InvoiceCount += row.Count
		switch row.Status {
		case StatusSent, StatusOverdue:
			outstanding = append(outstanding, row.GrandTotal)
			fallthrough
		case StatusPaid:
			billed = append(billed, row.GrandTotal)
			tax = append(tax, row.TotalTax)
		}
	}
	out.TotalBilled = gst.Sum(billed...)
	out.TotalTax = gst.Sum(tax...)
	out.Outstanding = gst.Sum(outstanding...)
	return out
}

func (s *Service) record(ctx context.Context, userID, action string, inv *Invoice, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "invoice",
		EntityID: inv.ID.String(),
		Meta:     meta,
		At:       s.clock.Now(),
	})
	if err != nil {
		s.logger.Warn("audit invoice", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, userID); err != nil {
		s.logger.Warn("invalidate invoice summary", slog.String("user_id", userID), slog.Any("error", err))
	}
}
