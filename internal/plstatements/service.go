package plstatements

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/finpilot/finpilot/internal/shared"
)

// Store is the persistence port of the statement service.
type Store interface {
	Insert(ctx context.Context, st *Statement) error
	Get(ctx context.Context, userID string, id uuid.UUID) (*Statement, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]Statement, error)
	UpdateStatus(ctx context.Context, userID string, id uuid.UUID, status Status) error
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

// Auditor persists audit trail entries.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles statement business logic.
type Service struct {
	repo   Store
	clock  shared.Clock
	audit  Auditor
	logger *slog.Logger
}

// NewService builds a Service. audit may be nil.
func NewService(repo Store, clock shared.Clock, audit Auditor, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, clock: clock, audit: audit, logger: logger}
}

// Create validates and stores a statement. Net profit and margin are derived
// from the section totals, whatever the submitter computed.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*Statement, error) {
	p, err := validateInput(in)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	st := &Statement{
		ID:         uuid.New(),
		UserID:     userID,
		Period:     p.Period,
		StartDate:  p.start,
		EndDate:    p.end,
		Revenue:    p.Revenue,
		Expenses:   p.Expenses,
		Insights:   p.Insights,
		Status:     p.Status,
		SourceFile: p.SourceFile,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if st.Status == "" {
		st.Status = StatusCompleted
	}
	if st.Insights == nil {
		st.Insights = []Insight{}
	}
	st.NetProfit, st.ProfitMargin = Derive(st.Revenue.Total, st.Expenses.Total)
	if err := s.repo.Insert(ctx, st); err != nil {
		return nil, err
	}
	s.record(ctx, userID, "pl_statement.created", st.ID)
	return st, nil
}

// Get loads one statement of userID.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (*Statement, error) {
	return s.repo.Get(ctx, userID, id)
}

// List returns statements of userID.
func (s *Service) List(ctx context.Context, userID string, filter ListFilter) ([]Statement, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, userID, filter)
}

// Archive hides a statement from default listings.
func (s *Service) Archive(ctx context.Context, userID string, id uuid.UUID) (*Statement, error) {
	st, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if st.Status == StatusArchived {
		return nil, ErrArchived
	}
	if err := s.repo.UpdateStatus(ctx, userID, id, StatusArchived); err != nil {
		return nil, err
	}
	st.Status = StatusArchived
	st.UpdatedAt = s.clock.Now()
	s.record(ctx, userID, "pl_statement.archived", id)
	return st, nil
}

// Delete removes a statement of userID.
func (s *Service) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.record(ctx, userID, "pl_statement.deleted", id)
	return nil
}

func (s *Service) record(ctx context.Context, userID, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: userID, Action: action, Entity: "pl_statement", EntityID: id.String(), At: s.clock.Now()})
	if err != nil {
		s.logger.Warn("audit pl statement", slog.String("action", action), slog.Any("error", fmt.Errorf("plstatements: %w", err)))
	}
}
