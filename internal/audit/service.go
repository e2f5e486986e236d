package audit

import (
	"context"
	"fmt"

	"github.com/finpilot/finpilot/internal/shared"
)

// Store is the persistence used by Service.
type Store interface {
	Count(ctx context.Context, actorID string, f TimelineFilters) (int, error)
	List(ctx context.Context, actorID string, f TimelineFilters, limit, offset int) ([]TimelineRow, error)
}

// Service pages through an actor's audit trail.
type Service struct {
	repo Store
}

// NewService builds a Service.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of actorID's audit trail.
func (s *Service) Timeline(ctx context.Context, actorID string, f TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if err := checkRange(f); err != nil {
		return Result{}, err
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	total, err := s.repo.Count(ctx, actorID, f)
	if err != nil {
		return Result{}, err
	}
	paging := shared.NewPagination(f.Page, pageSize, total)
	rows := []TimelineRow{}
	if paging.Offset() < total {
		rows, err = s.repo.List(ctx, actorID, f, paging.PerPage, paging.Offset())
		if err != nil {
			return Result{}, err
		}
	}
	return Result{Rows: rows, Pagination: paging}, nil
}

// Export returns the filtered trail without paging, capped at exportLimit rows.
func (s *Service) Export(ctx context.Context, actorID string, f TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if err := checkRange(f); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, actorID, f, exportLimit, 0)
}

func checkRange(f TimelineFilters) error {
	var errs shared.ValidationErrors
	if !f.From.IsZero() && !f.To.IsZero() {
		switch {
		case !f.From.Before(f.To):
			errs.Add("from", "must not be after to")
		case f.To.Sub(f.From) > maxRange:
			errs.Add("range", "must not exceed 90 days")
		}
	}
	return errs.Err()
}
