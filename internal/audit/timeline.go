// Package audit serves the per-user audit trail recorded by the invoice and
// P&L services.
package audit

import (
	"time"

	"github.com/finpilot/finpilot/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxRange        = 90 * 24 * time.Hour
	exportLimit     = 5000
)

// TimelineFilters narrows the audit trail of one actor.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit entry.
type TimelineRow struct {
	At       time.Time      `json:"at"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta"`
}

// Result is a page of the audit trail.
type Result struct {
	Rows       []TimelineRow     `json:"rows"`
	Pagination shared.Pagination `json:"pagination"`
}
