// Package plstatements stores profit and loss statements produced by the
// statement analysis pipeline and guards their internal consistency.
package plstatements

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finpilot/finpilot/internal/platform/httpx"
)

// Period is the span a statement covers.
type Period string

const (
	PeriodWeekly  Period = "Weekly"
	PeriodMonthly Period = "Monthly"
	PeriodYearly  Period = "Yearly"
)

// Status tracks the analysis lifecycle of a statement.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusArchived   Status = "archived"
)

// InsightType classifies an insight.
type InsightType string

const (
	InsightPositive InsightType = "positive"
	InsightWarning  InsightType = "warning"
	InsightGeneral  InsightType = "insight"
	InsightAction   InsightType = "action"
)

// BreakdownTolerance is the accepted relative gap between a section total and
// the sum of its breakdown. It is a product policy.
const BreakdownTolerance = 0.01

var (
	// ErrBreakdownMismatch is wrapped into validation errors when a breakdown
	// strays from its total by more than BreakdownTolerance.
	ErrBreakdownMismatch = errors.New("plstatements: breakdown does not add up to total")
	// ErrNotFound is returned for missing or foreign statements.
	ErrNotFound = fmt.Errorf("plstatements: %w", httpx.ErrNotFound)
	// ErrArchived rejects changes to archived statements.
	ErrArchived = fmt.Errorf("plstatements: statement is archived: %w", httpx.ErrConflict)
)

// Line is one category of revenue or expense.
type Line struct {
	Category string  `json:"category" validate:"required,max=100"`
	Amount   float64 `json:"amount" validate:"gte=0"`
}

// Section is the revenue or expense side of a statement.
type Section struct {
	Total     float64 `json:"total" validate:"gte=0"`
	Breakdown []Line  `json:"breakdown" validate:"max=100,dive"`
}

// Insight is a single observation attached to a statement.
type Insight struct {
	Type        InsightType `json:"type" validate:"required,oneof=positive warning insight action"`
	Title       string      `json:"title" validate:"required,max=200"`
	Description string      `json:"description" validate:"max=2000"`
}

// Statement is a persisted profit and loss statement.
type Statement struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"userId"`
	Period       Period    `json:"period"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	Revenue      Section   `json:"revenue"`
	Expenses     Section   `json:"expenses"`
	NetProfit    float64   `json:"netProfit"`
	ProfitMargin float64   `json:"profitMargin"`
	Insights     []Insight `json:"insights"`
	Status       Status    `json:"status"`
	SourceFile   string    `json:"sourceFile,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Input is a statement as submitted for storage.
type Input struct {
	Period     Period    `json:"period" validate:"required,oneof=Weekly Monthly Yearly"`
	StartDate  string    `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string    `json:"endDate" validate:"required,datetime=2006-01-02"`
	Revenue    Section   `json:"revenue"`
	Expenses   Section   `json:"expenses"`
	Insights   []Insight `json:"insights" validate:"max=50,dive"`
	Status     Status    `json:"status" validate:"omitempty,oneof=processing completed failed"`
	SourceFile string    `json:"sourceFile" validate:"max=500"`
}

// ListFilter narrows statement listings.
type ListFilter struct {
	Period          Period
	IncludeArchived bool
	Limit           int
	Offset          int
}
