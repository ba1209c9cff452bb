package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RunStatus string

const (
	RunStatusPending         RunStatus = "PENDING"
	RunStatusInProgress      RunStatus = "IN_PROGRESS"
	RunStatusCompleted       RunStatus = "COMPLETED"
	RunStatusPartiallyFailed RunStatus = "PARTIALLY_FAILED"
)

type OfficeResultStatus string

const (
	OfficeResultInvoiced OfficeResultStatus = "INVOICED"
	OfficeResultSkipped  OfficeResultStatus = "SKIPPED"
	OfficeResultFailed   OfficeResultStatus = "FAILED"
)

// CycleRun tracks one orchestrated close of a billing cycle across all
// offices. CycleID is unique so a re-run resumes the existing record instead
// of opening a second one.
type CycleRun struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id,string"`
	CycleID        string       `gorm:"type:text;not null;uniqueIndex:ux_cycle_run_cycle" json:"cycle_id"`
	Status         RunStatus    `gorm:"type:text;not null" json:"status"`
	PeriodStart    time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd      time.Time    `gorm:"not null" json:"period_end"`
	OfficesTotal   int64        `gorm:"not null;default:0" json:"offices_total"`
	OfficesBilled  int64        `gorm:"not null;default:0" json:"offices_billed"`
	OfficesSkipped int64        `gorm:"not null;default:0" json:"offices_skipped"`
	OfficesFailed  int64        `gorm:"not null;default:0" json:"offices_failed"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CycleRun) TableName() string { return "cycle_runs" }

// CycleOfficeResult is the per-office outcome within a run. One row per
// (cycle, office); a retry overwrites the FAILED row in place.
type CycleOfficeResult struct {
	ID         snowflake.ID       `gorm:"primaryKey" json:"id,string"`
	CycleID    string             `gorm:"type:text;not null;uniqueIndex:ux_cycle_office,priority:1" json:"cycle_id"`
	OfficeID   snowflake.ID       `gorm:"not null;uniqueIndex:ux_cycle_office,priority:2" json:"office_id,string"`
	Status     OfficeResultStatus `gorm:"type:text;not null" json:"status"`
	InvoiceID  *snowflake.ID      `json:"invoice_id,omitempty,string"`
	LastError  *string            `gorm:"type:text" json:"last_error,omitempty"`
	Attempts   int64              `gorm:"not null;default:0" json:"attempts"`
	ResolvedAt *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CycleOfficeResult) TableName() string { return "cycle_office_results" }

// RunSummary is what a cycle run reports back to its caller.
type RunSummary struct {
	Run     CycleRun            `json:"run"`
	Results []CycleOfficeResult `json:"results"`
}

type Service interface {
	// RunCycle closes the cycle spanning [periodStart, periodEnd) for every
	// office. Failures are isolated per office; calling it again retries only
	// the offices that have not been invoiced or skipped yet.
	RunCycle(ctx context.Context, cycleID string, periodStart, periodEnd time.Time) (RunSummary, error)

	// GetRun returns the recorded run for a cycle, or ErrRunNotFound.
	GetRun(ctx context.Context, cycleID string) (RunSummary, error)
}
