package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service mutates and queries per-patient billing state. Activation has no
// immediate billing side effect; charges accrue at the next assembler pass.
type Service interface {
	// EnsureStatus creates the default-inactive status row when a patient
	// account is created. Calling it again for the same patient is a no-op.
	EnsureStatus(ctx context.Context, patientID, officeID snowflake.ID) error

	// Activate marks the patient billable. Returns ErrAlreadyActive when the
	// patient is already active.
	Activate(ctx context.Context, patientID, officeID snowflake.ID, at time.Time) error

	// Deactivate marks the patient non-billable. Line items already invoiced
	// are untouched. Returns ErrNotActive when the patient is already inactive.
	Deactivate(ctx context.Context, patientID snowflake.ID, at time.Time) error

	// MarkBilled records that the patient was included in cycleID. Idempotent.
	MarkBilled(ctx context.Context, patientID snowflake.ID, cycleID string) error

	// ListBillableForCycle returns patients that are active and not yet billed
	// in cycleID, in stable order.
	ListBillableForCycle(ctx context.Context, officeID snowflake.ID, cycleID string) ([]snowflake.ID, error)

	// GetStatus loads the status row for a patient.
	GetStatus(ctx context.Context, patientID snowflake.ID) (PatientBillingStatus, error)
}

var (
	ErrAlreadyActive  = errors.New("already_active")
	ErrNotActive      = errors.New("not_active")
	ErrStatusNotFound = errors.New("billing_status_not_found")
)
