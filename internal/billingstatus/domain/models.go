// Package domain contains the per-patient billing state machine model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PatientBillingStatus is the single source of truth for whether a patient is
// currently billable and which cycle last billed them. One row per patient;
// all mutations go through the tracker service, never direct field writes.
type PatientBillingStatus struct {
	PatientID          snowflake.ID `gorm:"primaryKey"`
	OfficeID           snowflake.ID `gorm:"not null;index"`
	IsActiveForBilling bool         `gorm:"not null;default:false"`
	ActivatedAt        *time.Time   `gorm:""`
	DeactivatedAt      *time.Time   `gorm:""`
	LastBilledCycle    *string      `gorm:"type:text;index"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PatientBillingStatus) TableName() string { return "patient_billing_status" }
