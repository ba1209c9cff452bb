// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/adjustly/adjustly/internal/sanitize"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states. After SENT the invoice
// is append-only: only Status and ExternalReference may change, rows are
// never deleted.
type InvoiceStatus string

const (
	InvoiceStatusDraft    InvoiceStatus = "DRAFT"
	InvoiceStatusSent     InvoiceStatus = "SENT"
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusFailed   InvoiceStatus = "FAILED"
	InvoiceStatusCanceled InvoiceStatus = "CANCELED"
)

// InvoiceType classifies how an invoice came to exist.
type InvoiceType string

const (
	InvoiceTypeMonthly  InvoiceType = "MONTHLY"
	InvoiceTypeOneOff   InvoiceType = "ONE_OFF"
	InvoiceTypeSetupFee InvoiceType = "SETUP_FEE"
)

// Invoice aggregates one office's charges for a billing cycle, or a single
// one-off charge. Exactly one monthly invoice exists per (office_id,
// billing_cycle); the unique index backs the idempotent insert.
type Invoice struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	OfficeID          snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoice_office_cycle,priority:1"`
	BillingCycle      *string           `gorm:"type:text;uniqueIndex:ux_invoice_office_cycle,priority:2"`
	PeriodStart       *time.Time        `gorm:""`
	PeriodEnd         *time.Time        `gorm:""`
	InvoiceType       InvoiceType       `gorm:"type:text;not null"`
	Status            InvoiceStatus     `gorm:"type:text;not null;default:'DRAFT'"`
	TotalAmount       int64             `gorm:"not null;default:0"`
	Currency          string            `gorm:"type:text;not null"`
	ExternalReference *string           `gorm:"type:text;index"`
	SentAt            *time.Time        `gorm:""`
	PaidAt            *time.Time        `gorm:""`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLineItem is one billable unit on an invoice. AnonymousReference is a
// random token; it carries no patient context and cannot be reversed without
// the internal-only reference table.
type InvoiceLineItem struct {
	ID                 snowflake.ID      `gorm:"primaryKey"`
	OfficeID           snowflake.ID      `gorm:"not null;index"`
	InvoiceID          snowflake.ID      `gorm:"not null;index"`
	ItemType           sanitize.ItemType `gorm:"type:text;not null"`
	Description        string            `gorm:"type:text"`
	Quantity           int64             `gorm:"not null"`
	UnitPriceCents     int64             `gorm:"not null"`
	TotalPriceCents    int64             `gorm:"not null"`
	AnonymousReference *string           `gorm:"type:text;index"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// LineItemReference maps an anonymous reference back to the patient it was
// issued for. Internal-only dispute-resolution path: nothing that serializes
// for external transmission reads this table.
type LineItemReference struct {
	AnonymousReference string       `gorm:"primaryKey;type:text"`
	InvoiceID          snowflake.ID `gorm:"not null;index"`
	PatientID          snowflake.ID `gorm:"not null;index"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LineItemReference) TableName() string { return "line_item_references" }
