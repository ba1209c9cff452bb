package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	EventTypePaymentSucceeded = "payment.succeeded"
	EventTypePaymentFailed    = "payment.failed"
)

var (
	ErrGatewayTransmission = errors.New("gateway_transmission_error")
	ErrInvalidEvent        = errors.New("invalid_payment_event")
	ErrUnknownEventType    = errors.New("unknown_event_type")
)

// SanitizedLineItem is the only line item shape that ever leaves the process.
// No patient field exists on it, so none can leak.
type SanitizedLineItem struct {
	ItemType           string `json:"item_type"`
	Description        string `json:"description"`
	Quantity           int64  `json:"quantity"`
	UnitPriceCents     int64  `json:"unit_price_cents"`
	TotalPriceCents    int64  `json:"total_price_cents"`
	AnonymousReference string `json:"anonymous_reference,omitempty"`
}

// SanitizedInvoicePayload is the outbound wire shape for the payment
// processor.
type SanitizedInvoicePayload struct {
	InvoiceID        string              `json:"invoice_id"`
	OfficeID         string              `json:"office_id"`
	BillingCycle     string              `json:"billing_cycle,omitempty"`
	InvoiceType      string              `json:"invoice_type"`
	TotalAmountCents int64               `json:"total_amount_cents"`
	Currency         string              `json:"currency"`
	LineItems        []SanitizedLineItem `json:"line_items"`
}

// PaymentEvent records every inbound processor event. ExternalEventID is
// unique so redelivered webhooks collapse into the first row.
type PaymentEvent struct {
	ID                snowflake.ID   `gorm:"primaryKey" json:"id,string"`
	ExternalEventID   string         `gorm:"type:text;not null;uniqueIndex:ux_payment_event_external" json:"external_event_id"`
	EventType         string         `gorm:"type:text;not null" json:"event_type"`
	ExternalReference string         `gorm:"type:text;not null;index" json:"external_reference"`
	AmountCents       int64          `gorm:"not null;default:0" json:"amount_cents"`
	Currency          string         `gorm:"type:text" json:"currency"`
	OccurredAt        time.Time      `gorm:"not null" json:"occurred_at"`
	RawPayload        datatypes.JSON `gorm:"type:jsonb" json:"-"`
	ProcessedAt       *time.Time     `json:"processed_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PaymentEvent) TableName() string { return "payment_events" }

// InboundEvent is a parsed webhook delivery before persistence.
type InboundEvent struct {
	ExternalEventID   string
	EventType         string
	ExternalReference string
	AmountCents       int64
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte
}

// Adapter transmits a sanitized invoice to the payment processor and returns
// the processor's reference for it.
type Adapter interface {
	TransmitInvoice(ctx context.Context, payload SanitizedInvoicePayload) (string, error)
}

type Service interface {
	// DispatchInvoice transmits one draft invoice. On transmission failure
	// the invoice stays in DRAFT so a later pass retries it.
	DispatchInvoice(ctx context.Context, invoiceID snowflake.ID) error

	// DispatchPending transmits up to limit draft invoices and returns how
	// many were sent. Per-invoice failures do not stop the batch.
	DispatchPending(ctx context.Context, limit int) (int, error)

	// HandlePaymentEvent persists and applies a processor webhook. A
	// redelivered event id is a no-op.
	HandlePaymentEvent(ctx context.Context, event InboundEvent) error
}
