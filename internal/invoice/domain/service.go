package domain

import (
	"context"
	"errors"
	"time"

	"github.com/adjustly/adjustly/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
)

type ListInvoiceRequest struct {
	pagination.Pagination

	OfficeID snowflake.ID
	Status   *InvoiceStatus
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// Service assembles and serves invoices. Assembly is idempotent and
// transactional: the invoice, its line items, the reference mapping, and the
// mark-billed updates commit together or not at all.
type Service interface {
	// AssembleMonthlyInvoice builds the invoice for (officeID, cycleID). If
	// one already exists it is returned unchanged; re-runs are safe.
	AssembleMonthlyInvoice(ctx context.Context, officeID snowflake.ID, cycleID string, periodStart, periodEnd time.Time) (Invoice, error)

	// AssembleOneOffCharge creates a standalone office-level charge with a
	// single line item tied to no patient.
	AssembleOneOffCharge(ctx context.Context, officeID snowflake.ID, invoiceType InvoiceType, amountCents int64, description string) (Invoice, error)

	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	ListLineItems(ctx context.Context, invoiceID string) ([]InvoiceLineItem, error)

	// MarkSent records the external reference after successful transmission.
	MarkSent(ctx context.Context, invoiceID snowflake.ID, externalReference string) error

	// SettlePayment transitions a sent invoice to PAID or FAILED from a
	// reconciliation callback.
	SettlePayment(ctx context.Context, externalReference string, paid bool, at time.Time) error
}

var (
	ErrInvalidOffice      = errors.New("invalid_office")
	ErrInvalidInvoiceID   = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrNoBillableActivity = errors.New("no_billable_activity")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidPeriod      = errors.New("invalid_period")
	ErrNotTransmittable   = errors.New("invoice_not_transmittable")
	ErrUnknownReference   = errors.New("unknown_external_reference")
)
