package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	billingstatusdomain "github.com/adjustly/adjustly/internal/billingstatus/domain"
	billingstatusservice "github.com/adjustly/adjustly/internal/billingstatus/service"
	"github.com/adjustly/adjustly/internal/config"
	invoicedomain "github.com/adjustly/adjustly/internal/invoice/domain"
	"github.com/adjustly/adjustly/internal/sanitize"
	"github.com/adjustly/adjustly/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type failingSanitizer struct{}

func (failingSanitizer) SanitizeActivationBatch(context.Context, snowflake.ID, []snowflake.ID, int64) (sanitize.Batch, error) {
	return sanitize.Batch{}, fmt.Errorf("%w: field Description matches pattern", sanitize.ErrSanitizationFailure)
}

type invoiceFixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	statusSvc billingstatusdomain.Service
	svc       invoicedomain.Service
}

func setupInvoiceService(t *testing.T, sanitizer sanitize.Service) invoiceFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&billingstatusdomain.PatientBillingStatus{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&invoicedomain.LineItemReference{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	if sanitizer == nil {
		sanitizer = sanitize.NewService(sanitize.ServiceParam{Log: zap.NewNop()})
	}
	holder := config.NewStaticBillingConfigHolder(config.BillingConfig{
		PerActivationCents: 200,
		SetupFeeCents:      15000,
		Currency:           "usd",
	})

	statusSvc := billingstatusservice.NewService(billingstatusservice.ServiceParam{
		DB: db, Log: zap.NewNop(), GenID: node,
	})
	svc := NewService(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Sanitizer:  sanitizer,
		BillingCfg: holder,
	})
	return invoiceFixture{db: db, node: node, statusSvc: statusSvc, svc: svc}
}

func (f invoiceFixture) activate(t *testing.T, officeID snowflake.ID, n int) []snowflake.ID {
	t.Helper()
	ctx := context.Background()
	var patients []snowflake.ID
	for i := 0; i < n; i++ {
		patientID := f.node.Generate()
		patients = append(patients, patientID)
		require.NoError(t, f.statusSvc.EnsureStatus(ctx, patientID, officeID))
		require.NoError(t, f.statusSvc.Activate(ctx, patientID, officeID, time.Now()))
	}
	return patients
}

func cyclePeriod(cycleID string) (time.Time, time.Time) {
	start, _ := time.Parse("2006-01", cycleID)
	return start, start.AddDate(0, 1, 0)
}

func TestAssembleMonthlyInvoice(t *testing.T) {
	f := setupInvoiceService(t, nil)
	ctx := context.Background()
	officeID := f.node.Generate()

	// Three steadily active patients plus one who was billed a prior cycle,
	// deactivated, and reactivated: four activations at 200 cents.
	patients := f.activate(t, officeID, 3)
	reactivated := f.activate(t, officeID, 1)[0]
	require.NoError(t, f.statusSvc.MarkBilled(ctx, reactivated, "2026-06"))
	require.NoError(t, f.statusSvc.Deactivate(ctx, reactivated, time.Now()))
	require.NoError(t, f.statusSvc.Activate(ctx, reactivated, officeID, time.Now()))
	patients = append(patients, reactivated)

	start, end := cyclePeriod("2026-07")
	invoice, err := f.svc.AssembleMonthlyInvoice(ctx, officeID, "2026-07", start, end)
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, invoicedomain.InvoiceTypeMonthly, invoice.InvoiceType)
	assert.Equal(t, int64(800), invoice.TotalAmount)
	assert.Equal(t, "usd", invoice.Currency)
	require.NotNil(t, invoice.BillingCycle)
	assert.Equal(t, "2026-07", *invoice.BillingCycle)

	items, err := f.svc.ListLineItems(ctx, invoice.ID.String())
	require.NoError(t, err)
	require.Len(t, items, 4)
	for _, item := range items {
		assert.Equal(t, sanitize.ItemTypePatientActivation, item.ItemType)
		assert.Equal(t, "Patient Activation", item.Description)
		assert.Equal(t, int64(200), item.TotalPriceCents)
		require.NotNil(t, item.AnonymousReference)
		for _, patientID := range patients {
			assert.NotContains(t, item.Description, patientID.String())
			assert.NotContains(t, *item.AnonymousReference, patientID.String())
		}
	}

	// The reversal table maps every reference back to exactly one patient.
	var refs []invoicedomain.LineItemReference
	require.NoError(t, f.db.Where("invoice_id = ?", invoice.ID).Find(&refs).Error)
	require.Len(t, refs, 4)
	refPatients := make([]snowflake.ID, 0, len(refs))
	for _, ref := range refs {
		refPatients = append(refPatients, ref.PatientID)
	}
	assert.ElementsMatch(t, patients, refPatients)

	// Everyone is marked billed for the cycle.
	for _, patientID := range patients {
		status, err := f.statusSvc.GetStatus(ctx, patientID)
		require.NoError(t, err)
		require.NotNil(t, status.LastBilledCycle)
		assert.Equal(t, "2026-07", *status.LastBilledCycle)
	}
}

func TestAssembleMonthlyInvoice_Idempotent(t *testing.T) {
	f := setupInvoiceService(t, nil)
	ctx := context.Background()
	officeID := f.node.Generate()
	f.activate(t, officeID, 2)

	start, end := cyclePeriod("2026-07")
	first, err := f.svc.AssembleMonthlyInvoice(ctx, officeID, "2026-07", start, end)
	require.NoError(t, err)
	second, err := f.svc.AssembleMonthlyInvoice(ctx, officeID, "2026-07", start, end)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.TotalAmount, second.TotalAmount)

	var invoiceCount, itemCount int64
	f.db.Model(&invoicedomain.Invoice{}).Where("office_id = ?", officeID).Count(&invoiceCount)
	f.db.Model(&invoicedomain.InvoiceLineItem{}).Where("office_id = ?", officeID).Count(&itemCount)
	assert.Equal(t, int64(1), invoiceCount)
	assert.Equal(t, int64(2), itemCount)
}

func TestAssembleMonthlyInvoice_DeactivatedExcluded(t *testing.T) {
	f := setupInvoiceService(t, nil)
	ctx := context.Background()
	officeID := f.node.Generate()

	f.activate(t, officeID, 1)
	gone := f.activate(t, officeID, 1)[0]
	require.NoError(t, f.statusSvc.Deactivate(ctx, gone, time.Now()))

	start, end := cyclePeriod("2026-07")
	invoice, err := f.svc.AssembleMonthlyInvoice(ctx, officeID, "2026-07", start, end)
	require.NoError(t, err)

	assert.Equal(t, int64(200), invoice.TotalAmount)
	items, err := f.svc.ListLineItems(ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Len(t, items, 1)

	status, err := f.statusSvc.GetStatus(ctx, gone)
	require.NoError(t, err)
	assert.Nil(t, status.LastBilledCycle)
}

func TestAssembleMonthlyInvoice_NoBillableActivity(t *testing.T) {
	f := setupInvoiceService(t, nil)
	officeID := f.node.Generate()

	start, end := cyclePeriod("2026-07")
	_, err := f.svc.AssembleMonthlyInvoice(context.Background(), officeID, "2026-07", start, end)
	assert.ErrorIs(t, err, invoicedomain.ErrNoBillableActivity)

	var count int64
	f.db.Model(&invoicedomain.Invoice{}).Where("office_id = ?", officeID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestAssembleMonthlyInvoice_SanitizationFailureRollsBack(t *testing.T) {
	f := setupInvoiceService(t, failingSanitizer{})
	ctx := context.Background()
	officeID := f.node.Generate()
	patients := f.activate(t, officeID, 2)

	start, end := cyclePeriod("2026-07")
	_, err := f.svc.AssembleMonthlyInvoice(ctx, officeID, "2026-07", start, end)
	assert.ErrorIs(t, err, sanitize.ErrSanitizationFailure)

	// Nothing persisted, nobody marked billed.
	var invoiceCount, itemCount int64
	f.db.Model(&invoicedomain.Invoice{}).Where("office_id = ?", officeID).Count(&invoiceCount)
	f.db.Model(&invoicedomain.InvoiceLineItem{}).Where("office_id = ?", officeID).Count(&itemCount)
	assert.Equal(t, int64(0), invoiceCount)
	assert.Equal(t, int64(0), itemCount)

	for _, patientID := range patients {
		status, err := f.statusSvc.GetStatus(ctx, patientID)
		require.NoError(t, err)
		assert.Nil(t, status.LastBilledCycle)
	}
}

func TestAssembleMonthlyInvoice_InvalidInput(t *testing.T) {
	f := setupInvoiceService(t, nil)
	ctx := context.Background()
	start, end := cyclePeriod("2026-07")

	_, err := f.svc.AssembleMonthlyInvoice(ctx, 0, "2026-07", start, end)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidOffice)

	_, err = f.svc.AssembleMonthlyInvoice(ctx, f.node.Generate(), "", start, end)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPeriod)

	_, err = f.svc.AssembleMonthlyInvoice(ctx, f.node.Generate(), "2026-07", end, start)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPeriod)
}

func TestAssembleOneOffCharge_SetupFee(t *testing.T) {
	f := setupInvoiceService(t, nil)
	ctx := context.Background()
	officeID := f.node.Generate()

	invoice, err := f.svc.AssembleOneOffCharge(ctx, officeID, invoicedomain.InvoiceTypeSetupFee, 15000, "Office setup and onboarding")
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, invoicedomain.InvoiceTypeSetupFee, invoice.InvoiceType)
	assert.Equal(t, int64(15000), invoice.TotalAmount)
	assert.Nil(t, invoice.BillingCycle)

	items, err := f.svc.ListLineItems(ctx, invoice.ID.String())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, sanitize.ItemTypeSetupFee, items[0].ItemType)
	assert.Equal(t, int64(15000), items[0].TotalPriceCents)
	assert.Nil(t, items[0].AnonymousReference)
}

func TestAssembleOneOffCharge_PIIDescriptionRejected(t *testing.T) {
	f := setupInvoiceService(t, nil)
	officeID := f.node.Generate()

	_, err := f.svc.AssembleOneOffCharge(context.Background(), officeID, invoicedomain.InvoiceTypeOneOff, 500, "re-bill for jane.doe@example.com")
	assert.ErrorIs(t, err, sanitize.ErrSanitizationFailure)

	var count int64
	f.db.Model(&invoicedomain.Invoice{}).Where("office_id = ?", officeID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestAssembleOneOffCharge_InvalidAmount(t *testing.T) {
	f := setupInvoiceService(t, nil)
	ctx := context.Background()
	officeID := f.node.Generate()

	_, err := f.svc.AssembleOneOffCharge(ctx, officeID, invoicedomain.InvoiceTypeOneOff, 0, "zero")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = f.svc.AssembleOneOffCharge(ctx, officeID, invoicedomain.InvoiceTypeOneOff, -100, "negative")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = f.svc.AssembleOneOffCharge(ctx, officeID, invoicedomain.InvoiceTypeMonthly, 100, "wrong type")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)
}

func TestMarkSentAndSettlePayment(t *testing.T) {
	f := setupInvoiceService(t, nil)
	ctx := context.Background()
	officeID := f.node.Generate()

	invoice, err := f.svc.AssembleOneOffCharge(ctx, officeID, invoicedomain.InvoiceTypeOneOff, 500, "adjustment table rental")
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkSent(ctx, invoice.ID, "proc_123"))
	got, err := f.svc.GetByID(ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, got.Status)
	require.NotNil(t, got.ExternalReference)
	assert.Equal(t, "proc_123", *got.ExternalReference)
	assert.NotNil(t, got.SentAt)

	// Retrying the same transmission reference is a no-op.
	require.NoError(t, f.svc.MarkSent(ctx, invoice.ID, "proc_123"))
	// A different reference for an already-sent invoice is a conflict.
	assert.ErrorIs(t, f.svc.MarkSent(ctx, invoice.ID, "proc_999"), invoicedomain.ErrNotTransmittable)

	// Failure first, then a successful retry settles it.
	require.NoError(t, f.svc.SettlePayment(ctx, "proc_123", false, time.Now()))
	got, err = f.svc.GetByID(ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusFailed, got.Status)

	require.NoError(t, f.svc.SettlePayment(ctx, "proc_123", true, time.Now()))
	got, err = f.svc.GetByID(ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, got.Status)
	assert.NotNil(t, got.PaidAt)

	// A late failure event cannot demote a paid invoice.
	require.NoError(t, f.svc.SettlePayment(ctx, "proc_123", false, time.Now()))
	got, err = f.svc.GetByID(ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, got.Status)
}

func TestSettlePayment_UnknownReference(t *testing.T) {
	f := setupInvoiceService(t, nil)
	err := f.svc.SettlePayment(context.Background(), "proc_missing", true, time.Now())
	assert.ErrorIs(t, err, invoicedomain.ErrUnknownReference)
}

func TestMarkSent_UnknownInvoice(t *testing.T) {
	f := setupInvoiceService(t, nil)
	err := f.svc.MarkSent(context.Background(), f.node.Generate(), "proc_1")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestList_CursorPagination(t *testing.T) {
	f := setupInvoiceService(t, nil)
	ctx := context.Background()
	officeID := f.node.Generate()

	created := make([]snowflake.ID, 0, 5)
	for i := 0; i < 5; i++ {
		invoice, err := f.svc.AssembleOneOffCharge(ctx, officeID, invoicedomain.InvoiceTypeOneOff, 1000, "supply restock")
		require.NoError(t, err)
		created = append(created, invoice.ID)
	}

	first, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{
		OfficeID:   officeID,
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.Invoices, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{
		OfficeID:   officeID,
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.Invoices, 2)
	assert.True(t, second.HasMore)

	third, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{
		OfficeID:   officeID,
		Pagination: pagination.Pagination{PageSize: 2, PageToken: second.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, third.Invoices, 1)
	assert.False(t, third.HasMore)

	seen := make([]snowflake.ID, 0, 5)
	for _, page := range [][]invoicedomain.Invoice{first.Invoices, second.Invoices, third.Invoices} {
		for _, invoice := range page {
			seen = append(seen, invoice.ID)
		}
	}
	assert.ElementsMatch(t, created, seen)
}
