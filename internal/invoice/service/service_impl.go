package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/adjustly/adjustly/internal/audit/domain"
	billingstatusservice "github.com/adjustly/adjustly/internal/billingstatus/service"
	"github.com/adjustly/adjustly/internal/config"
	invoicedomain "github.com/adjustly/adjustly/internal/invoice/domain"
	"github.com/adjustly/adjustly/internal/sanitize"
	"github.com/adjustly/adjustly/pkg/db/option"
	"github.com/adjustly/adjustly/pkg/db/pagination"
	"github.com/adjustly/adjustly/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Sanitizer  sanitize.Service
	BillingCfg *config.BillingConfigHolder
	AuditSvc   auditdomain.Service `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	sanitizer  sanitize.Service
	billingCfg *config.BillingConfigHolder
	auditSvc   auditdomain.Service

	invoicerepo repository.Repository[invoicedomain.Invoice]
	itemrepo    repository.Repository[invoicedomain.InvoiceLineItem]
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,

		sanitizer:  p.Sanitizer,
		billingCfg: p.BillingCfg,
		auditSvc:   p.AuditSvc,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		itemrepo:    repository.ProvideStore[invoicedomain.InvoiceLineItem](p.DB),
	}
}

func (s *Service) AssembleMonthlyInvoice(ctx context.Context, officeID snowflake.ID, cycleID string, periodStart, periodEnd time.Time) (invoicedomain.Invoice, error) {
	if officeID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidOffice
	}
	cycleID = strings.TrimSpace(cycleID)
	if cycleID == "" || !periodEnd.After(periodStart) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidPeriod
	}

	var result invoicedomain.Invoice
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findInvoiceByCycle(ctx, tx, officeID, cycleID)
		if err != nil {
			return err
		}
		if existing != nil {
			// Idempotent re-run: return the prior invoice unchanged.
			result = *existing
			return nil
		}

		patientIDs, err := billingstatusservice.ListBillableForCycleTx(ctx, tx, officeID, cycleID)
		if err != nil {
			return err
		}
		if len(patientIDs) == 0 {
			return invoicedomain.ErrNoBillableActivity
		}

		cfg := s.billingCfg.Get()
		batch, err := s.sanitizer.SanitizeActivationBatch(ctx, officeID, patientIDs, cfg.PerActivationCents)
		if err != nil {
			// SanitizationFailure rolls back the whole invoice. Never skip
			// silently: the caller records the office for manual review.
			return err
		}

		var total int64
		for _, item := range batch.Items {
			total += item.TotalPriceCents
		}

		now := time.Now().UTC()
		start := periodStart.UTC()
		end := periodEnd.UTC()
		cycle := cycleID
		invoice := invoicedomain.Invoice{
			ID:           s.genID.Generate(),
			OfficeID:     officeID,
			BillingCycle: &cycle,
			PeriodStart:  &start,
			PeriodEnd:    &end,
			InvoiceType:  invoicedomain.InvoiceTypeMonthly,
			Status:       invoicedomain.InvoiceStatusDraft,
			TotalAmount:  total,
			Currency:     cfg.Currency,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		inserted, err := s.insertInvoice(ctx, tx, invoice)
		if err != nil {
			return err
		}
		if !inserted {
			// Lost the uniqueness race; the winner's invoice is the invoice.
			winner, err := s.findInvoiceByCycle(ctx, tx, officeID, cycleID)
			if err != nil {
				return err
			}
			if winner == nil {
				return invoicedomain.ErrInvoiceNotFound
			}
			result = *winner
			return nil
		}

		for i, item := range batch.Items {
			ref := item.AnonymousReference
			if err := s.insertLineItem(ctx, tx, invoicedomain.InvoiceLineItem{
				ID:                 s.genID.Generate(),
				OfficeID:           officeID,
				InvoiceID:          invoice.ID,
				ItemType:           item.ItemType,
				Description:        item.Description,
				Quantity:           item.Quantity,
				UnitPriceCents:     item.UnitPriceCents,
				TotalPriceCents:    item.TotalPriceCents,
				AnonymousReference: &ref,
				CreatedAt:          now,
			}); err != nil {
				return err
			}
			if err := s.insertReference(ctx, tx, invoicedomain.LineItemReference{
				AnonymousReference: batch.Refs[i].AnonymousReference,
				InvoiceID:          invoice.ID,
				PatientID:          batch.Refs[i].PatientID,
				CreatedAt:          now,
			}); err != nil {
				return err
			}
		}

		// Same transaction as invoice persistence: a retry after a crash can
		// never bill these patients twice.
		for _, patientID := range patientIDs {
			if err := billingstatusservice.MarkBilledTx(ctx, tx, patientID, cycleID); err != nil {
				return err
			}
		}

		result = invoice
		created = true
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	if created {
		s.log.Info("monthly invoice assembled",
			zap.String("office_id", officeID.String()),
			zap.String("cycle_id", cycleID),
			zap.String("invoice_id", result.ID.String()),
			zap.Int64("total_amount", result.TotalAmount),
		)
		s.emitAudit(ctx, "invoice.assembled", &result, map[string]any{
			"cycle_id": cycleID,
		})
	}
	return result, nil
}

func (s *Service) AssembleOneOffCharge(ctx context.Context, officeID snowflake.ID, invoiceType invoicedomain.InvoiceType, amountCents int64, description string) (invoicedomain.Invoice, error) {
	if officeID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidOffice
	}
	if amountCents <= 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	itemType := sanitize.ItemTypeOther
	switch invoiceType {
	case invoicedomain.InvoiceTypeSetupFee:
		itemType = sanitize.ItemTypeSetupFee
	case invoicedomain.InvoiceTypeOneOff:
	default:
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	description = strings.TrimSpace(description)
	item := sanitize.LineItemInput{
		ItemType:        itemType,
		Description:     description,
		Quantity:        1,
		UnitPriceCents:  amountCents,
		TotalPriceCents: amountCents,
	}
	// Office-provided free text is outbound; it passes the same checkpoint
	// as activation batches.
	if err := sanitize.Scan(item); err != nil {
		return invoicedomain.Invoice{}, err
	}

	cfg := s.billingCfg.Get()
	now := time.Now().UTC()
	invoice := invoicedomain.Invoice{
		ID:          s.genID.Generate(),
		OfficeID:    officeID,
		InvoiceType: invoiceType,
		Status:      invoicedomain.InvoiceStatusDraft,
		TotalAmount: amountCents,
		Currency:    cfg.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
			return err
		}
		return s.insertLineItem(ctx, tx, invoicedomain.InvoiceLineItem{
			ID:              s.genID.Generate(),
			OfficeID:        officeID,
			InvoiceID:       invoice.ID,
			ItemType:        item.ItemType,
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			TotalPriceCents: item.TotalPriceCents,
			CreatedAt:       now,
		})
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.emitAudit(ctx, "invoice.one_off_created", &invoice, map[string]any{
		"amount_cents": amountCents,
	})
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	if req.OfficeID == 0 {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidOffice
	}

	filter := &invoicedomain.Invoice{OfficeID: req.OfficeID}
	if req.Status != nil {
		filter.Status = *req.Status
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	items, err := s.invoicerepo.Find(ctx, filter,
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}, Field: "created_at", Desc: true}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"id": true}, Field: "id", Desc: true}),
		option.ApplyPagination(pagination.Pagination{PageToken: req.PageToken, PageSize: pageSize}),
	)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(invoice *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoicedomain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	item, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if item == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *item, nil
}

func (s *Service) ListLineItems(ctx context.Context, invoiceID string) ([]invoicedomain.InvoiceLineItem, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	rows, err := s.itemrepo.Find(ctx, &invoicedomain.InvoiceLineItem{InvoiceID: id})
	if err != nil {
		return nil, err
	}
	items := make([]invoicedomain.InvoiceLineItem, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		items = append(items, *row)
	}
	return items, nil
}

func (s *Service) MarkSent(ctx context.Context, invoiceID snowflake.ID, externalReference string) error {
	externalReference = strings.TrimSpace(externalReference)
	if externalReference == "" {
		return invoicedomain.ErrNotTransmittable
	}

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, external_reference = ?, sent_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		invoicedomain.InvoiceStatusSent,
		externalReference,
		now,
		now,
		invoiceID,
		invoicedomain.InvoiceStatusDraft,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.emitAudit(ctx, "invoice.sent", &invoicedomain.Invoice{ID: invoiceID}, map[string]any{
			"external_reference": externalReference,
		})
		return nil
	}

	existing, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return err
	}
	if existing == nil {
		return invoicedomain.ErrInvoiceNotFound
	}
	if existing.ExternalReference != nil && *existing.ExternalReference == externalReference {
		// Retry of a transmission that already landed.
		return nil
	}
	return invoicedomain.ErrNotTransmittable
}

func (s *Service) SettlePayment(ctx context.Context, externalReference string, paid bool, at time.Time) error {
	externalReference = strings.TrimSpace(externalReference)
	if externalReference == "" {
		return invoicedomain.ErrUnknownReference
	}

	existing, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ExternalReference: &externalReference})
	if err != nil {
		return err
	}
	if existing == nil {
		return invoicedomain.ErrUnknownReference
	}

	at = at.UTC()
	if paid {
		// A FAILED invoice may still settle on a later retry; DRAFT never can.
		result := s.db.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, paid_at = ?, updated_at = ?
			 WHERE external_reference = ? AND status IN (?, ?)`,
			invoicedomain.InvoiceStatusPaid,
			at,
			at,
			externalReference,
			invoicedomain.InvoiceStatusSent,
			invoicedomain.InvoiceStatusFailed,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			s.emitAudit(ctx, "invoice.paid", existing, nil)
		}
		return nil
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE external_reference = ? AND status = ?`,
		invoicedomain.InvoiceStatusFailed,
		at,
		externalReference,
		invoicedomain.InvoiceStatusSent,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.emitAudit(ctx, "invoice.payment_failed", existing, nil)
	}
	return nil
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_type": string(invoice.InvoiceType),
		"total_amount": invoice.TotalAmount,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := invoice.ID.String()
	officeID := invoice.OfficeID
	_ = s.auditSvc.AuditLog(ctx, &officeID, "system", "billing", action, "invoice", &targetID, metadata)
}

func (s *Service) findInvoiceByCycle(ctx context.Context, tx *gorm.DB, officeID snowflake.ID, cycleID string) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT *
		 FROM invoices
		 WHERE office_id = ? AND billing_cycle = ?
		 LIMIT 1`,
		officeID,
		cycleID,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (s *Service) insertInvoice(ctx context.Context, tx *gorm.DB, invoice invoicedomain.Invoice) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, office_id, billing_cycle, period_start, period_end,
			invoice_type, status, total_amount, currency, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (office_id, billing_cycle) DO NOTHING`,
		invoice.ID,
		invoice.OfficeID,
		invoice.BillingCycle,
		invoice.PeriodStart,
		invoice.PeriodEnd,
		invoice.InvoiceType,
		invoice.Status,
		invoice.TotalAmount,
		invoice.Currency,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) insertLineItem(ctx context.Context, tx *gorm.DB, item invoicedomain.InvoiceLineItem) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO invoice_line_items (
			id, office_id, invoice_id, item_type, description,
			quantity, unit_price_cents, total_price_cents, anonymous_reference, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.OfficeID,
		item.InvoiceID,
		item.ItemType,
		item.Description,
		item.Quantity,
		item.UnitPriceCents,
		item.TotalPriceCents,
		item.AnonymousReference,
		item.CreatedAt,
	).Error
}

func (s *Service) insertReference(ctx context.Context, tx *gorm.DB, ref invoicedomain.LineItemReference) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO line_item_references (
			anonymous_reference, invoice_id, patient_id, created_at
		) VALUES (?, ?, ?, ?)`,
		ref.AnonymousReference,
		ref.InvoiceID,
		ref.PatientID,
		ref.CreatedAt,
	).Error
}
