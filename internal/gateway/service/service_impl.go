package service

import (
	"context"
	"errors"
	"strings"
	"time"

	gatewaydomain "github.com/adjustly/adjustly/internal/gateway/domain"
	invoicedomain "github.com/adjustly/adjustly/internal/invoice/domain"
	"github.com/adjustly/adjustly/internal/observability/metrics"
	"github.com/adjustly/adjustly/internal/sanitize"
	"github.com/adjustly/adjustly/pkg/db/option"
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
	Adapter    gatewaydomain.Adapter
	InvoiceSvc invoicedomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	adapter    gatewaydomain.Adapter
	invoiceSvc invoicedomain.Service

	invoicerepo repository.Repository[invoicedomain.Invoice]
	itemrepo    repository.Repository[invoicedomain.InvoiceLineItem]
}

func NewService(p ServiceParam) gatewaydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("gateway.service"),
		genID:      p.GenID,
		adapter:    p.Adapter,
		invoiceSvc: p.InvoiceSvc,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		itemrepo:    repository.ProvideStore[invoicedomain.InvoiceLineItem](p.DB),
	}
}

func (s *Service) DispatchInvoice(ctx context.Context, invoiceID snowflake.ID) error {
	invoice, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return err
	}
	if invoice == nil {
		return invoicedomain.ErrInvoiceNotFound
	}
	if invoice.Status != invoicedomain.InvoiceStatusDraft {
		return invoicedomain.ErrNotTransmittable
	}

	payload, err := s.buildPayload(ctx, invoice)
	if err != nil {
		return err
	}

	m := metrics.Get()
	externalRef, err := s.adapter.TransmitInvoice(ctx, payload)
	if err != nil {
		// Invoice stays DRAFT; the next dispatch pass picks it up again.
		m.GatewayDispatches.WithLabelValues("failed").Inc()
		s.log.Warn("invoice transmission failed",
			zap.String("invoice_id", invoiceID.String()),
			zap.Error(err),
		)
		return err
	}

	if err := s.invoiceSvc.MarkSent(ctx, invoiceID, externalRef); err != nil {
		return err
	}
	m.GatewayDispatches.WithLabelValues("sent").Inc()
	return nil
}

func (s *Service) DispatchPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	drafts, err := s.invoicerepo.Find(ctx,
		&invoicedomain.Invoice{Status: invoicedomain.InvoiceStatusDraft},
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}, Field: "created_at"}),
		option.WithLimit(limit),
	)
	if err != nil {
		return 0, err
	}

	var sent int
	var errs []error
	for _, draft := range drafts {
		if draft == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sent, errors.Join(append(errs, err)...)
		}
		if err := s.DispatchInvoice(ctx, draft.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *Service) HandlePaymentEvent(ctx context.Context, event gatewaydomain.InboundEvent) error {
	event.ExternalEventID = strings.TrimSpace(event.ExternalEventID)
	event.ExternalReference = strings.TrimSpace(event.ExternalReference)
	if event.ExternalEventID == "" || event.ExternalReference == "" {
		return gatewaydomain.ErrInvalidEvent
	}

	var paid bool
	switch event.EventType {
	case gatewaydomain.EventTypePaymentSucceeded:
		paid = true
	case gatewaydomain.EventTypePaymentFailed:
		paid = false
	default:
		return gatewaydomain.ErrUnknownEventType
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	m := metrics.Get()
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, external_event_id, event_type, external_reference,
			amount_cents, currency, occurred_at, raw_payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_event_id) DO NOTHING`,
		s.genID.Generate(), event.ExternalEventID, event.EventType, event.ExternalReference,
		event.AmountCents, event.Currency, occurredAt.UTC(), event.RawPayload, now,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Redelivery. Skip it only when the first delivery settled; an event
		// whose settle failed stays unprocessed and is applied again here.
		var processed int64
		if err := s.db.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM payment_events
			 WHERE external_event_id = ? AND processed_at IS NOT NULL`,
			event.ExternalEventID,
		).Scan(&processed).Error; err != nil {
			return err
		}
		if processed > 0 {
			m.PaymentEvents.WithLabelValues(event.EventType, "duplicate").Inc()
			s.log.Info("duplicate payment event ignored",
				zap.String("external_event_id", event.ExternalEventID),
			)
			return nil
		}
	}

	if err := s.invoiceSvc.SettlePayment(ctx, event.ExternalReference, paid, occurredAt); err != nil {
		m.PaymentEvents.WithLabelValues(event.EventType, "error").Inc()
		return err
	}

	if err := s.db.WithContext(ctx).Exec(
		`UPDATE payment_events SET processed_at = ? WHERE external_event_id = ? AND processed_at IS NULL`,
		time.Now().UTC(), event.ExternalEventID,
	).Error; err != nil {
		return err
	}
	m.PaymentEvents.WithLabelValues(event.EventType, "applied").Inc()
	return nil
}

// buildPayload maps an invoice onto the outbound wire shape and runs the
// sanitization checkpoint over the result. Fail closed: nothing is
// transmitted if the scan rejects it.
func (s *Service) buildPayload(ctx context.Context, invoice *invoicedomain.Invoice) (gatewaydomain.SanitizedInvoicePayload, error) {
	rows, err := s.itemrepo.Find(ctx, &invoicedomain.InvoiceLineItem{InvoiceID: invoice.ID})
	if err != nil {
		return gatewaydomain.SanitizedInvoicePayload{}, err
	}

	payload := gatewaydomain.SanitizedInvoicePayload{
		InvoiceID:        invoice.ID.String(),
		OfficeID:         invoice.OfficeID.String(),
		InvoiceType:      string(invoice.InvoiceType),
		TotalAmountCents: invoice.TotalAmount,
		Currency:         invoice.Currency,
		LineItems:        make([]gatewaydomain.SanitizedLineItem, 0, len(rows)),
	}
	if invoice.BillingCycle != nil {
		payload.BillingCycle = *invoice.BillingCycle
	}
	for _, row := range rows {
		if row == nil {
			continue
		}
		item := gatewaydomain.SanitizedLineItem{
			ItemType:        string(row.ItemType),
			Description:     row.Description,
			Quantity:        row.Quantity,
			UnitPriceCents:  row.UnitPriceCents,
			TotalPriceCents: row.TotalPriceCents,
		}
		if row.AnonymousReference != nil {
			item.AnonymousReference = *row.AnonymousReference
		}
		payload.LineItems = append(payload.LineItems, item)
	}

	if err := sanitize.Scan(payload); err != nil {
		metrics.Get().SanitizationFailures.Inc()
		return gatewaydomain.SanitizedInvoicePayload{}, err
	}
	return payload, nil
}
