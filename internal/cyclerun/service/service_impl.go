package service

import (
	"context"
	"errors"
	"strings"
	"time"

	cycledomain "github.com/adjustly/adjustly/internal/cyclerun/domain"
	invoicedomain "github.com/adjustly/adjustly/internal/invoice/domain"
	"github.com/adjustly/adjustly/internal/observability/metrics"
	officedomain "github.com/adjustly/adjustly/internal/office/domain"
	"github.com/adjustly/adjustly/internal/sanitize"
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
	InvoiceSvc invoicedomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	invoiceSvc invoicedomain.Service

	officerepo repository.Repository[officedomain.Office]
	runrepo    repository.Repository[cycledomain.CycleRun]
	resultrepo repository.Repository[cycledomain.CycleOfficeResult]
}

func NewService(p ServiceParam) cycledomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("cyclerun.service"),
		genID:      p.GenID,
		invoiceSvc: p.InvoiceSvc,

		officerepo: repository.ProvideStore[officedomain.Office](p.DB),
		runrepo:    repository.ProvideStore[cycledomain.CycleRun](p.DB),
		resultrepo: repository.ProvideStore[cycledomain.CycleOfficeResult](p.DB),
	}
}

func (s *Service) RunCycle(ctx context.Context, cycleID string, periodStart, periodEnd time.Time) (cycledomain.RunSummary, error) {
	cycleID = strings.TrimSpace(cycleID)
	if cycleID == "" || !periodEnd.After(periodStart) {
		return cycledomain.RunSummary{}, cycledomain.ErrInvalidCycle
	}

	run, err := s.ensureRun(ctx, cycleID, periodStart, periodEnd)
	if err != nil {
		return cycledomain.RunSummary{}, err
	}

	offices, err := s.officerepo.Find(ctx, &officedomain.Office{})
	if err != nil {
		return cycledomain.RunSummary{}, err
	}

	prior, err := s.resultrepo.Find(ctx, &cycledomain.CycleOfficeResult{CycleID: cycleID})
	if err != nil {
		return cycledomain.RunSummary{}, err
	}
	settled := make(map[snowflake.ID]bool, len(prior))
	for _, res := range prior {
		if res == nil {
			continue
		}
		// FAILED offices stay eligible; everything else is settled and a
		// re-run must not touch it.
		if res.Status != cycledomain.OfficeResultFailed {
			settled[res.OfficeID] = true
		}
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE cycle_runs
		 SET status = ?, started_at = COALESCE(started_at, ?), offices_total = ?, updated_at = ?
		 WHERE cycle_id = ?`,
		cycledomain.RunStatusInProgress, now, len(offices), now, cycleID,
	).Error; err != nil {
		return cycledomain.RunSummary{}, err
	}

	m := metrics.Get()
	for _, office := range offices {
		if office == nil || settled[office.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return cycledomain.RunSummary{}, err
		}

		invoice, err := s.invoiceSvc.AssembleMonthlyInvoice(ctx, office.ID, cycleID, periodStart, periodEnd)
		switch {
		case err == nil:
			m.InvoicesAssembled.WithLabelValues(string(invoice.InvoiceType)).Inc()
			if err := s.recordResult(ctx, cycleID, office.ID, cycledomain.OfficeResultInvoiced, &invoice.ID, nil); err != nil {
				return cycledomain.RunSummary{}, err
			}
		case errors.Is(err, invoicedomain.ErrNoBillableActivity):
			if err := s.recordResult(ctx, cycleID, office.ID, cycledomain.OfficeResultSkipped, nil, nil); err != nil {
				return cycledomain.RunSummary{}, err
			}
		default:
			// One office failing must not stall the rest of the run. The row
			// keeps the error for the retry pass and for manual review.
			m.OfficesFailed.Inc()
			if errors.Is(err, sanitize.ErrSanitizationFailure) {
				m.SanitizationFailures.Inc()
			}
			s.log.Error("office cycle invoice failed",
				zap.String("cycle_id", cycleID),
				zap.String("office_id", office.ID.String()),
				zap.Error(err),
			)
			msg := err.Error()
			if err := s.recordResult(ctx, cycleID, office.ID, cycledomain.OfficeResultFailed, nil, &msg); err != nil {
				return cycledomain.RunSummary{}, err
			}
		}
	}

	summary, err := s.finalizeRun(ctx, run.ID, cycleID)
	if err != nil {
		return cycledomain.RunSummary{}, err
	}

	s.log.Info("cycle run finished",
		zap.String("cycle_id", cycleID),
		zap.String("status", string(summary.Run.Status)),
		zap.Int64("offices_billed", summary.Run.OfficesBilled),
		zap.Int64("offices_skipped", summary.Run.OfficesSkipped),
		zap.Int64("offices_failed", summary.Run.OfficesFailed),
	)
	return summary, nil
}

func (s *Service) GetRun(ctx context.Context, cycleID string) (cycledomain.RunSummary, error) {
	run, err := s.runrepo.FindOne(ctx, &cycledomain.CycleRun{CycleID: cycleID})
	if err != nil {
		return cycledomain.RunSummary{}, err
	}
	if run == nil {
		return cycledomain.RunSummary{}, cycledomain.ErrRunNotFound
	}
	results, err := s.loadResults(ctx, cycleID)
	if err != nil {
		return cycledomain.RunSummary{}, err
	}
	return cycledomain.RunSummary{Run: *run, Results: results}, nil
}

func (s *Service) ensureRun(ctx context.Context, cycleID string, periodStart, periodEnd time.Time) (cycledomain.CycleRun, error) {
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO cycle_runs (
			id, cycle_id, status, period_start, period_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cycle_id) DO NOTHING`,
		s.genID.Generate(), cycleID, cycledomain.RunStatusPending,
		periodStart.UTC(), periodEnd.UTC(), now, now,
	).Error; err != nil {
		return cycledomain.CycleRun{}, err
	}

	run, err := s.runrepo.FindOne(ctx, &cycledomain.CycleRun{CycleID: cycleID})
	if err != nil {
		return cycledomain.CycleRun{}, err
	}
	if run == nil {
		return cycledomain.CycleRun{}, cycledomain.ErrRunNotFound
	}
	return *run, nil
}

func (s *Service) recordResult(ctx context.Context, cycleID string, officeID snowflake.ID, status cycledomain.OfficeResultStatus, invoiceID *snowflake.ID, lastError *string) error {
	now := time.Now().UTC()
	var resolvedAt *time.Time
	if status != cycledomain.OfficeResultFailed {
		resolvedAt = &now
	}
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO cycle_office_results (
			id, cycle_id, office_id, status, invoice_id, last_error, attempts, resolved_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (cycle_id, office_id) DO UPDATE SET
			status = ?,
			invoice_id = ?,
			last_error = ?,
			attempts = cycle_office_results.attempts + 1,
			resolved_at = ?,
			updated_at = ?`,
		s.genID.Generate(), cycleID, officeID, status, invoiceID, lastError, resolvedAt, now, now,
		status, invoiceID, lastError, resolvedAt, now,
	).Error
}

func (s *Service) finalizeRun(ctx context.Context, runID snowflake.ID, cycleID string) (cycledomain.RunSummary, error) {
	results, err := s.loadResults(ctx, cycleID)
	if err != nil {
		return cycledomain.RunSummary{}, err
	}

	var billed, skipped, failed int64
	for _, res := range results {
		switch res.Status {
		case cycledomain.OfficeResultInvoiced:
			billed++
		case cycledomain.OfficeResultSkipped:
			skipped++
		case cycledomain.OfficeResultFailed:
			failed++
		}
	}

	status := cycledomain.RunStatusCompleted
	if failed > 0 {
		status = cycledomain.RunStatusPartiallyFailed
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE cycle_runs
		 SET status = ?, offices_billed = ?, offices_skipped = ?, offices_failed = ?,
		     completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		status, billed, skipped, failed, now, now, runID,
	).Error; err != nil {
		return cycledomain.RunSummary{}, err
	}

	run, err := s.runrepo.FindOne(ctx, &cycledomain.CycleRun{ID: runID})
	if err != nil {
		return cycledomain.RunSummary{}, err
	}
	if run == nil {
		return cycledomain.RunSummary{}, cycledomain.ErrRunNotFound
	}
	return cycledomain.RunSummary{Run: *run, Results: results}, nil
}

func (s *Service) loadResults(ctx context.Context, cycleID string) ([]cycledomain.CycleOfficeResult, error) {
	rows, err := s.resultrepo.Find(ctx, &cycledomain.CycleOfficeResult{CycleID: cycleID})
	if err != nil {
		return nil, err
	}
	results := make([]cycledomain.CycleOfficeResult, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		results = append(results, *row)
	}
	return results, nil
}
