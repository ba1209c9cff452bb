package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adjustly/adjustly/internal/clock"
	cycledomain "github.com/adjustly/adjustly/internal/cyclerun/domain"
	gatewaydomain "github.com/adjustly/adjustly/internal/gateway/domain"
	invoicedomain "github.com/adjustly/adjustly/internal/invoice/domain"
	"github.com/adjustly/adjustly/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	CycleSvc   cycledomain.Service
	GatewaySvc gatewaydomain.Service
	Locker     *Locker `optional:"true"`
	Config     Config  `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	cycleSvc   cycledomain.Service
	gatewaySvc gatewaydomain.Service
	locker     *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.CycleSvc == nil || p.GatewaySvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		cycleSvc:   p.CycleSvc,
		gatewaySvc: p.GatewaySvc,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	held, release, err := s.locker.Acquire(ctx, name, s.cfg.JobTimeout)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !held {
		s.log.Debug("job skipped, lock held elsewhere", zap.String("job", name))
		return nil
	}
	defer release()

	m := metrics.Get()
	err = fn(ctx)
	m.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		m.JobRuns.WithLabelValues(name, "ok").Inc()
		return nil
	}

	// A deadline is a soft failure; the next tick resumes where this pass
	// left off.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		m.JobRuns.WithLabelValues(name, "timeout").Inc()
		s.log.Warn("job timed out", zap.String("job", name), zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}

	m.JobRuns.WithLabelValues(name, "error").Inc()
	m.JobErrors.WithLabelValues(name).Inc()
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"run_cycle", s.RunCycleJob},
		{"dispatch_invoices", s.DispatchInvoicesJob},
		{"reconcile_stale", s.ReconcileStaleJob},
	}

	for _, job := range jobs {
		if !s.cfg.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.RunInterval))
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Error("scheduler pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycleJob closes the previous calendar month once it has ended. Re-runs
// are absorbed by the cycle run's own idempotency.
func (s *Scheduler) RunCycleJob(ctx context.Context) error {
	cycleID, periodStart, periodEnd := PreviousCycle(s.clock.Now())
	summary, err := s.cycleSvc.RunCycle(ctx, cycleID, periodStart, periodEnd)
	if err != nil {
		return err
	}
	if summary.Run.OfficesFailed > 0 {
		s.log.Warn("cycle run left failed offices",
			zap.String("cycle_id", cycleID),
			zap.Int64("offices_failed", summary.Run.OfficesFailed),
		)
	}
	return nil
}

func (s *Scheduler) DispatchInvoicesJob(ctx context.Context) error {
	sent, err := s.gatewaySvc.DispatchPending(ctx, s.cfg.MaxDispatchBatchSize)
	if sent > 0 {
		s.log.Info("invoices dispatched", zap.Int("count", sent))
	}
	return err
}

// ReconcileStaleJob flags invoices stuck in SENT past the configured window.
// It never mutates them; settlement only ever comes from payment events.
func (s *Scheduler) ReconcileStaleJob(ctx context.Context) error {
	cutoff := s.clock.Now().UTC().Add(-s.cfg.StaleSentAfter)

	type staleInvoice struct {
		ID                string
		OfficeID          string
		ExternalReference string
		SentAt            time.Time
	}
	var stale []staleInvoice
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, office_id, external_reference, sent_at
		 FROM invoices
		 WHERE status = ? AND sent_at < ?
		 ORDER BY sent_at ASC`,
		invoicedomain.InvoiceStatusSent,
		cutoff,
	).Scan(&stale).Error; err != nil {
		return err
	}

	for _, invoice := range stale {
		s.log.Warn("invoice awaiting payment past window",
			zap.String("invoice_id", invoice.ID),
			zap.String("office_id", invoice.OfficeID),
			zap.String("external_reference", invoice.ExternalReference),
			zap.Time("sent_at", invoice.SentAt),
		)
	}
	return nil
}

// PreviousCycle identifies the most recently completed calendar month as of
// now. Months are UTC-bounded; the cycle id for March 2026 is "2026-03".
func PreviousCycle(now time.Time) (string, time.Time, time.Time) {
	now = now.UTC()
	periodEnd := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodStart := periodEnd.AddDate(0, -1, 0)
	return periodStart.Format("2006-01"), periodStart, periodEnd
}
