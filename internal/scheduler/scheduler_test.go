package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adjustly/adjustly/internal/clock"
	cycledomain "github.com/adjustly/adjustly/internal/cyclerun/domain"
	gatewaydomain "github.com/adjustly/adjustly/internal/gateway/domain"
	invoicedomain "github.com/adjustly/adjustly/internal/invoice/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type cycleSvcStub struct {
	calls   []string
	fail    error
	summary cycledomain.RunSummary
}

func (s *cycleSvcStub) RunCycle(_ context.Context, cycleID string, _, _ time.Time) (cycledomain.RunSummary, error) {
	s.calls = append(s.calls, cycleID)
	if s.fail != nil {
		return cycledomain.RunSummary{}, s.fail
	}
	return s.summary, nil
}

func (s *cycleSvcStub) GetRun(context.Context, string) (cycledomain.RunSummary, error) {
	return cycledomain.RunSummary{}, cycledomain.ErrRunNotFound
}

type gatewaySvcStub struct {
	pending int
	fail    error
}

func (s *gatewaySvcStub) DispatchInvoice(context.Context, snowflake.ID) error { return nil }
func (s *gatewaySvcStub) DispatchPending(context.Context, int) (int, error) {
	return s.pending, s.fail
}
func (s *gatewaySvcStub) HandlePaymentEvent(context.Context, gatewaydomain.InboundEvent) error {
	return nil
}

func setupScheduler(t *testing.T, now time.Time, cycleSvc cycledomain.Service, gatewaySvc gatewaydomain.Service, cfg Config) *Scheduler {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&invoicedomain.Invoice{}))

	s, err := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		Clock:      clock.NewFakeClock(now),
		CycleSvc:   cycleSvc,
		GatewaySvc: gatewaySvc,
		Config:     cfg,
	})
	require.NoError(t, err)
	return s
}

func TestPreviousCycle(t *testing.T) {
	tests := []struct {
		now     string
		cycleID string
		start   string
		end     string
	}{
		{"2026-08-26T10:30:00Z", "2026-07", "2026-07-01T00:00:00Z", "2026-08-01T00:00:00Z"},
		{"2026-01-15T00:00:00Z", "2025-12", "2025-12-01T00:00:00Z", "2026-01-01T00:00:00Z"},
		{"2026-03-01T00:00:00Z", "2026-02", "2026-02-01T00:00:00Z", "2026-03-01T00:00:00Z"},
	}

	for _, tt := range tests {
		now, err := time.Parse(time.RFC3339, tt.now)
		require.NoError(t, err)
		cycleID, start, end := PreviousCycle(now)
		assert.Equal(t, tt.cycleID, cycleID)
		assert.Equal(t, tt.start, start.Format(time.RFC3339))
		assert.Equal(t, tt.end, end.Format(time.RFC3339))
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 100, cfg.MaxDispatchBatchSize)
	assert.Equal(t, 72*time.Hour, cfg.StaleSentAfter)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)

	custom := Config{RunInterval: time.Hour, MaxDispatchBatchSize: 5}.withDefaults()
	assert.Equal(t, time.Hour, custom.RunInterval)
	assert.Equal(t, 5, custom.MaxDispatchBatchSize)

	assert.True(t, cfg.isJobEnabled("run_cycle"))
	disabled := Config{DisabledJobs: []string{"run_cycle"}}
	assert.False(t, disabled.isJobEnabled("run_cycle"))
	assert.True(t, disabled.isJobEnabled("dispatch_invoices"))
}

func TestRunCycleJob_UsesPreviousCalendarMonth(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2026-08-26T10:30:00Z")
	cycleSvc := &cycleSvcStub{}
	s := setupScheduler(t, now, cycleSvc, &gatewaySvcStub{}, Config{})

	require.NoError(t, s.RunCycleJob(context.Background()))
	require.Len(t, cycleSvc.calls, 1)
	assert.Equal(t, "2026-07", cycleSvc.calls[0])
}

func TestRunOnce_JoinsJobErrors(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2026-08-26T10:30:00Z")
	cycleErr := errors.New("db unreachable")
	s := setupScheduler(t, now, &cycleSvcStub{fail: cycleErr}, &gatewaySvcStub{}, Config{})

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cycleErr)
	assert.Contains(t, err.Error(), "run_cycle")
}

func TestRunOnce_DisabledJobSkipped(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2026-08-26T10:30:00Z")
	cycleSvc := &cycleSvcStub{}
	s := setupScheduler(t, now, cycleSvc, &gatewaySvcStub{}, Config{
		DisabledJobs: []string{"run_cycle"},
	})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, cycleSvc.calls)
}

func TestRunJob_TimeoutIsSoft(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2026-08-26T10:30:00Z")
	s := setupScheduler(t, now, &cycleSvcStub{}, &gatewaySvcStub{}, Config{JobTimeout: 10 * time.Millisecond})

	err := s.runJob(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReconcileStaleJob(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2026-08-26T10:30:00Z")
	s := setupScheduler(t, now, &cycleSvcStub{}, &gatewaySvcStub{}, Config{StaleSentAfter: 24 * time.Hour})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	staleRef := "proc_stale"
	sentAt := now.Add(-48 * time.Hour)
	require.NoError(t, s.db.Create(&invoicedomain.Invoice{
		ID:                node.Generate(),
		OfficeID:          node.Generate(),
		InvoiceType:       invoicedomain.InvoiceTypeOneOff,
		Status:            invoicedomain.InvoiceStatusSent,
		Currency:          "usd",
		ExternalReference: &staleRef,
		SentAt:            &sentAt,
	}).Error)

	require.NoError(t, s.ReconcileStaleJob(context.Background()))

	// Reconcile reports; it never mutates invoice state.
	var got invoicedomain.Invoice
	require.NoError(t, s.db.Where("external_reference = ?", staleRef).First(&got).Error)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, got.Status)
}
