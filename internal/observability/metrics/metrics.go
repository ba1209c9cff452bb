package metrics

import (
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

type Metrics struct {
	JobRuns     *prometheus.CounterVec
	JobErrors   *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	InvoicesAssembled    *prometheus.CounterVec
	OfficesFailed        prometheus.Counter
	SanitizationFailures prometheus.Counter
	GatewayDispatches    *prometheus.CounterVec
	PaymentEvents        *prometheus.CounterVec
	DBErrors             *prometheus.CounterVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Get returns the process-wide metrics set, registering collectors on first
// use.
func Get() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			JobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "adjustly",
				Name:      "job_runs_total",
				Help:      "Scheduler job executions by outcome.",
			}, []string{"job", "status"}),
			JobErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "adjustly",
				Name:      "job_errors_total",
				Help:      "Scheduler job errors by job name.",
			}, []string{"job"}),
			JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "adjustly",
				Name:      "job_duration_seconds",
				Help:      "Scheduler job duration.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			}, []string{"job"}),
			InvoicesAssembled: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "adjustly",
				Name:      "invoices_assembled_total",
				Help:      "Invoices assembled by type.",
			}, []string{"type"}),
			OfficesFailed: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "adjustly",
				Name:      "cycle_offices_failed_total",
				Help:      "Offices whose cycle invoice assembly failed.",
			}),
			SanitizationFailures: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "adjustly",
				Name:      "sanitization_failures_total",
				Help:      "Outbound payloads rejected by the sanitization checkpoint.",
			}),
			GatewayDispatches: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "adjustly",
				Name:      "gateway_dispatches_total",
				Help:      "Invoice transmissions to the payment gateway by outcome.",
			}, []string{"status"}),
			PaymentEvents: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "adjustly",
				Name:      "payment_events_total",
				Help:      "Inbound payment gateway events by type and outcome.",
			}, []string{"event_type", "status"}),
			DBErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "adjustly",
				Name:      "db_errors_total",
				Help:      "Database errors by class.",
			}, []string{"class"}),
		}
	})
	return metrics
}

// ClassifyDBError buckets a database error for the db_errors_total counter.
func ClassifyDBError(err error) string {
	if err == nil {
		return ""
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return "duplicate_key"
		case pgErr.Code == "40001":
			return "serialization"
		case pgErr.Code[:2] == "08":
			return "connection"
		default:
			return "pg_" + pgErr.Code
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "duplicate_key"
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "not_found"
	}
	return "other"
}
