package db

import (
	"errors"

	"github.com/adjustly/adjustly/internal/observability/metrics"
	"gorm.io/gorm"
)

// RegisterErrorMetrics counts every failed statement on the shared
// db_errors_total counter, bucketed by error class. Not-found is a normal
// lookup outcome, not an error.
func RegisterErrorMetrics(conn *gorm.DB) error {
	count := func(db *gorm.DB) {
		if db.Error == nil || errors.Is(db.Error, gorm.ErrRecordNotFound) {
			return
		}
		class := metrics.ClassifyDBError(db.Error)
		if class == "other" && IsDuplicateKeyErr(db.Error) {
			// Dialects without error translation surface unique violations
			// as raw driver errors.
			class = "duplicate_key"
		}
		metrics.Get().DBErrors.WithLabelValues(class).Inc()
	}

	if err := conn.Callback().Create().After("gorm:create").Register("adjustly:metrics:create", count); err != nil {
		return err
	}
	if err := conn.Callback().Query().After("gorm:query").Register("adjustly:metrics:query", count); err != nil {
		return err
	}
	if err := conn.Callback().Update().After("gorm:update").Register("adjustly:metrics:update", count); err != nil {
		return err
	}
	if err := conn.Callback().Delete().After("gorm:delete").Register("adjustly:metrics:delete", count); err != nil {
		return err
	}
	if err := conn.Callback().Row().After("gorm:row").Register("adjustly:metrics:row", count); err != nil {
		return err
	}
	return conn.Callback().Raw().After("gorm:raw").Register("adjustly:metrics:raw", count)
}
