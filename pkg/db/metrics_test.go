package db

import (
	"testing"

	"github.com/adjustly/adjustly/internal/observability/metrics"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type codeRow struct {
	ID   int64  `gorm:"primaryKey"`
	Code string `gorm:"uniqueIndex"`
}

func setupMetricsConn(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&codeRow{}))
	require.NoError(t, RegisterErrorMetrics(conn))
	return conn
}

func TestRegisterErrorMetrics_CountsDuplicateKey(t *testing.T) {
	conn := setupMetricsConn(t)
	counter := metrics.Get().DBErrors.WithLabelValues("duplicate_key")
	before := testutil.ToFloat64(counter)

	require.NoError(t, conn.Create(&codeRow{ID: 1, Code: "a"}).Error)
	err := conn.Create(&codeRow{ID: 2, Code: "a"}).Error
	require.Error(t, err)
	require.True(t, IsDuplicateKeyErr(err))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRegisterErrorMetrics_NotFoundIsNotAnError(t *testing.T) {
	conn := setupMetricsConn(t)
	counter := metrics.Get().DBErrors.WithLabelValues("not_found")
	before := testutil.ToFloat64(counter)

	var row codeRow
	err := conn.First(&row, "id = ?", 99).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.Equal(t, before, testutil.ToFloat64(counter))
}
