package service

import (
	"context"
	"testing"
	"time"

	billingstatusdomain "github.com/adjustly/adjustly/internal/billingstatus/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupStatusService(t *testing.T) (billingstatusdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&billingstatusdomain.PatientBillingStatus{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{DB: db, Log: zap.NewNop(), GenID: node})
	return svc, db, node
}

func TestEnsureStatus_Idempotent(t *testing.T) {
	svc, db, node := setupStatusService(t)
	ctx := context.Background()
	patientID := node.Generate()
	officeID := node.Generate()

	require.NoError(t, svc.EnsureStatus(ctx, patientID, officeID))
	require.NoError(t, svc.EnsureStatus(ctx, patientID, officeID))

	var count int64
	db.Model(&billingstatusdomain.PatientBillingStatus{}).Where("patient_id = ?", patientID).Count(&count)
	assert.Equal(t, int64(1), count)

	status, err := svc.GetStatus(ctx, patientID)
	require.NoError(t, err)
	assert.False(t, status.IsActiveForBilling)
	assert.Nil(t, status.LastBilledCycle)
}

func TestActivate(t *testing.T) {
	svc, _, node := setupStatusService(t)
	ctx := context.Background()
	patientID := node.Generate()
	officeID := node.Generate()
	now := time.Now().UTC()

	require.NoError(t, svc.EnsureStatus(ctx, patientID, officeID))
	require.NoError(t, svc.Activate(ctx, patientID, officeID, now))

	status, err := svc.GetStatus(ctx, patientID)
	require.NoError(t, err)
	assert.True(t, status.IsActiveForBilling)
	require.NotNil(t, status.ActivatedAt)

	// Second activation is rejected, not silently absorbed.
	err = svc.Activate(ctx, patientID, officeID, now)
	assert.ErrorIs(t, err, billingstatusdomain.ErrAlreadyActive)
}

func TestActivate_UnknownPatient(t *testing.T) {
	svc, _, node := setupStatusService(t)
	err := svc.Activate(context.Background(), node.Generate(), node.Generate(), time.Now())
	assert.ErrorIs(t, err, billingstatusdomain.ErrStatusNotFound)
}

func TestDeactivate(t *testing.T) {
	svc, _, node := setupStatusService(t)
	ctx := context.Background()
	patientID := node.Generate()
	officeID := node.Generate()
	now := time.Now().UTC()

	require.NoError(t, svc.EnsureStatus(ctx, patientID, officeID))

	// Deactivating an inactive patient is a conflict.
	err := svc.Deactivate(ctx, patientID, now)
	assert.ErrorIs(t, err, billingstatusdomain.ErrNotActive)

	require.NoError(t, svc.Activate(ctx, patientID, officeID, now))
	require.NoError(t, svc.Deactivate(ctx, patientID, now))

	status, err := svc.GetStatus(ctx, patientID)
	require.NoError(t, err)
	assert.False(t, status.IsActiveForBilling)
	require.NotNil(t, status.DeactivatedAt)
	// ActivatedAt keeps its history.
	assert.NotNil(t, status.ActivatedAt)
}

func TestMarkBilled_Idempotent(t *testing.T) {
	svc, _, node := setupStatusService(t)
	ctx := context.Background()
	patientID := node.Generate()
	officeID := node.Generate()

	require.NoError(t, svc.EnsureStatus(ctx, patientID, officeID))
	require.NoError(t, svc.Activate(ctx, patientID, officeID, time.Now()))

	require.NoError(t, svc.MarkBilled(ctx, patientID, "2026-07"))
	require.NoError(t, svc.MarkBilled(ctx, patientID, "2026-07"))

	status, err := svc.GetStatus(ctx, patientID)
	require.NoError(t, err)
	require.NotNil(t, status.LastBilledCycle)
	assert.Equal(t, "2026-07", *status.LastBilledCycle)
}

func TestListBillableForCycle(t *testing.T) {
	svc, _, node := setupStatusService(t)
	ctx := context.Background()
	officeID := node.Generate()
	now := time.Now().UTC()

	active := node.Generate()
	inactive := node.Generate()
	alreadyBilled := node.Generate()
	reactivated := node.Generate()

	for _, patientID := range []snowflake.ID{active, inactive, alreadyBilled, reactivated} {
		require.NoError(t, svc.EnsureStatus(ctx, patientID, officeID))
	}
	require.NoError(t, svc.Activate(ctx, active, officeID, now))

	require.NoError(t, svc.Activate(ctx, alreadyBilled, officeID, now))
	require.NoError(t, svc.MarkBilled(ctx, alreadyBilled, "2026-07"))

	// Billed last cycle, deactivated, then reactivated: billable again this
	// cycle.
	require.NoError(t, svc.Activate(ctx, reactivated, officeID, now))
	require.NoError(t, svc.MarkBilled(ctx, reactivated, "2026-06"))
	require.NoError(t, svc.Deactivate(ctx, reactivated, now))
	require.NoError(t, svc.Activate(ctx, reactivated, officeID, now))

	billable, err := svc.ListBillableForCycle(ctx, officeID, "2026-07")
	require.NoError(t, err)
	assert.ElementsMatch(t, []snowflake.ID{active, reactivated}, billable)
}

func TestListBillableForCycle_ToggleBilledOnce(t *testing.T) {
	svc, _, node := setupStatusService(t)
	ctx := context.Background()
	officeID := node.Generate()
	patientID := node.Generate()
	now := time.Now().UTC()

	require.NoError(t, svc.EnsureStatus(ctx, patientID, officeID))

	// Toggle within the cycle, then billed. Later toggles in the same cycle
	// must not re-qualify the patient.
	require.NoError(t, svc.Activate(ctx, patientID, officeID, now))
	require.NoError(t, svc.Deactivate(ctx, patientID, now))
	require.NoError(t, svc.Activate(ctx, patientID, officeID, now))
	require.NoError(t, svc.MarkBilled(ctx, patientID, "2026-07"))

	require.NoError(t, svc.Deactivate(ctx, patientID, now))
	require.NoError(t, svc.Activate(ctx, patientID, officeID, now))

	billable, err := svc.ListBillableForCycle(ctx, officeID, "2026-07")
	require.NoError(t, err)
	assert.Empty(t, billable)

	// The next cycle picks them up again.
	billable, err = svc.ListBillableForCycle(ctx, officeID, "2026-08")
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{patientID}, billable)
}

func TestListBillableForCycle_StableOrder(t *testing.T) {
	svc, _, node := setupStatusService(t)
	ctx := context.Background()
	officeID := node.Generate()
	now := time.Now().UTC()

	var patients []snowflake.ID
	for i := 0; i < 5; i++ {
		patientID := node.Generate()
		patients = append(patients, patientID)
		require.NoError(t, svc.EnsureStatus(ctx, patientID, officeID))
		require.NoError(t, svc.Activate(ctx, patientID, officeID, now))
	}

	first, err := svc.ListBillableForCycle(ctx, officeID, "2026-07")
	require.NoError(t, err)
	second, err := svc.ListBillableForCycle(ctx, officeID, "2026-07")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, len(patients))
}
