package sanitize

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSanitizeActivationBatch(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewService(ServiceParam{Log: zap.NewNop()})

	officeID := node.Generate()
	patients := []snowflake.ID{node.Generate(), node.Generate(), node.Generate()}

	batch, err := svc.SanitizeActivationBatch(context.Background(), officeID, patients, 200)
	require.NoError(t, err)
	require.Len(t, batch.Items, 3)
	require.Len(t, batch.Refs, 3)

	seen := make(map[string]bool)
	for i, item := range batch.Items {
		assert.Equal(t, ItemTypePatientActivation, item.ItemType)
		assert.Equal(t, "Patient Activation", item.Description)
		assert.Equal(t, int64(1), item.Quantity)
		assert.Equal(t, int64(200), item.UnitPriceCents)
		assert.Equal(t, int64(200), item.TotalPriceCents)

		// The reference is a parseable uuid, unique per item, and carries no
		// trace of the patient id.
		_, err := uuid.Parse(item.AnonymousReference)
		assert.NoError(t, err)
		assert.False(t, seen[item.AnonymousReference])
		seen[item.AnonymousReference] = true
		assert.NotContains(t, item.AnonymousReference, patients[i].String())

		assert.Equal(t, item.AnonymousReference, batch.Refs[i].AnonymousReference)
		assert.Equal(t, patients[i], batch.Refs[i].PatientID)
	}
}

func TestSanitizeActivationBatch_ReferencesDifferAcrossRuns(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewService(ServiceParam{Log: zap.NewNop()})

	officeID := node.Generate()
	patients := []snowflake.ID{node.Generate()}

	first, err := svc.SanitizeActivationBatch(context.Background(), officeID, patients, 200)
	require.NoError(t, err)
	second, err := svc.SanitizeActivationBatch(context.Background(), officeID, patients, 200)
	require.NoError(t, err)

	// Same patient, fresh token every time: references are random, never
	// derived.
	assert.NotEqual(t, first.Items[0].AnonymousReference, second.Items[0].AnonymousReference)
}

func TestSanitizeActivationBatch_Empty(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewService(ServiceParam{Log: zap.NewNop()})

	batch, err := svc.SanitizeActivationBatch(context.Background(), node.Generate(), nil, 200)
	require.NoError(t, err)
	assert.Empty(t, batch.Items)
	assert.Empty(t, batch.Refs)
}
