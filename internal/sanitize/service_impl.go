package sanitize

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const activationDescription = "Patient Activation"

type ServiceParam struct {
	fx.In

	Log *zap.Logger
}

type service struct {
	log *zap.Logger
}

func NewService(p ServiceParam) Service {
	return &service{
		log: p.Log.Named("sanitize.service"),
	}
}

func (s *service) SanitizeActivationBatch(ctx context.Context, officeID snowflake.ID, patientIDs []snowflake.ID, unitPriceCents int64) (Batch, error) {
	_ = ctx

	batch := Batch{
		Items: make([]LineItemInput, 0, len(patientIDs)),
		Refs:  make([]Reference, 0, len(patientIDs)),
	}
	for _, patientID := range patientIDs {
		token := uuid.NewString()
		batch.Items = append(batch.Items, LineItemInput{
			ItemType:           ItemTypePatientActivation,
			Description:        activationDescription,
			Quantity:           1,
			UnitPriceCents:     unitPriceCents,
			TotalPriceCents:    unitPriceCents,
			AnonymousReference: token,
		})
		batch.Refs = append(batch.Refs, Reference{
			AnonymousReference: token,
			PatientID:          patientID,
		})
	}

	// Fail closed: the batch never leaves this boundary unverified, even
	// though every emitted field is constant or generated.
	if err := Scan(batch.Items); err != nil {
		s.log.Error("activation batch failed PII scan",
			zap.String("office_id", officeID.String()),
			zap.Int("items", len(batch.Items)),
		)
		return Batch{}, err
	}

	return batch, nil
}
