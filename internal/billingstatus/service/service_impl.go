package service

import (
	"context"
	"time"

	billingstatusdomain "github.com/adjustly/adjustly/internal/billingstatus/domain"
	"github.com/adjustly/adjustly/pkg/db"
	"github.com/adjustly/adjustly/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	statusrepo repository.Repository[billingstatusdomain.PatientBillingStatus]
}

func NewService(p ServiceParam) billingstatusdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("billingstatus.service"),

		statusrepo: repository.ProvideStore[billingstatusdomain.PatientBillingStatus](p.DB),
	}
}

func (s *Service) EnsureStatus(ctx context.Context, patientID, officeID snowflake.ID) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO patient_billing_status (
			patient_id, office_id, is_active_for_billing, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (patient_id) DO NOTHING`,
		patientID,
		officeID,
		false,
		now,
		now,
	).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// Activate flips the row to active with a single conditional UPDATE. The
// WHERE clause is the concurrency guard: two racing activations resolve to
// one winner and one ErrAlreadyActive without holding row locks.
func (s *Service) Activate(ctx context.Context, patientID, officeID snowflake.ID, at time.Time) error {
	at = at.UTC()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE patient_billing_status
		 SET is_active_for_billing = ?, activated_at = ?, updated_at = ?
		 WHERE patient_id = ? AND is_active_for_billing = ?`,
		true,
		at,
		at,
		patientID,
		false,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("patient activated for billing",
			zap.String("patient_id", patientID.String()),
			zap.String("office_id", officeID.String()),
		)
		return nil
	}

	existing, err := s.statusrepo.FindOne(ctx, &billingstatusdomain.PatientBillingStatus{PatientID: patientID})
	if err != nil {
		return err
	}
	if existing == nil {
		return billingstatusdomain.ErrStatusNotFound
	}
	return billingstatusdomain.ErrAlreadyActive
}

func (s *Service) Deactivate(ctx context.Context, patientID snowflake.ID, at time.Time) error {
	at = at.UTC()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE patient_billing_status
		 SET is_active_for_billing = ?, deactivated_at = ?, updated_at = ?
		 WHERE patient_id = ? AND is_active_for_billing = ?`,
		false,
		at,
		at,
		patientID,
		true,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("patient deactivated for billing", zap.String("patient_id", patientID.String()))
		return nil
	}

	existing, err := s.statusrepo.FindOne(ctx, &billingstatusdomain.PatientBillingStatus{PatientID: patientID})
	if err != nil {
		return err
	}
	if existing == nil {
		return billingstatusdomain.ErrStatusNotFound
	}
	return billingstatusdomain.ErrNotActive
}

func (s *Service) MarkBilled(ctx context.Context, patientID snowflake.ID, cycleID string) error {
	return MarkBilledTx(ctx, s.db, patientID, cycleID)
}

// MarkBilledTx records the billed cycle inside the caller's transaction so
// invoice persistence and mark-billed commit or roll back together. Calling
// it twice with the same cycle is a no-op.
func MarkBilledTx(ctx context.Context, tx *gorm.DB, patientID snowflake.ID, cycleID string) error {
	now := time.Now().UTC()
	return tx.WithContext(ctx).Exec(
		`UPDATE patient_billing_status
		 SET last_billed_cycle = ?, updated_at = ?
		 WHERE patient_id = ?
		   AND (last_billed_cycle IS NULL OR last_billed_cycle <> ?)`,
		cycleID,
		now,
		patientID,
		cycleID,
	).Error
}

func (s *Service) ListBillableForCycle(ctx context.Context, officeID snowflake.ID, cycleID string) ([]snowflake.ID, error) {
	return ListBillableForCycleTx(ctx, s.db, officeID, cycleID)
}

// ListBillableForCycleTx is the core invoice-generation query: active
// patients not yet billed in cycleID. It includes patients reactivated after
// a prior-cycle deactivation and excludes patients already billed this cycle
// regardless of how often they toggled.
func ListBillableForCycleTx(ctx context.Context, tx *gorm.DB, officeID snowflake.ID, cycleID string) ([]snowflake.ID, error) {
	var patientIDs []snowflake.ID
	err := tx.WithContext(ctx).Raw(
		`SELECT patient_id
		 FROM patient_billing_status
		 WHERE office_id = ?
		   AND is_active_for_billing = ?
		   AND (last_billed_cycle IS NULL OR last_billed_cycle <> ?)
		 ORDER BY patient_id`,
		officeID,
		true,
		cycleID,
	).Scan(&patientIDs).Error
	if err != nil {
		return nil, err
	}
	return patientIDs, nil
}

func (s *Service) GetStatus(ctx context.Context, patientID snowflake.ID) (billingstatusdomain.PatientBillingStatus, error) {
	existing, err := s.statusrepo.FindOne(ctx, &billingstatusdomain.PatientBillingStatus{PatientID: patientID})
	if err != nil {
		return billingstatusdomain.PatientBillingStatus{}, err
	}
	if existing == nil {
		return billingstatusdomain.PatientBillingStatus{}, billingstatusdomain.ErrStatusNotFound
	}
	return *existing, nil
}
