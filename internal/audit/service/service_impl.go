package service

import (
	"context"
	"time"

	auditdomain "github.com/adjustly/adjustly/internal/audit/domain"
	"github.com/adjustly/adjustly/internal/audit/masking"
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
	log   *zap.Logger
	genID *snowflake.Node

	auditrepo repository.Repository[auditdomain.AuditLog]
}

func NewService(p ServiceParam) auditdomain.Service {
	return &Service{
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,

		auditrepo: repository.ProvideStore[auditdomain.AuditLog](p.DB),
	}
}

func (s *Service) AuditLog(ctx context.Context, officeID *snowflake.ID, actorType, actorID, action, targetType string, targetID *string, metadata map[string]any) error {
	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OfficeID:   officeID,
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   masking.MaskJSON(metadata),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.auditrepo.Create(ctx, &entry); err != nil {
		// Audit writes must not fail the billing operation they describe.
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}
