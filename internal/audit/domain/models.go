package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog is an append-only record of a billing-relevant action. Rows are
// never updated or deleted.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	OfficeID   *snowflake.ID     `gorm:"index"`
	ActorType  string            `gorm:"type:text;not null"`
	ActorID    string            `gorm:"type:text"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text;index"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Service records audit events. Metadata values are masked before persistence
// so free text can never smuggle identifiers into the log.
type Service interface {
	AuditLog(ctx context.Context, officeID *snowflake.ID, actorType, actorID, action, targetType string, targetID *string, metadata map[string]any) error
}
