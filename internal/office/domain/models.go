// Package domain contains the office tenant model billing references.
// Office CRUD is owned by the practice-management surface; billing only
// assumes the rows exist.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Office is a chiropractic practice location, the tenant unit invoices are
// aggregated under.
type Office struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	CompanyID snowflake.ID      `gorm:"index"`
	Name      string            `gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Office) TableName() string { return "offices" }
