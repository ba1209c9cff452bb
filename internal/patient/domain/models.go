// Package domain contains the patient reference model. Patient CRUD, plans,
// and progress tracking live outside the billing engine; billing only ever
// touches the patient through its billing status row. The identifying fields
// are never serialized and never cross into invoice or gateway code.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Patient is the minimal patient record referenced by billing status rows.
type Patient struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OfficeID  snowflake.ID `gorm:"not null;index" json:"office_id"`
	FullName  string       `gorm:"type:text" json:"-"`
	Email     string       `gorm:"type:text" json:"-"`
	Phone     string       `gorm:"type:text" json:"-"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Patient) TableName() string { return "patients" }
