// Package seed bootstraps the rows a fresh self-hosted install needs before
// the first request arrives.
package seed

import (
	"time"

	officedomain "github.com/adjustly/adjustly/internal/office/domain"
	"gorm.io/gorm"
)

const defaultOfficeID = 1

// EnsureDefaultOffice creates the bootstrap office so local installs can bill
// immediately. A no-op when any office already exists.
func EnsureDefaultOffice(conn *gorm.DB) error {
	var count int64
	if err := conn.Model(&officedomain.Office{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	office := officedomain.Office{
		ID:        defaultOfficeID,
		Name:      "Default Office",
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := conn.Create(&office).Error
	if err != nil && conn.Migrator().HasTable(&officedomain.Office{}) {
		// Another replica may have raced us; losing that race is fine.
		var recheck int64
		if countErr := conn.Model(&officedomain.Office{}).Count(&recheck).Error; countErr == nil && recheck > 0 {
			return nil
		}
	}
	return err
}
