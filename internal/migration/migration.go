package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	auditdomain "github.com/adjustly/adjustly/internal/audit/domain"
	billingstatusdomain "github.com/adjustly/adjustly/internal/billingstatus/domain"
	cycledomain "github.com/adjustly/adjustly/internal/cyclerun/domain"
	gatewaydomain "github.com/adjustly/adjustly/internal/gateway/domain"
	invoicedomain "github.com/adjustly/adjustly/internal/invoice/domain"
	officedomain "github.com/adjustly/adjustly/internal/office/domain"
	patientdomain "github.com/adjustly/adjustly/internal/patient/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// RunMigrations applies the embedded SQL migrations so a fresh postgres
// database is usable on first start.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate covers the non-postgres dialects the embedded SQL does not.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&officedomain.Office{},
		&patientdomain.Patient{},
		&billingstatusdomain.PatientBillingStatus{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&invoicedomain.LineItemReference{},
		&cycledomain.CycleRun{},
		&cycledomain.CycleOfficeResult{},
		&gatewaydomain.PaymentEvent{},
		&auditdomain.AuditLog{},
	)
}
