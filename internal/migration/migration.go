package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/jarednorman/solidus-friendly-promotions/internal/audit/domain"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	promotiondomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every table the engine owns, in dependency order.
func Models() []any {
	return []any{
		&orderdomain.Order{},
		&orderdomain.LineItem{},
		&orderdomain.Shipment{},
		&promotiondomain.PromotionCategory{},
		&promotiondomain.Promotion{},
		&promotiondomain.PromotionRule{},
		&promotiondomain.PromotionAction{},
		&promotiondomain.PromotionCodeBatch{},
		&promotiondomain.PromotionCode{},
		&promotiondomain.OrderPromotion{},
		&orderdomain.Adjustment{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the gorm models. Used for sqlite and
// mysql, where the embedded postgres migrations do not apply.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// RunMigrations applies the embedded postgres migrations.
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

// Run migrates conn with the strategy that fits its dialect.
func Run(conn *gorm.DB) error {
	if conn.Dialector.Name() != "postgres" {
		return AutoMigrate(conn)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
