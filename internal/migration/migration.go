package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	appstatedomain "github.com/Franc-dev/donate-artist/internal/appstate/domain"
	"github.com/Franc-dev/donate-artist/internal/config"
	paymentdomain "github.com/Franc-dev/donate-artist/internal/payment/domain"
	userdomain "github.com/Franc-dev/donate-artist/internal/user/domain"
	pkgdb "github.com/Franc-dev/donate-artist/pkg/db"
)

// Run brings the schema up to date. Postgres uses the embedded SQL
// migrations; other dialects are migrated from the gorm models.
func Run(conn *gorm.DB, cfg config.Config) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if pkgdb.IsPostgres(cfg) {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return AutoMigrate(conn)
}

func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&userdomain.User{},
		&paymentdomain.CallbackRecord{},
		&appstatedomain.Record{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

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
