package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var migrationFS embed.FS

// Migrate applies every pending up migration for driver. It uses its own
// connection, which is closed before returning.
func Migrate(driver, dsn string) error {
	if _, err := dialectFor(driver); err != nil {
		return err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("migrate open: %w", err)
	}

	m, err := newMigrate(driver, conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

func newMigrate(driver string, conn *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}

	switch driver {
	case DriverPostgres:
		dbDriver, err := postgres.WithInstance(conn, &postgres.Config{})
		if err != nil {
			return nil, fmt.Errorf("migrate driver: %w", err)
		}
		return migrate.NewWithInstance("iofs", src, driver, dbDriver)
	default:
		dbDriver, err := sqlite3.WithInstance(conn, &sqlite3.Config{})
		if err != nil {
			return nil, fmt.Errorf("migrate driver: %w", err)
		}
		return migrate.NewWithInstance("iofs", src, driver, dbDriver)
	}
}
