package storage

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies all pending migrations for the backend.
func (db *DB) Migrate(log *slog.Logger) error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if log != nil {
		m.Log = migrateLogger{log}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return db.closeMigrate(m)
}

// MigrationVersion returns the applied schema version, 0 when none.
func (db *DB) MigrationVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	defer db.closeMigrate(m)

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// closeMigrate closes a PostgreSQL migrator. The sqlite migrator shares
// db.sqlDB and is left open.
func (db *DB) closeMigrate(m *migrate.Migrate) error {
	if db.driver != DriverPostgres {
		return nil
	}
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return fmt.Errorf("closing migrator: %w", err)
	}
	return nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+db.driver)
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}

	switch db.driver {
	case DriverSQLite:
		driver, err := sqlite.WithInstance(db.sqlDB, &sqlite.Config{})
		if err != nil {
			return nil, fmt.Errorf("creating sqlite migration driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
		if err != nil {
			return nil, fmt.Errorf("creating migrator: %w", err)
		}
		return m, nil
	default:
		m, err := migrate.NewWithSourceInstance("iofs", src, pgxURL(db.dsn))
		if err != nil {
			return nil, fmt.Errorf("creating migrator: %w", err)
		}
		return m, nil
	}
}

// pgxURL rewrites a postgres:// DSN for the pgx/v5 migration driver.
func pgxURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

type migrateLogger struct {
	log *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l migrateLogger) Verbose() bool {
	return false
}
