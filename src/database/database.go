// src/database/database.go
package database

import (
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"

	"github.com/username/conciliador/src/logger"
)

var DB *sql.DB

// Open connects to a SQLite file (or ":memory:") with WAL, a busy timeout and
// foreign keys enabled.
func Open(databasePath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", databasePath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", databasePath, err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// MigrationsSourceURL resolves the migrations directory: an explicit path
// wins, then /app/db/migrations in production, then ./db/migrations.
func MigrationsSourceURL(migrationsPath string) (string, error) {
	if migrationsPath == "" {
		if os.Getenv("GO_ENV") == "PRO" {
			return "file:///app/db/migrations", nil
		}
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current working directory: %w", err)
		}
		migrationsPath = filepath.Join(cwd, "db", "migrations")
	}
	abs, err := filepath.Abs(migrationsPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve migrations path %s: %w", migrationsPath, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// Migrate applies every pending up migration. No pending migration is not an error.
func Migrate(db *sql.DB, sourceURL string) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration instance creation failed: %w", err)
	}

	logger.L.Info("Applying database migrations...", "source", sourceURL)
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.L.Info("No new database migrations to apply.")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.L.Info("Database migrations applied successfully.")
	return nil
}

func InitDB(databasePath string) {
	db, err := Open(databasePath)
	if err != nil {
		stdlog.Fatalf("%v", err)
	}
	DB = db
	logger.L.Info("Database connection established with WAL mode, busy_timeout, and foreign_keys enabled.", "path", databasePath)
}

func RunMigrations(migrationsPath string) {
	if DB == nil {
		stdlog.Fatalf("database connection is not initialized before running migrations")
	}
	sourceURL, err := MigrationsSourceURL(migrationsPath)
	if err != nil {
		stdlog.Fatalf("%v", err)
	}
	if err := Migrate(DB, sourceURL); err != nil {
		logger.L.Error("Failed to apply migrations", "source", sourceURL, "error", err)
		stdlog.Fatalf("%v", err)
	}
}
