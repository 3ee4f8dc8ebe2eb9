package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded SQL migrations for the postgres backend
type Migrator struct {
	db     *DB
	logger *log.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *log.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// Up runs all pending migrations, each in its own transaction
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	files, err := migrationFiles(".up.sql")
	if err != nil {
		return err
	}

	for _, file := range files {
		version := migrationVersion(file)

		applied, err := m.isMigrationApplied(ctx, version)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if applied {
			m.logger.Printf("Migration %s already applied, skipping", file)
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		m.logger.Printf("Applying migration: %s", file)
		err = pgx.BeginFunc(ctx, m.db.Pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	m.logger.Println("All migrations applied successfully")
	return nil
}

// Down rolls back the last applied migration
func (m *Migrator) Down(ctx context.Context) error {
	var version string
	err := m.db.QueryRow(ctx, `
		SELECT version FROM schema_migrations
		ORDER BY version DESC
		LIMIT 1
	`).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("no migrations to roll back")
	}
	if err != nil {
		return fmt.Errorf("failed to get last migration: %w", err)
	}

	files, err := migrationFiles(".down.sql")
	if err != nil {
		return err
	}

	var downFile string
	for _, f := range files {
		if migrationVersion(f) == version {
			downFile = f
			break
		}
	}
	if downFile == "" {
		return fmt.Errorf("down migration file not found for version %s", version)
	}

	content, err := migrationsFS.ReadFile("migrations/" + downFile)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", downFile, err)
	}

	m.logger.Printf("Rolling back migration: %s", downFile)
	return pgx.BeginFunc(ctx, m.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", downFile, err)
		}
		_, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", version)
		return err
	})
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	_, err := m.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT NOW() NOT NULL
		)
	`)
	return err
}

func (m *Migrator) isMigrationApplied(ctx context.Context, version string) (bool, error) {
	var count int
	err := m.db.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// migrationFiles lists embedded migrations with the given suffix, sorted
func migrationFiles(suffix string) ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// migrationVersion extracts "001" from "001_create_user_state.up.sql"
func migrationVersion(file string) string {
	return strings.SplitN(file, "_", 2)[0]
}
