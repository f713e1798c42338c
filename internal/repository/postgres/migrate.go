package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one embedded schema change.
type Migration struct {
	Version   string     `db:"version" json:"version"`
	AppliedAt *time.Time `db:"applied_at" json:"applied_at,omitempty"`
	SQL       string     `db:"-" json:"-"`
}

// Migrator applies embedded migrations in lexical order, each in its own transaction.
type Migrator struct {
	db *sqlx.DB
	fs fs.FS
}

func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{db: db, fs: migrationFS}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) load() ([]Migration, error) {
	names, err := fs.Glob(m.fs, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(m.fs, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
		migrations = append(migrations, Migration{Version: version, SQL: string(body)})
	}
	return migrations, nil
}

// Status lists every embedded migration with its applied time, if any.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	migrations, err := m.load()
	if err != nil {
		return nil, err
	}

	var applied []Migration
	if err := m.db.SelectContext(ctx, &applied, `SELECT version, applied_at FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	byVersion := make(map[string]*time.Time, len(applied))
	for _, a := range applied {
		byVersion[a.Version] = a.AppliedAt
	}
	for i := range migrations {
		migrations[i].AppliedAt = byVersion[migrations[i].Version]
	}
	return migrations, nil
}

// Up applies pending migrations and returns the versions it applied.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	migrations, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, mig := range migrations {
		if mig.AppliedAt != nil {
			continue
		}
		tx, err := m.db.BeginTxx(ctx, nil)
		if err != nil {
			return done, fmt.Errorf("failed to begin migration %s: %w", mig.Version, err)
		}
		if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
			_ = tx.Rollback()
			return done, fmt.Errorf("failed to apply migration %s: %w", mig.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, mig.Version); err != nil {
			_ = tx.Rollback()
			return done, fmt.Errorf("failed to record migration %s: %w", mig.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return done, fmt.Errorf("failed to commit migration %s: %w", mig.Version, err)
		}
		done = append(done, mig.Version)
	}
	return done, nil
}
