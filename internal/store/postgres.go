package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
)

// Postgres is the durable backing store for tasks, agents, subjects, provider
// health snapshots, and the activity log. All mutation goes through single-row
// conditional updates; there are no multi-row transactions spanning concerns.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// DB exposes the underlying handle for read-only consumers (dashboard).
func (s *Postgres) DB() *sql.DB {
	return s.db
}

// Migrate applies the schema migration file.
func (s *Postgres) Migrate(path string) error {
	migrationSQL, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}

	slog.Info("database migrations completed", "path", path)
	return nil
}

// Ping verifies connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Organization is one tenant of the platform.
type Organization struct {
	ID   string
	Name string
}

// ListActiveOrganizations returns the tenants health checks run for.
func (s *Postgres) ListActiveOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM organizations
		WHERE is_active = TRUE
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}
