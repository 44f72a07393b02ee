// internal/store/migrations.go
package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL,
		phone      TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT 'user',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS applications (
		seq        BIGSERIAL,
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL UNIQUE REFERENCES users (id),
		personal   JSONB NOT NULL DEFAULT '{}',
		address    JSONB NOT NULL DEFAULT '{}',
		employment JSONB NOT NULL DEFAULT '{}',
		visa_start DATE,
		visa_end   DATE,
		status     TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the record store tables if they do not exist. The
// unique constraint on applications.user_id is what backs the
// one-application-per-user rule at the database level.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
