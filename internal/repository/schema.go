package repository

import (
	"context"
	"fmt"

	"github.com/a11ylint/a11ylint-server/internal/database"
)

var sessionSchema = []string{
	`CREATE TABLE IF NOT EXISTS api_sessions (
		id UUID PRIMARY KEY,
		credential TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS api_session_tokens (
		token_hash TEXT PRIMARY KEY,
		session_id UUID NOT NULL REFERENCES api_sessions (id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_sessions_expires_at ON api_sessions (expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_api_session_tokens_session_id ON api_session_tokens (session_id)`,
}

// EnsureSessionSchema creates the session tables if they do not exist.
func EnsureSessionSchema(ctx context.Context, db database.DBTX) error {
	for _, stmt := range sessionSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply session schema: %w", err)
		}
	}
	return nil
}
