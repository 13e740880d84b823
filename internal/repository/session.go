package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/a11ylint/a11ylint-server/internal/database"
	apperrors "github.com/a11ylint/a11ylint-server/internal/errors"
	"github.com/a11ylint/a11ylint-server/internal/model"
)

// SessionRepository stores a session together with its token indirection.
// Create and DeleteByTokenHash apply to both rows atomically; deleting an
// absent session is a no-op.
type SessionRepository interface {
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// FindByTokenHash returns nil, nil when the token is unknown. Expired
	// sessions are returned as-is so the caller can clean them up.
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type sessionRepo struct {
	db  *database.DB
	now func() time.Time
}

func NewSessionRepository(db *database.DB) SessionRepository {
	return &sessionRepo{db: db, now: time.Now}
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	session := model.Session{
		ID:         params.ID,
		TokenHash:  params.TokenHash,
		Credential: params.Credential,
		ExpiresAt:  params.ExpiresAt,
	}

	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &session.CreatedAt, `
			INSERT INTO api_sessions (id, credential, expires_at)
			VALUES ($1, $2, $3)
			RETURNING created_at
		`, params.ID, params.Credential, params.ExpiresAt); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO api_session_tokens (token_hash, session_id)
			VALUES ($1, $2)
		`, params.TokenHash, params.ID); err != nil {
			return fmt.Errorf("insert session token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return &session, nil
}

func (r *sessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT s.id, t.token_hash, s.credential, s.expires_at, s.created_at
		FROM api_session_tokens t
		JOIN api_sessions s ON s.id = t.session_id
		WHERE t.token_hash = $1
	`, tokenHash)
	found, err := optional(&session, err)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return found, nil
}

// Token rows cascade with their session.
func (r *sessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM api_sessions
		WHERE id = (SELECT session_id FROM api_session_tokens WHERE token_hash = $1)
	`, tokenHash)
	if err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM api_sessions WHERE expires_at < $1`, r.now())
	if err != nil {
		return 0, apperrors.Database(err)
	}
	return result.RowsAffected()
}
