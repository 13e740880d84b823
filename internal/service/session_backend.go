package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/a11ylint/a11ylint-server/internal/model"
	"github.com/a11ylint/a11ylint-server/internal/repository"
	"github.com/a11ylint/a11ylint-server/internal/util"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// ResolvedSession is what a cookie value resolves to. SessionID is empty
// for the stateless backend.
type ResolvedSession struct {
	SessionID  string
	Credential string
}

// SessionBackend turns a credential into a cookie value and back. Resolve
// fails closed: any error means the session must be treated as absent.
type SessionBackend interface {
	Kind() model.SessionBackend
	Issue(ctx context.Context, credential string, expiresAt time.Time) (cookieValue string, err error)
	Resolve(ctx context.Context, cookieValue string) (*ResolvedSession, error)
	// Revoke removes server-side state for cookieValue, if any. It returns
	// the revoked session ID, or "" when there was nothing to remove.
	Revoke(ctx context.Context, cookieValue string) (string, error)
}

// CookieBackend keeps no server state: the cookie value is the encrypted
// credential, and its lifetime is bounded by the cookie's Max-Age.
type CookieBackend struct {
	codec *util.Codec
}

var _ SessionBackend = (*CookieBackend)(nil)

func NewCookieBackend(codec *util.Codec) *CookieBackend {
	return &CookieBackend{codec: codec}
}

func (b *CookieBackend) Kind() model.SessionBackend {
	return model.SessionBackendCookie
}

func (b *CookieBackend) Issue(ctx context.Context, credential string, expiresAt time.Time) (string, error) {
	return b.codec.Encrypt(credential)
}

func (b *CookieBackend) Resolve(ctx context.Context, cookieValue string) (*ResolvedSession, error) {
	credential, err := b.codec.Decrypt(cookieValue)
	if err != nil {
		return nil, err
	}
	if credential == "" {
		return nil, ErrSessionNotFound
	}
	return &ResolvedSession{Credential: credential}, nil
}

func (b *CookieBackend) Revoke(ctx context.Context, cookieValue string) (string, error) {
	return "", nil
}

// StoreBackend keeps sessions in a SessionRepository. The cookie carries an
// opaque random token; only its SHA-256 hash reaches the store. When codec
// is set, the credential is encrypted before it is stored.
type StoreBackend struct {
	kind  model.SessionBackend
	repo  repository.SessionRepository
	codec *util.Codec
	now   func() time.Time
}

var _ SessionBackend = (*StoreBackend)(nil)

func NewStoreBackend(kind model.SessionBackend, repo repository.SessionRepository, codec *util.Codec) *StoreBackend {
	return &StoreBackend{kind: kind, repo: repo, codec: codec, now: time.Now}
}

func (b *StoreBackend) Kind() model.SessionBackend {
	return b.kind
}

func (b *StoreBackend) Issue(ctx context.Context, credential string, expiresAt time.Time) (string, error) {
	stored := credential
	if b.codec != nil {
		encrypted, err := b.codec.Encrypt(credential)
		if err != nil {
			return "", err
		}
		stored = encrypted
	}

	token, err := util.GenerateToken()
	if err != nil {
		return "", err
	}

	if _, err := b.repo.Create(ctx, model.CreateSessionParams{
		ID:         uuid.NewString(),
		TokenHash:  util.HashToken(token),
		Credential: stored,
		ExpiresAt:  expiresAt,
	}); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// Resolve deletes the session when it finds it expired.
func (b *StoreBackend) Resolve(ctx context.Context, cookieValue string) (*ResolvedSession, error) {
	tokenHash := util.HashToken(cookieValue)
	session, err := b.repo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if session.Expired(b.now()) {
		if err := b.repo.DeleteByTokenHash(ctx, tokenHash); err != nil {
			return nil, fmt.Errorf("delete expired session %s: %w", session.ID, err)
		}
		return &ResolvedSession{SessionID: session.ID}, ErrSessionExpired
	}

	credential := session.Credential
	if b.codec != nil {
		credential, err = b.codec.Decrypt(session.Credential)
		if err != nil {
			return nil, err
		}
	}
	return &ResolvedSession{SessionID: session.ID, Credential: credential}, nil
}

func (b *StoreBackend) Revoke(ctx context.Context, cookieValue string) (string, error) {
	tokenHash := util.HashToken(cookieValue)
	session, err := b.repo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return "", fmt.Errorf("find session: %w", err)
	}
	if err := b.repo.DeleteByTokenHash(ctx, tokenHash); err != nil {
		return "", fmt.Errorf("delete session: %w", err)
	}
	if session == nil {
		return "", nil
	}
	return session.ID, nil
}
