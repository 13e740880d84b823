package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/a11ylint/a11ylint-server/internal/audit"
	apperrors "github.com/a11ylint/a11ylint-server/internal/errors"
	"github.com/a11ylint/a11ylint-server/internal/observability"
)

const (
	MsgSessionEstablished = "Session established successfully."
	MsgCredentialRequired = "API key is required."
	MsgCredentialInvalid  = "API key must be valid UTF-8 text."
	MsgEstablishFailed    = "Failed to establish session."
	MsgSessionActive      = "Session is active."
	MsgSessionInactive    = "Session is not active."
	MsgSessionInvalid     = "Session is not active or invalid."
	MsgSessionCleared     = "Session cleared successfully."
)

// IssuedSession is the cookie to hand back after Establish.
type IssuedSession struct {
	CookieValue string
	ExpiresAt   time.Time
}

// SessionService drives the session lifecycle on top of one SessionBackend.
// Handlers never see backend or codec errors: every resolution failure
// becomes an UNAUTHORIZED AppError and the cause is only logged.
type SessionService struct {
	backend  SessionBackend
	lifetime time.Duration
	now      func() time.Time
}

func NewSessionService(backend SessionBackend, lifetime time.Duration) *SessionService {
	return &SessionService{
		backend:  backend,
		lifetime: lifetime,
		now:      time.Now,
	}
}

func (s *SessionService) Backend() SessionBackend {
	return s.backend
}

func (s *SessionService) Establish(ctx context.Context, credential string) (*IssuedSession, error) {
	if credential == "" {
		observability.SessionOperations.WithLabelValues("establish", observability.OutcomeRejected).Inc()
		return nil, apperrors.MissingRequired("API key")
	}
	if !utf8.ValidString(credential) {
		observability.SessionOperations.WithLabelValues("establish", observability.OutcomeRejected).Inc()
		return nil, apperrors.ValidationError(MsgCredentialInvalid)
	}

	expiresAt := s.now().Add(s.lifetime)
	value, err := s.backend.Issue(ctx, credential, expiresAt)
	if err != nil {
		observability.SessionOperations.WithLabelValues("establish", observability.OutcomeError).Inc()
		log.Error().
			Err(err).
			Str("backend", string(s.backend.Kind())).
			Str("code", string(apperrors.GetCode(err))).
			Msg("failed to establish session")
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, MsgEstablishFailed, err)
	}

	observability.SessionOperations.WithLabelValues("establish", observability.OutcomeSuccess).Inc()
	audit.Log(ctx, audit.Event{
		Type:    audit.EventSessionEstablish,
		Backend: string(s.backend.Kind()),
	})

	return &IssuedSession{CookieValue: value, ExpiresAt: expiresAt}, nil
}

// Check reports whether cookieValue resolves to a live session.
func (s *SessionService) Check(ctx context.Context, cookieValue string) error {
	_, err := s.resolve(ctx, "check", cookieValue)
	return err
}

// Credential resolves cookieValue and returns the stored credential.
func (s *SessionService) Credential(ctx context.Context, cookieValue string) (string, error) {
	resolved, err := s.resolve(ctx, "credential", cookieValue)
	if err != nil {
		return "", err
	}
	return resolved.Credential, nil
}

// Clear revokes the session behind cookieValue. It never fails: store
// errors are logged and the caller still expires the cookie.
func (s *SessionService) Clear(ctx context.Context, cookieValue string) {
	if cookieValue == "" {
		observability.SessionOperations.WithLabelValues("clear", observability.OutcomeSuccess).Inc()
		return
	}

	sessionID, err := s.backend.Revoke(ctx, cookieValue)
	if err != nil {
		observability.SessionOperations.WithLabelValues("clear", observability.OutcomeError).Inc()
		log.Error().
			Err(err).
			Str("backend", string(s.backend.Kind())).
			Msg("failed to revoke session")
		return
	}

	observability.SessionOperations.WithLabelValues("clear", observability.OutcomeSuccess).Inc()
	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionClear,
		SessionID: sessionID,
		Backend:   string(s.backend.Kind()),
	})
}

func (s *SessionService) resolve(ctx context.Context, op, cookieValue string) (*ResolvedSession, error) {
	if cookieValue == "" {
		observability.SessionOperations.WithLabelValues(op, observability.OutcomeUnauthorized).Inc()
		return nil, apperrors.Unauthorized(MsgSessionInactive)
	}

	resolved, err := s.backend.Resolve(ctx, cookieValue)
	if err == nil {
		observability.SessionOperations.WithLabelValues(op, observability.OutcomeSuccess).Inc()
		return resolved, nil
	}

	observability.SessionOperations.WithLabelValues(op, observability.OutcomeUnauthorized).Inc()
	event := audit.Event{
		Type:    audit.EventSessionInvalid,
		Backend: string(s.backend.Kind()),
	}
	if resolved != nil {
		event.SessionID = resolved.SessionID
	}

	switch {
	case errors.Is(err, ErrSessionExpired):
		event.Type = audit.EventSessionExpired
	case errors.Is(err, ErrSessionNotFound):
	case apperrors.HasCode(err, apperrors.ErrCodeConfig):
		log.Error().Err(err).Msg("session resolution failed: encryption key not configured")
	case apperrors.HasCode(err, apperrors.ErrCodeFormat), apperrors.HasCode(err, apperrors.ErrCodeCrypto):
		event.Details = map[string]interface{}{"reason": string(apperrors.GetCode(err))}
	default:
		log.Error().Err(err).Str("backend", string(s.backend.Kind())).Msg("session resolution failed")
	}
	audit.Log(ctx, event)

	return nil, apperrors.Wrap(apperrors.ErrCodeUnauthorized, MsgSessionInvalid, err)
}
