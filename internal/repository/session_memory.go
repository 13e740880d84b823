package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/a11ylint/a11ylint-server/internal/model"
)

// memorySessionRepo keeps sessions in process. One mutex guards both maps
// so a session and its token entry are always created and removed together.
// Sessions are lost on restart and are not shared between instances.
type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.Session // by session ID
	tokens   map[string]string        // token hash -> session ID
	now      func() time.Time
}

var _ SessionRepository = (*memorySessionRepo)(nil)

func NewMemorySessionRepository() SessionRepository {
	return newMemorySessionRepo(time.Now)
}

func newMemorySessionRepo(now func() time.Time) *memorySessionRepo {
	return &memorySessionRepo{
		sessions: make(map[string]model.Session),
		tokens:   make(map[string]string),
		now:      now,
	}
}

func (r *memorySessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[params.ID]; exists {
		return nil, fmt.Errorf("session %s already exists", params.ID)
	}
	if _, exists := r.tokens[params.TokenHash]; exists {
		return nil, fmt.Errorf("session token already in use")
	}

	session := model.Session{
		ID:         params.ID,
		TokenHash:  params.TokenHash,
		Credential: params.Credential,
		ExpiresAt:  params.ExpiresAt,
		CreatedAt:  r.now(),
	}
	r.sessions[session.ID] = session
	r.tokens[session.TokenHash] = session.ID

	return &session, nil
}

func (r *memorySessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.tokens[tokenHash]
	if !ok {
		return nil, nil
	}
	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (r *memorySessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.tokens[tokenHash]; ok {
		delete(r.sessions, id)
	}
	delete(r.tokens, tokenHash)
	return nil
}

func (r *memorySessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var count int64
	for id, session := range r.sessions {
		if session.Expired(now) {
			delete(r.sessions, id)
			delete(r.tokens, session.TokenHash)
			count++
		}
	}
	return count, nil
}

// Len returns the number of live session and token entries.
func (r *memorySessionRepo) Len() (sessions, tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions), len(r.tokens)
}
