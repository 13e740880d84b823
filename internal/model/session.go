package model

import (
	"time"
)

// Session is the server-side record of the stateful backends. The opaque
// token handed to the client is stored only as TokenHash.
type Session struct {
	ID         string    `db:"id" json:"id"`
	TokenHash  string    `db:"token_hash" json:"-"`
	Credential string    `db:"credential" json:"-"`
	ExpiresAt  time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

type CreateSessionParams struct {
	ID         string
	TokenHash  string
	Credential string
	ExpiresAt  time.Time
}
