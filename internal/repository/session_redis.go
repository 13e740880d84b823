package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a11ylint/a11ylint-server/internal/model"
)

const (
	redisSessionPrefix = "session:"
	redisTokenPrefix   = "session_token:"
	redisScanCount     = 100
)

// redisSessionRepo shares sessions between instances. Both keys carry the
// session's expiry as their TTL, and every pair mutation runs in MULTI/EXEC.
type redisSessionRepo struct {
	client *redis.Client
	now    func() time.Time
}

var _ SessionRepository = (*redisSessionRepo)(nil)

func NewRedisSessionRepository(client *redis.Client) SessionRepository {
	return &redisSessionRepo{client: client, now: time.Now}
}

func sessionKey(id string) string {
	return redisSessionPrefix + id
}

func tokenKey(tokenHash string) string {
	return redisTokenPrefix + tokenHash
}

func (r *redisSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	session := model.Session{
		ID:         params.ID,
		TokenHash:  params.TokenHash,
		Credential: params.Credential,
		ExpiresAt:  params.ExpiresAt,
		CreatedAt:  r.now(),
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(session.ID), map[string]any{
			"token_hash": session.TokenHash,
			"credential": session.Credential,
			"expires_at": session.ExpiresAt.UnixMilli(),
			"created_at": session.CreatedAt.UnixMilli(),
		})
		pipe.PExpireAt(ctx, sessionKey(session.ID), session.ExpiresAt)
		pipe.Set(ctx, tokenKey(session.TokenHash), session.ID, 0)
		pipe.PExpireAt(ctx, tokenKey(session.TokenHash), session.ExpiresAt)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &session, nil
}

func (r *redisSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	id, err := r.client.Get(ctx, tokenKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session token: %w", err)
	}

	fields, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	expiresAt, err := parseUnixMilli(fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("parse session expiry: %w", err)
	}
	createdAt, _ := parseUnixMilli(fields["created_at"])

	return &model.Session{
		ID:         id,
		TokenHash:  tokenHash,
		Credential: fields["credential"],
		ExpiresAt:  expiresAt,
		CreatedAt:  createdAt,
	}, nil
}

func (r *redisSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	id, err := r.client.Get(ctx, tokenKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get session token: %w", err)
	}
	return r.deletePair(ctx, id, tokenHash)
}

// DeleteExpired removes sessions whose expiry has passed but whose keys are
// still present, e.g. keys written without a TTL or restored from a dump.
func (r *redisSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	now := r.now()
	var count int64

	iter := r.client.Scan(ctx, 0, redisSessionPrefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := r.client.HMGet(ctx, key, "expires_at", "token_hash").Result()
		if err != nil {
			return count, fmt.Errorf("read session %s: %w", key, err)
		}

		if fields[0] == nil && fields[1] == nil {
			continue // expired by TTL mid-scan
		}
		raw, _ := fields[0].(string)
		tokenHash, _ := fields[1].(string)
		expiresAt, err := parseUnixMilli(raw)
		if err == nil && !expiresAt.Before(now) {
			continue
		}

		if err := r.deletePair(ctx, key[len(redisSessionPrefix):], tokenHash); err != nil {
			return count, err
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("scan sessions: %w", err)
	}
	return count, nil
}

func (r *redisSessionRepo) deletePair(ctx context.Context, id, tokenHash string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		if tokenHash != "" {
			pipe.Del(ctx, tokenKey(tokenHash))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func parseUnixMilli(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
