package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	redisclient "github.com/a11ylint/a11ylint-server/internal/redis"
)

// RateLimiter decides whether key may make another request within window.
type RateLimiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, resetAt time.Time)
}

// rateLimitScript is a Lua script for sliding window rate limiting. Each
// request is stored under its own member so that requests sharing a
// millisecond are all counted.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window + 10000)

return {1, now + window}
`)

// RedisRateLimiter shares its windows between instances.
type RedisRateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

// CheckLimit allows the request when redis is unreachable; the model API
// applies its own quota behind this limiter.
func (rl *RedisRateLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	now := rl.now().UnixMilli()
	if limit <= 0 {
		return true, time.UnixMilli(now)
	}

	result, err := rateLimitScript.Run(
		ctx,
		rl.client,
		[]string{redisclient.RateLimitKey(key)},
		now,
		window.Milliseconds(),
		limit,
		uuid.NewString(),
	).Int64Slice()

	if err != nil {
		log.Warn().Err(err).Msg("rate limit check failed, allowing request")
		return true, time.UnixMilli(now).Add(window)
	}
	if len(result) != 2 {
		log.Warn().Msg("unexpected rate limit result, allowing request")
		return true, time.UnixMilli(now).Add(window)
	}

	return result[0] == 1, time.UnixMilli(result[1])
}

const (
	localLimiterTTL       = 15 * time.Minute
	localLimiterMaxKeys   = 10000
	localLimiterSweepEach = 5 * time.Minute
)

type localLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LocalRateLimiter is a per-process token bucket per key, used when no
// redis is configured.
type LocalRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*localLimiterEntry
	lastSweep time.Time
	now       func() time.Time
}

var _ RateLimiter = (*LocalRateLimiter)(nil)

func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{
		limiters: make(map[string]*localLimiterEntry),
		now:      time.Now,
	}
}

func (rl *LocalRateLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if limit <= 0 {
		return true, now
	}
	rl.sweep(now)

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &localLimiterEntry{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
		}
		rl.limiters[key] = entry
	}
	entry.lastAccess = now

	if entry.limiter.AllowN(now, 1) {
		return true, now.Add(window)
	}
	r := entry.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, now.Add(delay)
}

func (rl *LocalRateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < localLimiterSweepEach && len(rl.limiters) <= localLimiterMaxKeys {
		return
	}
	rl.lastSweep = now

	for key, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > localLimiterTTL {
			delete(rl.limiters, key)
		}
	}
	// Still too many: drop arbitrary entries, which only resets their buckets.
	for key := range rl.limiters {
		if len(rl.limiters) <= localLimiterMaxKeys {
			break
		}
		delete(rl.limiters, key)
	}
}

func (rl *LocalRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
