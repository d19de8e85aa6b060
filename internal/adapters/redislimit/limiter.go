// Package redislimit is a sliding-window limiter whose state lives in Redis,
// so every process sharing the Redis instance enforces one global limit.
package redislimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript prunes, counts and conditionally appends in one atomic step.
// Scores are unix milliseconds; members are unique per admission.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Limiter implements ports.RateLimiter on Redis sorted sets.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, limit int, window time.Duration) (*Limiter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "mediagate:ratelimit:"
	}
	return &Limiter{client: rdb, limit: limit, window: window, prefix: prefix}, nil
}

// Admit runs the admission script for clientID.
func (l *Limiter) Admit(ctx context.Context, clientID string, now time.Time) (bool, error) {
	res, err := admitScript.Run(ctx, l.client,
		[]string{l.prefix + clientID},
		now.UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString()[:8],
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}

// Close releases the connection pool.
func (l *Limiter) Close() error {
	return l.client.Close()
}
