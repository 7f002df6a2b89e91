package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 50 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every API instance. Each lock is a SET NX PX
// key holding a random token, so only the holder can release it and a crashed
// holder's lock expires after the TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger zerolog.Logger
}

// NewRedis builds a Redis-backed Locker.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if prefix == "" {
		prefix = "lock"
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  defaultRetry,
		logger: logger.With().Str("component", "redis_lock").Logger(),
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	name := fmt.Sprintf("%s:%s", r.prefix, key)
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		// The caller's context may already be cancelled; release must still run.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{name}, token).Err(); err != nil {
			r.logger.Warn().Err(err).Str("lock", name).Msg("failed to release lock")
		}
	}, nil
}
