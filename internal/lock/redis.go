package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultTTL   = 15 * time.Second
	defaultRetry = 25 * time.Millisecond
	keyPrefix    = "bookcore:lock:"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every engine replica pointed at the same redis.
// A lock expires after ttl if its holder dies. The ttl is not renewed, so it
// must outlast the longest critical section: lock wait plus the store's busy
// timeout.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger zerolog.Logger
}

// NewRedis creates a redis-backed locker. A zero ttl uses the default.
func NewRedis(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		retry:  defaultRetry,
		logger: logger.With().Str("component", "redis_lock").Logger(),
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
				r.logger.Warn().Err(err).Str("key", key).Msg("Failed to release lock, it will expire")
			}
		})
	}, nil
}
