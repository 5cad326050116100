package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/service"
)

const lockKeyPrefix = "dispute:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements service.Locker with SET NX PX so that several
// API replicas serialize work on the same ticket.
type RedisLocker struct {
	client     *redis.Client
	logger     *zap.Logger
	retryEvery time.Duration
}

// NewRedisLocker wraps a connected client.
func NewRedisLocker(r *Redis, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{client: r.Client, logger: logger, retryEvery: 25 * time.Millisecond}
}

// Acquire polls until the key is free or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (service.Unlock, error) {
	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()
	for {
		unlock, err := l.TryAcquire(ctx, key, ttl)
		if !errors.Is(err, service.ErrLockHeld) {
			return unlock, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// TryAcquire makes a single attempt.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (service.Unlock, error) {
	token := uuid.NewString()
	fullKey := lockKeyPrefix + key
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, service.ErrLockHeld
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err(); err != nil {
			l.logger.Warn("redis unlock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
