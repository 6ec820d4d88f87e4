package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/distillery_backend/config"
)

const stockLockTTL = 30 * time.Second

// KeyLocker serializes work on a named key across instances.
// The returned release func must be called once the guarded transaction has finished.
type KeyLocker interface {
	Obtain(ctx context.Context, key string) (release func(), err error)
}

// RedisKeyLocker is a KeyLocker on top of bsm/redislock.
type RedisKeyLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewRedisKeyLocker returns nil when the lock client is nil so callers can treat Redis as optional.
func NewRedisKeyLocker(client *redislock.Client) *RedisKeyLocker {
	if client == nil {
		return nil
	}
	return &RedisKeyLocker{
		client: client,
		ttl:    stockLockTTL,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	}
}

func (l *RedisKeyLocker) Obtain(ctx context.Context, key string) (func(), error) {
	logger := config.GetLogger()
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, "redisHelper.go", "Obtain", "Could not obtain lock", key, err)
		return nil, fmt.Errorf("%w: %s", ErrorLockNotObtained, key)
	} else if err != nil {
		config.LogError(logger, "redisHelper.go", "Obtain", "Error obtaining lock", key, err)
		return nil, err
	}
	return func() {
		// a background context: the request ctx may already be cancelled when we release
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(logger, "redisHelper.go", "Obtain", "Release lock", key, err)
		}
	}, nil
}

func RawStockLockKey(distillerId int, materialType string) string {
	return fmt.Sprintf("stockLock:raw:%d:%s", distillerId, materialType)
}

func LotLockKey(lotId int) string {
	return fmt.Sprintf("stockLock:lot:%d", lotId)
}

func BalanceLockKey(ownerId int) string {
	return fmt.Sprintf("balanceLock:%d", ownerId)
}
