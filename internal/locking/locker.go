package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrLocked is returned when another ingestion of the same file holds the lock.
var ErrLocked = errors.New("another ingestion of this file is in progress")

// Locker serializes ingestions of the same source file across processes.
type Locker interface {
	// Lock blocks until the key is free or ctx ends. The returned func
	// releases the lock.
	Lock(ctx context.Context, key string) (func(), error)
}

// NoopLocker never blocks. Without a lock backend, two ingestions of the
// same file rely on store transaction isolation alone.
type NoopLocker struct{}

func (NoopLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	logger logrus.FieldLogger
}

// NewRedisLocker holds each lock for at most ttl and waits up to wait to
// obtain it.
func NewRedisLocker(rdb redis.UniversalClient, ttl, wait time.Duration, logger logrus.FieldLogger) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("ingest:%s", key)

	obtainCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lock, err := l.client.Obtain(obtainCtx, lockKey, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(250 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain ingestion lock: %w", err)
	}

	return func() {
		// Release with a fresh context: the request may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithField("key", lockKey).Warn("failed to release ingestion lock: " + err.Error())
		}
	}, nil
}
