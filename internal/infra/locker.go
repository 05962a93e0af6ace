package infra

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when a key is still held once ttl runs out.
var ErrLockNotObtained = errors.New("lock not obtained")

// Lock is a held key.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serializes work on a key across callers.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// ── Redis ─────────────────────────────────────────────────────────────────────

// RedisLocker shares keys across every instance pointed at the same redis.
// The lock expires after ttl even if the holder dies.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), int(ttl/(50*time.Millisecond))),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// ── In-process ────────────────────────────────────────────────────────────────

// LocalLocker is the single-instance fallback when REDIS_URL is empty.
// ttl bounds how long Obtain waits for a busy key.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]chan struct{}{}}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	timer := time.NewTimer(ttl)
	defer timer.Stop()
	for {
		l.mu.Lock()
		busy, ok := l.held[key]
		if !ok {
			ch := make(chan struct{})
			l.held[key] = ch
			l.mu.Unlock()
			return &localLock{owner: l, key: key, ch: ch}, nil
		}
		l.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrLockNotObtained
		}
	}
}

type localLock struct {
	owner *LocalLocker
	key   string
	ch    chan struct{}
}

func (k *localLock) Release(context.Context) error {
	k.owner.mu.Lock()
	defer k.owner.mu.Unlock()
	if k.owner.held[k.key] == k.ch {
		delete(k.owner.held, k.key)
		close(k.ch)
	}
	return nil
}
