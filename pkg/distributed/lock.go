// Package distributed implements a Redis-backed mutual exclusion
// primitive. The coordinator leans on it for the per-device ingress
// lock and the per-room and per-hardware registration locks, which must
// hold across server instances sharing one Redis.
package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Unlock when the key is owned by another
// holder or already expired.
var ErrNotHeld = errors.New("lock not held by this instance")

// releaseScript deletes the key only when it still carries our token,
// so an expired-and-reacquired lock is never released from under its
// new holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lock is a single-use distributed lock on one Redis key. Acquire a
// fresh Lock per critical section.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	stopRenew chan struct{}
}

func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire blocks until the lock is held, polling SET NX. The wait is
// bounded by ctx and by a 30 second cap so a stuck peer cannot park
// every registration forever.
func (l *Lock) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(30 * time.Second)

	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("lock %s: acquisition timed out", l.key)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// TryAcquire attempts a single non-blocking grab.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", l.key, err)
	}
	if !ok {
		return false, nil
	}

	l.stopRenew = make(chan struct{})
	go l.renew()
	return true, nil
}

// Release gives the lock back. Safe to call only after a successful
// Acquire or TryAcquire.
func (l *Lock) Release(ctx context.Context) error {
	close(l.stopRenew)

	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.key, err)
	}
	if deleted == 0 {
		return ErrNotHeld
	}
	return nil
}

// renew keeps extending the TTL at half-life until the lock is
// released, lost, or Redis stops answering. A holder that dies simply
// stops renewing and the TTL frees the key.
func (l *Lock) renew() {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			current, err := l.client.Get(ctx, l.key).Result()
			if err != nil || current != l.token {
				cancel()
				return
			}
			l.client.Expire(ctx, l.key, l.ttl)
			cancel()
		case <-l.stopRenew:
			return
		}
	}
}
