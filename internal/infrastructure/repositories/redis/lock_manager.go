package redis

import (
	"context"
	"fmt"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"
	"fleetcast/pkg/distributed"

	"github.com/redis/go-redis/v9"
)

// RedisLockManager provides cross-instance per-key locks on top of the
// distributed lock primitive. Used by the ingress provisioner so that two
// server instances cannot both create a bridge resource for the same device.
type RedisLockManager struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLockManager(client *redis.Client, ttl time.Duration) ports.LockManager {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLockManager{
		client: client,
		ttl:    ttl,
	}
}

func (m *RedisLockManager) Acquire(ctx context.Context, key string) (func(), error) {
	lock := distributed.NewLock(m.client, "fleetcast:lock:"+key, m.ttl)
	if err := lock.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Best effort; the TTL reclaims the lock if this fails.
		_ = lock.Release(ctx)
	}, nil
}
