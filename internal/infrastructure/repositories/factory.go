package repositories

import (
	"context"
	"time"

	"fleetcast/internal/core/ports"
	"fleetcast/internal/infrastructure/events"
	"fleetcast/internal/infrastructure/repositories/memory"
	redisrepo "fleetcast/internal/infrastructure/repositories/redis"
	"fleetcast/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.Connect(redisrepo.ClientOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")

			if err := redisrepo.Migrate(context.Background(), client, logger); err != nil {
				logger.Warnw("schema migration failed", "error", err)
			}
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateDeviceRepository creates a device repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateDeviceRepository() ports.DeviceRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisDeviceRepository(f.redisClient)
	}
	return memory.NewMemoryDeviceRepository()
}

// CreateRoomRepository creates a room repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateRoomRepository() ports.RoomRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisRoomRepository(f.redisClient)
	}
	return memory.NewMemoryRoomRepository()
}

// CreateLockManager creates a lock manager. The Redis variant coordinates
// across instances; the memory variant only within this process.
func (f *RepositoryFactory) CreateLockManager(ttl time.Duration) ports.LockManager {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisLockManager(f.redisClient, ttl)
	}
	return memory.NewMemoryLockManager()
}

// CreateEventBus creates the change-notification bus.
func (f *RepositoryFactory) CreateEventBus() ports.EventBus {
	if f.useRedis && f.redisClient != nil {
		return events.NewRedisBus(f.redisClient, f.logger)
	}
	return events.NewMemoryBus(f.logger)
}

// RedisClient exposes the underlying client for health checks. Nil when
// running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}
