package monitoring

import (
	"context"
	"time"

	"fleetcast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// AddRedisProbe checks the store the fleet state lives in.
func (h *HealthChecker) AddRedisProbe(client *redis.Client, interval, timeout time.Duration) {
	h.AddProbe(Probe{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		Interval: interval,
		Timeout:  timeout,
	})
}

// AddDeviceStoreProbe checks that the device repository answers reads.
func (h *HealthChecker) AddDeviceStoreProbe(repo ports.DeviceRepository, interval, timeout time.Duration) {
	h.AddProbe(Probe{
		Name: "device_store",
		Check: func(ctx context.Context) error {
			_, err := repo.List(ctx)
			return err
		},
		Interval: interval,
		Timeout:  timeout,
	})
}
