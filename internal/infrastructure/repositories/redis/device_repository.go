package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// mutateRetries bounds optimistic transaction retries before the operation
// is reported as a store failure.
const mutateRetries = 5

type RedisDeviceRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisDeviceRepository(client *redis.Client) ports.DeviceRepository {
	return &RedisDeviceRepository{
		client: client,
		prefix: "fleetcast:device:",
	}
}

func (r *RedisDeviceRepository) deviceKey(id domain.DeviceID) string {
	return r.prefix + string(id)
}

func (r *RedisDeviceRepository) hardwareIndexKey() string {
	return "fleetcast:device:hw_index"
}

func (r *RedisDeviceRepository) allDevicesKey() string {
	return "fleetcast:device:all"
}

func (r *RedisDeviceRepository) Create(ctx context.Context, device *domain.Device) error {
	data, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("failed to marshal device: %w", err)
	}

	// Claim the hardware slot first; HSETNX refuses a fingerprint already
	// bound to another device even when callers race past the service lock.
	claimedSlot := false
	if device.HardwareID != "" {
		claimed, err := r.client.HSetNX(ctx, r.hardwareIndexKey(), string(device.HardwareID), string(device.ID)).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		if !claimed {
			owner, err := r.client.HGet(ctx, r.hardwareIndexKey(), string(device.HardwareID)).Result()
			if err != nil && err != redis.Nil {
				return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
			}
			if owner != string(device.ID) {
				return fmt.Errorf("%w: hardware already bound to %s", domain.ErrIdentityConflict, owner)
			}
		}
		claimedSlot = claimed
	}

	key := r.deviceKey(device.ID)
	created, err := r.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if !created {
		if claimedSlot {
			r.client.HDel(ctx, r.hardwareIndexKey(), string(device.HardwareID))
		}
		return domain.ErrDeviceExists
	}

	if err := r.client.SAdd(ctx, r.allDevicesKey(), string(device.ID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return nil
}

func (r *RedisDeviceRepository) GetByID(ctx context.Context, id domain.DeviceID) (*domain.Device, error) {
	data, err := r.client.Get(ctx, r.deviceKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	var device domain.Device
	if err := json.Unmarshal([]byte(data), &device); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device: %w", err)
	}

	return &device, nil
}

func (r *RedisDeviceRepository) FindByHardwareID(ctx context.Context, hw domain.HardwareID) (*domain.Device, error) {
	id, err := r.client.HGet(ctx, r.hardwareIndexKey(), string(hw)).Result()
	if err == redis.Nil {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return r.GetByID(ctx, domain.DeviceID(id))
}

// Mutate runs fn inside a WATCH/MULTI optimistic transaction so a concurrent
// writer invalidates and retries the update instead of silently losing it.
func (r *RedisDeviceRepository) Mutate(ctx context.Context, id domain.DeviceID, fn func(*domain.Device) error) (*domain.Device, error) {
	key := r.deviceKey(id)

	var result *domain.Device
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return domain.ErrDeviceNotFound
		}
		if err != nil {
			return err
		}

		var device domain.Device
		if err := json.Unmarshal([]byte(data), &device); err != nil {
			return fmt.Errorf("failed to unmarshal device: %w", err)
		}

		prevHW := device.HardwareID
		if err := fn(&device); err != nil {
			return err
		}

		// A rebind must not steal a fingerprint another device holds.
		if device.HardwareID != prevHW && device.HardwareID != "" {
			owner, err := tx.HGet(ctx, r.hardwareIndexKey(), string(device.HardwareID)).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			if err == nil && owner != string(device.ID) {
				return fmt.Errorf("%w: hardware already bound to %s", domain.ErrIdentityConflict, owner)
			}
		}

		next, err := json.Marshal(&device)
		if err != nil {
			return fmt.Errorf("failed to marshal device: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			if device.HardwareID != prevHW {
				if prevHW != "" {
					pipe.HDel(ctx, r.hardwareIndexKey(), string(prevHW))
				}
				if device.HardwareID != "" {
					pipe.HSet(ctx, r.hardwareIndexKey(), string(device.HardwareID), string(device.ID))
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		result = &device
		return nil
	}

	for i := 0; i < mutateRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, domain.ErrDeviceNotFound) || isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return nil, fmt.Errorf("%w: device mutation contention on %s", domain.ErrStoreUnavailable, id)
}

func (r *RedisDeviceRepository) List(ctx context.Context) ([]*domain.Device, error) {
	ids, err := r.client.SMembers(ctx, r.allDevicesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	var devices []*domain.Device
	for _, id := range ids {
		device, err := r.GetByID(ctx, domain.DeviceID(id))
		if errors.Is(err, domain.ErrDeviceNotFound) {
			// Index member without a record; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, nil
}

func (r *RedisDeviceRepository) Delete(ctx context.Context, id domain.DeviceID) error {
	device, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.deviceKey(id))
	pipe.SRem(ctx, r.allDevicesKey(), string(id))
	if device.HardwareID != "" {
		pipe.HDel(ctx, r.hardwareIndexKey(), string(device.HardwareID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return nil
}

// isDomainError reports whether the error is one of the coordination
// sentinels that must pass through Mutate untouched.
func isDomainError(err error) bool {
	for _, sentinel := range []error{
		domain.ErrInvalidIdentity,
		domain.ErrIdentityConflict,
		domain.ErrNotAMember,
		domain.ErrStaleSwitch,
		domain.ErrDeviceNotFound,
		domain.ErrRoomNotFound,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
