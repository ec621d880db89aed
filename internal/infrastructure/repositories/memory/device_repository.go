package memory

import (
	"context"
	"fmt"
	"sync"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"
)

type MemoryDeviceRepository struct {
	devices map[domain.DeviceID]*domain.Device
	mu      sync.RWMutex
}

func NewMemoryDeviceRepository() ports.DeviceRepository {
	return &MemoryDeviceRepository{
		devices: make(map[domain.DeviceID]*domain.Device),
	}
}

func (r *MemoryDeviceRepository) Create(ctx context.Context, device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[device.ID]; exists {
		return domain.ErrDeviceExists
	}
	if owner, taken := r.hardwareOwner(device.HardwareID); taken && owner != device.ID {
		return fmt.Errorf("%w: hardware already bound to %s", domain.ErrIdentityConflict, owner)
	}

	r.devices[device.ID] = device.Clone()
	return nil
}

func (r *MemoryDeviceRepository) GetByID(ctx context.Context, id domain.DeviceID) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, exists := r.devices[id]
	if !exists {
		return nil, domain.ErrDeviceNotFound
	}

	return device.Clone(), nil
}

func (r *MemoryDeviceRepository) FindByHardwareID(ctx context.Context, hw domain.HardwareID) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, device := range r.devices {
		if device.HardwareID == hw {
			return device.Clone(), nil
		}
	}

	return nil, domain.ErrDeviceNotFound
}

// Mutate applies fn to a copy of the stored record and swaps it in under the
// repository lock, so concurrent mutations of the same device serialize.
func (r *MemoryDeviceRepository) Mutate(ctx context.Context, id domain.DeviceID, fn func(*domain.Device) error) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, exists := r.devices[id]
	if !exists {
		return nil, domain.ErrDeviceNotFound
	}

	next := device.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.HardwareID != device.HardwareID {
		if owner, taken := r.hardwareOwner(next.HardwareID); taken && owner != id {
			return nil, fmt.Errorf("%w: hardware already bound to %s", domain.ErrIdentityConflict, owner)
		}
	}

	r.devices[id] = next
	return next.Clone(), nil
}

// hardwareOwner must be called with the repository lock held.
func (r *MemoryDeviceRepository) hardwareOwner(hw domain.HardwareID) (domain.DeviceID, bool) {
	if hw == "" {
		return "", false
	}
	for id, device := range r.devices {
		if device.HardwareID == hw {
			return id, true
		}
	}
	return "", false
}

func (r *MemoryDeviceRepository) List(ctx context.Context) ([]*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*domain.Device, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, device.Clone())
	}

	return devices, nil
}

func (r *MemoryDeviceRepository) Delete(ctx context.Context, id domain.DeviceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[id]; !exists {
		return domain.ErrDeviceNotFound
	}

	delete(r.devices, id)
	return nil
}
