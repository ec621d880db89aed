package ports

import (
	"context"

	"fleetcast/internal/core/domain"
)

// DeviceRepository stores Device records under devices/{id}. Mutate is the
// only way to change an existing record: implementations run fn against the
// current value and persist the result atomically (compare-and-set), so two
// concurrent mutations of the same device cannot both apply against the same
// pre-state.
type DeviceRepository interface {
	Create(ctx context.Context, device *domain.Device) error
	GetByID(ctx context.Context, id domain.DeviceID) (*domain.Device, error)
	FindByHardwareID(ctx context.Context, hw domain.HardwareID) (*domain.Device, error)
	Mutate(ctx context.Context, id domain.DeviceID, fn func(*domain.Device) error) (*domain.Device, error)
	List(ctx context.Context) ([]*domain.Device, error)
	Delete(ctx context.Context, id domain.DeviceID) error
}

// RoomRepository stores Room records under rooms/{id} with the same
// compare-and-set mutation contract as DeviceRepository.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	Mutate(ctx context.Context, id domain.RoomID, fn func(*domain.Room) error) (*domain.Room, error)
	List(ctx context.Context) ([]*domain.Room, error)
	Delete(ctx context.Context, id domain.RoomID) error
}
