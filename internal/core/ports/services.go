package ports

import (
	"context"
	"time"

	"fleetcast/internal/core/domain"
)

// RegistrationResult is what a device receives after a successful
// registration. Ingress is present only when provisioning has succeeded at
// some point; Warning carries a non-fatal provisioning failure.
type RegistrationResult struct {
	RoomID     domain.RoomID   `json:"room_id,omitempty"`
	Ingress    *domain.Ingress `json:"ingress,omitempty"`
	Credential string          `json:"credential"`
	WSEndpoint string          `json:"ws_endpoint"`
	Warning    string          `json:"warning,omitempty"`
}

// DeviceMetadata is the operator-editable crew info on a device.
type DeviceMetadata struct {
	SailNumber string `json:"sail_number,omitempty"`
	Region     string `json:"region,omitempty"`
	TeamName   string `json:"team_name,omitempty"`
}

type RegistryService interface {
	Register(ctx context.Context, deviceID domain.DeviceID, hardwareID domain.HardwareID, origin string) (*RegistrationResult, error)
	GetDevice(ctx context.Context, id domain.DeviceID) (*domain.Device, error)
	ListDevices(ctx context.Context) ([]*domain.Device, error)
	UpdateMetadata(ctx context.Context, id domain.DeviceID, meta DeviceMetadata) (*domain.Device, error)
	DeleteDevice(ctx context.Context, id domain.DeviceID) error
}

type IngressService interface {
	Ensure(ctx context.Context, deviceID domain.DeviceID, roomID domain.RoomID) (*domain.Ingress, error)
	Release(ctx context.Context, deviceID domain.DeviceID) error
}

type RoomService interface {
	CreateRoom(ctx context.Context, name, createdBy string) (*domain.Room, error)
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	ListRooms(ctx context.Context) ([]*domain.Room, error)
	DeleteRoom(ctx context.Context, id domain.RoomID) error
	AssignDevice(ctx context.Context, roomID domain.RoomID, deviceID domain.DeviceID) error
	UnassignDevice(ctx context.Context, deviceID domain.DeviceID) error
	Switch(ctx context.Context, roomID domain.RoomID, deviceID domain.DeviceID, at time.Time) error
}

type PresenceService interface {
	Connect(ctx context.Context, deviceID domain.DeviceID) error
	Heartbeat(ctx context.Context, deviceID domain.DeviceID) error
	Disconnect(ctx context.Context, deviceID domain.DeviceID) error
	SetStreaming(ctx context.Context, deviceID domain.DeviceID, on bool) error
	ForceOffline(ctx context.Context, deviceID domain.DeviceID) error
}

// TokenService mints short-lived, role- and room-scoped join credentials.
// Every call is independent; nothing is persisted.
type TokenService interface {
	Issue(identity string, roomID domain.RoomID, role domain.Role) (string, error)
	WSEndpoint() string
}
