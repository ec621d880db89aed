package domain

import (
	"time"
)

type DeviceID string
type RoomID string
type HardwareID string

type DeviceStatus string

const (
	StatusOnline    DeviceStatus = "online"
	StatusOffline   DeviceStatus = "offline"
	StatusStreaming DeviceStatus = "streaming"
)

// Ingress is the external bridge endpoint allocated for a device.
// It is created at most once per device and never regenerated.
type Ingress struct {
	IngressID string `json:"ingress_id"`
	StreamKey string `json:"stream_key"`
	BridgeURL string `json:"bridge_url"`
}

// Device is a registered camera unit. ID is the stable boat identifier
// (e.g. "YRAT01"); HardwareID is bound on first registration and is
// immutable afterwards.
type Device struct {
	ID         DeviceID     `json:"id"`
	HardwareID HardwareID   `json:"hardware_id,omitempty"`
	RoomID     RoomID       `json:"room_id,omitempty"`
	Status     DeviceStatus `json:"status"`

	LastSeenAt      time.Time `json:"last_seen_at"`
	LastLoginAt     time.Time `json:"last_login_at,omitempty"`
	LastLoginOrigin string    `json:"last_login_origin,omitempty"`

	// Crew metadata shown in the operator console.
	SailNumber string `json:"sail_number,omitempty"`
	Region     string `json:"region,omitempty"`
	TeamName   string `json:"team_name,omitempty"`

	Ingress *Ingress `json:"ingress,omitempty"`
}

// Bound reports whether the device has a hardware fingerprint attached.
// An unbound device is a pre-provisioned placeholder.
func (d *Device) Bound() bool {
	return d.HardwareID != ""
}

// Clone returns a deep copy so callers can mutate without aliasing
// repository state.
func (d *Device) Clone() *Device {
	cp := *d
	if d.Ingress != nil {
		ing := *d.Ingress
		cp.Ingress = &ing
	}
	return &cp
}
