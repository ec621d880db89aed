package domain

import (
	"encoding/json"
	"time"
)

// EventType identifies a coordination state change.
type EventType string

const (
	EventDeviceRegistered   EventType = "device.registered"
	EventDeviceOnline       EventType = "device.online"
	EventDeviceOffline      EventType = "device.offline"
	EventDeviceStreaming    EventType = "device.streaming"
	EventDeviceAssigned     EventType = "device.assigned"
	EventDeviceDeleted      EventType = "device.deleted"
	EventRoomCreated        EventType = "room.created"
	EventRoomDeleted        EventType = "room.deleted"
	EventRoomSwitched       EventType = "room.switched"
	EventIngressProvisioned EventType = "ingress.provisioned"
)

// Event is published on every Device/Room mutation so presentation layers
// can re-render without polling the store.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	DeviceID  DeviceID        `json:"device_id,omitempty"`
	RoomID    RoomID          `json:"room_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
