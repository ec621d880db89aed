package domain

import "time"

// Room groups devices into one broadcast context. At most one member is
// on air at a time; ActiveDeviceID must always be empty or a member of
// AssignedDevices.
type Room struct {
	ID        RoomID    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`

	ActiveDeviceID  DeviceID   `json:"active_device_id,omitempty"`
	AssignedDevices []DeviceID `json:"assigned_devices"`

	// LastUpdated is the unix-millisecond stamp of the most recent switch
	// decision. Switches carrying an older stamp are rejected.
	LastUpdated int64 `json:"last_updated"`
}

func (r *Room) HasMember(id DeviceID) bool {
	for _, d := range r.AssignedDevices {
		if d == id {
			return true
		}
	}
	return false
}

// AddMember appends the device to the membership projection if absent.
func (r *Room) AddMember(id DeviceID) {
	if !r.HasMember(id) {
		r.AssignedDevices = append(r.AssignedDevices, id)
	}
}

// RemoveMember drops the device from the projection and clears the active
// pointer if it was on air.
func (r *Room) RemoveMember(id DeviceID) {
	members := r.AssignedDevices[:0]
	for _, d := range r.AssignedDevices {
		if d != id {
			members = append(members, d)
		}
	}
	r.AssignedDevices = members
	if r.ActiveDeviceID == id {
		r.ActiveDeviceID = ""
	}
}

func (r *Room) Clone() *Room {
	cp := *r
	cp.AssignedDevices = append([]DeviceID(nil), r.AssignedDevices...)
	return &cp
}
