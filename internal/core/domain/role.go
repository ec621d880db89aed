package domain

// Role determines the capabilities granted by a join credential.
type Role string

const (
	// RoleDriver publishes its own feed and can watch the room.
	RoleDriver Role = "driver"
	// RoleViewer only watches.
	RoleViewer Role = "viewer"
	// RoleAdmin additionally carries the out-of-band control-signal grant.
	RoleAdmin Role = "admin"
)
