package domain

import "errors"

var (
	ErrInvalidIdentity         = errors.New("invalid device identity")
	ErrIdentityConflict        = errors.New("hardware identity conflict")
	ErrNotAMember              = errors.New("device is not a member of room")
	ErrProvisioningUnavailable = errors.New("ingress provisioning unavailable")
	ErrStoreUnavailable        = errors.New("state store unavailable")
	ErrStaleSwitch             = errors.New("switch request is stale")
	ErrDeviceNotFound          = errors.New("device not found")
	ErrDeviceExists            = errors.New("device already exists")
	ErrRoomNotFound            = errors.New("room not found")
	ErrRoomExists              = errors.New("room already exists")
)
