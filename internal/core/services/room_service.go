package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"
	"fleetcast/pkg/utils"
	"fleetcast/pkg/validation"

	"go.uber.org/zap"
)

type roomService struct {
	roomRepo   ports.RoomRepository
	deviceRepo ports.DeviceRepository
	locks      ports.LockManager
	bus        ports.EventBus
	logger     *zap.SugaredLogger
}

func NewRoomService(
	roomRepo ports.RoomRepository,
	deviceRepo ports.DeviceRepository,
	locks ports.LockManager,
	bus ports.EventBus,
	logger *zap.SugaredLogger,
) ports.RoomService {
	return &roomService{
		roomRepo:   roomRepo,
		deviceRepo: deviceRepo,
		locks:      locks,
		bus:        bus,
		logger:     logger,
	}
}

func (s *roomService) CreateRoom(ctx context.Context, name, createdBy string) (*domain.Room, error) {
	if err := validation.ValidateRoomName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidIdentity, err)
	}

	room := &domain.Room{
		ID:              domain.RoomID(utils.GenerateRoomID()),
		Name:            name,
		CreatedAt:       time.Now(),
		CreatedBy:       createdBy,
		AssignedDevices: []domain.DeviceID{},
	}
	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Infow("room created", "room_id", room.ID, "name", name, "created_by", createdBy)
	s.publish(ctx, domain.EventRoomCreated, "", room.ID)
	return room, nil
}

func (s *roomService) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	return s.roomRepo.GetByID(ctx, id)
}

func (s *roomService) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	return s.roomRepo.List(ctx)
}

// DeleteRoom unassigns every member before removing the room record, so no
// device is ever left pointing at a room that no longer exists. Membership
// edits and deletion for one room serialize on the room's lock; an assign
// racing a delete either lands before the membership snapshot is read or
// fails on the removed record.
func (s *roomService) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	release, err := s.locks.Acquire(ctx, "room:"+string(id))
	if err != nil {
		return err
	}
	defer release()

	room, err := s.roomRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, deviceID := range room.AssignedDevices {
		if _, err := s.deviceRepo.Mutate(ctx, deviceID, func(d *domain.Device) error {
			if d.RoomID == id {
				d.RoomID = ""
			}
			return nil
		}); err != nil && !errors.Is(err, domain.ErrDeviceNotFound) {
			return err
		}
	}

	if err := s.roomRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Infow("room deleted", "room_id", id, "members", len(room.AssignedDevices))
	s.publish(ctx, domain.EventRoomDeleted, "", id)
	return nil
}

// AssignDevice moves a device into a room. A device belongs to at most one
// room, so an existing assignment is dissolved first.
func (s *roomService) AssignDevice(ctx context.Context, roomID domain.RoomID, deviceID domain.DeviceID) error {
	release, err := s.locks.Acquire(ctx, "room:"+string(roomID))
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.roomRepo.GetByID(ctx, roomID); err != nil {
		return err
	}

	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.RoomID == roomID {
		return nil
	}

	if device.RoomID != "" {
		if err := s.removeFromRoom(ctx, device.RoomID, deviceID); err != nil {
			return err
		}
	}

	if _, err := s.roomRepo.Mutate(ctx, roomID, func(r *domain.Room) error {
		r.AddMember(deviceID)
		return nil
	}); err != nil {
		return err
	}

	if _, err := s.deviceRepo.Mutate(ctx, deviceID, func(d *domain.Device) error {
		d.RoomID = roomID
		return nil
	}); err != nil {
		return err
	}

	s.logger.Infow("device assigned", "device_id", deviceID, "room_id", roomID)
	s.publish(ctx, domain.EventDeviceAssigned, deviceID, roomID)
	return nil
}

func (s *roomService) UnassignDevice(ctx context.Context, deviceID domain.DeviceID) error {
	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.RoomID == "" {
		return nil
	}

	release, err := s.locks.Acquire(ctx, "room:"+string(device.RoomID))
	if err != nil {
		return err
	}
	defer release()

	// The assignment may have moved while we waited for the lock; operate
	// on the committed state.
	device, err = s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.RoomID == "" {
		return nil
	}

	if err := s.removeFromRoom(ctx, device.RoomID, deviceID); err != nil {
		return err
	}

	if _, err := s.deviceRepo.Mutate(ctx, deviceID, func(d *domain.Device) error {
		d.RoomID = ""
		return nil
	}); err != nil {
		return err
	}

	s.logger.Infow("device unassigned", "device_id", deviceID, "room_id", device.RoomID)
	s.publish(ctx, domain.EventDeviceAssigned, deviceID, "")
	return nil
}

// Switch puts a member on air, or clears the broadcaster when deviceID is
// empty. The decision timestamp must be newer than the room's last applied
// switch; out-of-order arrivals are rejected rather than reordered.
func (s *roomService) Switch(ctx context.Context, roomID domain.RoomID, deviceID domain.DeviceID, at time.Time) error {
	stamp := at.UnixMilli()

	room, err := s.roomRepo.Mutate(ctx, roomID, func(r *domain.Room) error {
		if stamp <= r.LastUpdated {
			return fmt.Errorf("%w: switch at %d is not newer than %d", domain.ErrStaleSwitch, stamp, r.LastUpdated)
		}
		if deviceID != "" && !r.HasMember(deviceID) {
			return fmt.Errorf("%w: %s is not assigned to %s", domain.ErrNotAMember, deviceID, roomID)
		}
		r.ActiveDeviceID = deviceID
		r.LastUpdated = stamp
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Infow("broadcaster switched",
		"room_id", roomID,
		"device_id", deviceID,
		"last_updated", room.LastUpdated,
	)
	s.publish(ctx, domain.EventRoomSwitched, deviceID, roomID)
	return nil
}

func (s *roomService) removeFromRoom(ctx context.Context, roomID domain.RoomID, deviceID domain.DeviceID) error {
	_, err := s.roomRepo.Mutate(ctx, roomID, func(r *domain.Room) error {
		r.RemoveMember(deviceID)
		return nil
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		// Stale backlink from a room deleted mid-crash; nothing to undo.
		return nil
	}
	return err
}

func (s *roomService) publish(ctx context.Context, typ domain.EventType, deviceID domain.DeviceID, roomID domain.RoomID) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, &domain.Event{
		Type:     typ,
		DeviceID: deviceID,
		RoomID:   roomID,
	}); err != nil {
		s.logger.Warnw("failed to publish event", "type", typ, "error", err)
	}
}
