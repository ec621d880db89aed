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

type registryService struct {
	deviceRepo ports.DeviceRepository
	roomRepo   ports.RoomRepository
	ingress    ports.IngressService
	tokens     ports.TokenService
	locks      ports.LockManager
	bus        ports.EventBus
	idSpec     validation.DeviceIDSpec
	logger     *zap.SugaredLogger
}

func NewRegistryService(
	deviceRepo ports.DeviceRepository,
	roomRepo ports.RoomRepository,
	ingress ports.IngressService,
	tokens ports.TokenService,
	locks ports.LockManager,
	bus ports.EventBus,
	idSpec validation.DeviceIDSpec,
	logger *zap.SugaredLogger,
) ports.RegistryService {
	return &registryService{
		deviceRepo: deviceRepo,
		roomRepo:   roomRepo,
		ingress:    ingress,
		tokens:     tokens,
		locks:      locks,
		bus:        bus,
		idSpec:     idSpec,
		logger:     logger,
	}
}

// Register authenticates a camera unit by its claimed ID and hardware
// fingerprint. The first registration binds the fingerprint to the ID;
// afterwards the pair is immutable in both directions: a different
// fingerprint cannot take over the ID, and a bound fingerprint cannot
// register under a different ID.
func (s *registryService) Register(ctx context.Context, deviceID domain.DeviceID, hardwareID domain.HardwareID, origin string) (*ports.RegistrationResult, error) {
	if err := s.idSpec.Validate(string(deviceID)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidIdentity, err)
	}
	if err := validation.ValidateHardwareID(string(hardwareID)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidIdentity, err)
	}

	// The fingerprint lock spans the uniqueness check and the bind, so two
	// units claiming the same hardware under different IDs serialize here
	// and the loser observes the winner's binding.
	release, err := s.locks.Acquire(ctx, "hw:"+string(hardwareID))
	if err != nil {
		return nil, err
	}
	defer release()

	if existing, err := s.deviceRepo.FindByHardwareID(ctx, hardwareID); err == nil {
		if existing.ID != deviceID {
			return nil, fmt.Errorf("%w: hardware already bound to %s", domain.ErrIdentityConflict, existing.ID)
		}
	} else if !errors.Is(err, domain.ErrDeviceNotFound) {
		return nil, err
	}

	device, err := s.bindOrCreate(ctx, deviceID, hardwareID, origin)
	if err != nil {
		return nil, err
	}

	result := &ports.RegistrationResult{
		RoomID:     device.RoomID,
		Ingress:    device.Ingress,
		WSEndpoint: s.tokens.WSEndpoint(),
	}

	if device.RoomID != "" {
		ingress, err := s.ingress.Ensure(ctx, deviceID, device.RoomID)
		if err != nil {
			// Provisioning failure must not lock the device out: it can still
			// connect and be assigned, and the next registration retries.
			s.logger.Warnw("ingress provisioning failed during registration",
				"device_id", deviceID,
				"room_id", device.RoomID,
				"error", err,
			)
			result.Warning = "stream ingress unavailable, retry on next registration"
		} else {
			result.Ingress = ingress
		}
	}

	credential, err := s.tokens.Issue(string(deviceID), device.RoomID, domain.RoleDriver)
	if err != nil {
		return nil, err
	}
	result.Credential = credential

	s.logger.Infow("device registered",
		"device_id", deviceID,
		"room_id", device.RoomID,
		"origin", origin,
	)
	s.publish(ctx, domain.EventDeviceRegistered, deviceID, device.RoomID)

	return result, nil
}

// bindOrCreate brings the device record up to date for this login. The
// hardware check runs inside Mutate so it applies against the committed
// state even when two units race on the same ID.
func (s *registryService) bindOrCreate(ctx context.Context, deviceID domain.DeviceID, hardwareID domain.HardwareID, origin string) (*domain.Device, error) {
	now := time.Now()

	device, err := s.deviceRepo.Mutate(ctx, deviceID, func(d *domain.Device) error {
		if d.Bound() && d.HardwareID != hardwareID {
			return fmt.Errorf("%w: device %s is bound to different hardware", domain.ErrIdentityConflict, deviceID)
		}
		d.HardwareID = hardwareID
		// Registration is proof of life; the presence watchdog reclaims the
		// status if no connection follows.
		if d.Status == domain.StatusOffline {
			d.Status = domain.StatusOnline
		}
		d.LastSeenAt = now
		d.LastLoginAt = now
		d.LastLoginOrigin = origin
		return nil
	})
	if err == nil {
		return device, nil
	}
	if !errors.Is(err, domain.ErrDeviceNotFound) {
		return nil, err
	}

	fresh := &domain.Device{
		ID:              deviceID,
		HardwareID:      hardwareID,
		Status:          domain.StatusOnline,
		LastSeenAt:      now,
		LastLoginAt:     now,
		LastLoginOrigin: origin,
	}
	if err := s.deviceRepo.Create(ctx, fresh); err != nil {
		if errors.Is(err, domain.ErrDeviceExists) {
			// Lost the creation race; re-run the bind against the winner.
			return s.bindOrCreate(ctx, deviceID, hardwareID, origin)
		}
		return nil, err
	}
	return fresh, nil
}

func (s *registryService) GetDevice(ctx context.Context, id domain.DeviceID) (*domain.Device, error) {
	return s.deviceRepo.GetByID(ctx, id)
}

func (s *registryService) ListDevices(ctx context.Context) ([]*domain.Device, error) {
	return s.deviceRepo.List(ctx)
}

func (s *registryService) UpdateMetadata(ctx context.Context, id domain.DeviceID, meta ports.DeviceMetadata) (*domain.Device, error) {
	return s.deviceRepo.Mutate(ctx, id, func(d *domain.Device) error {
		if v := utils.SanitizeString(meta.SailNumber); v != "" {
			d.SailNumber = v
		}
		if v := utils.SanitizeString(meta.Region); v != "" {
			d.Region = v
		}
		if v := utils.SanitizeString(meta.TeamName); v != "" {
			d.TeamName = v
		}
		return nil
	})
}

// DeleteDevice removes a device entirely: its bridge ingress, its room
// membership, then the record. Partial failure leaves the record in place
// so the operator can retry.
func (s *registryService) DeleteDevice(ctx context.Context, id domain.DeviceID) error {
	device, err := s.deviceRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.ingress.Release(ctx, id); err != nil {
		return err
	}

	if device.RoomID != "" {
		if _, err := s.roomRepo.Mutate(ctx, device.RoomID, func(r *domain.Room) error {
			r.RemoveMember(id)
			return nil
		}); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			return err
		}
	}

	if err := s.deviceRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Infow("device deleted", "device_id", id)
	s.publish(ctx, domain.EventDeviceDeleted, id, device.RoomID)
	return nil
}

func (s *registryService) publish(ctx context.Context, typ domain.EventType, deviceID domain.DeviceID, roomID domain.RoomID) {
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
