package services

import (
	"context"
	"errors"
	"fmt"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"
	"fleetcast/pkg/utils"

	"go.uber.org/zap"
)

type ingressService struct {
	deviceRepo ports.DeviceRepository
	bridge     ports.MediaBridge
	locks      ports.LockManager
	bus        ports.EventBus
	logger     *zap.SugaredLogger
}

func NewIngressService(
	deviceRepo ports.DeviceRepository,
	bridge ports.MediaBridge,
	locks ports.LockManager,
	bus ports.EventBus,
	logger *zap.SugaredLogger,
) ports.IngressService {
	return &ingressService{
		deviceRepo: deviceRepo,
		bridge:     bridge,
		locks:      locks,
		bus:        bus,
		logger:     logger,
	}
}

// Ensure returns the device's ingress, creating it on first use. The whole
// check-then-create-then-persist sequence runs under the device's lock:
// a second caller racing on a never-provisioned device blocks here and then
// observes the ingress the winner persisted.
func (s *ingressService) Ensure(ctx context.Context, deviceID domain.DeviceID, roomID domain.RoomID) (*domain.Ingress, error) {
	release, err := s.locks.Acquire(ctx, "ingress:"+string(deviceID))
	if err != nil {
		return nil, err
	}
	defer release()

	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if device.Ingress != nil {
		return device.Ingress, nil
	}

	name := utils.IngressName(string(deviceID))
	ingress, err := s.bridge.CreateIngress(ctx, name, roomID, string(deviceID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProvisioningUnavailable, err)
	}

	persisted, err := s.deviceRepo.Mutate(ctx, deviceID, func(d *domain.Device) error {
		if d.Ingress != nil {
			// Lost a race we should not be able to lose; keep the stored
			// ingress and release the one we just created.
			return errAlreadyProvisioned
		}
		d.Ingress = ingress
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyProvisioned) {
			s.deleteQuietly(ctx, ingress.IngressID)
			current, getErr := s.deviceRepo.GetByID(ctx, deviceID)
			if getErr != nil {
				return nil, getErr
			}
			return current.Ingress, nil
		}
		// The bridge resource exists but the record update failed. Leave it:
		// the deterministic name makes the next attempt observe and reuse a
		// fresh record, and reconciliation cleans up strays.
		return nil, err
	}

	s.logger.Infow("ingress provisioned",
		"device_id", deviceID,
		"room_id", roomID,
		"ingress_id", ingress.IngressID,
		"stream_key", utils.MaskSensitive(ingress.StreamKey, 4),
	)
	s.publish(ctx, domain.EventIngressProvisioned, deviceID, roomID)

	return persisted.Ingress, nil
}

// Release deletes the device's bridge resource, if any, and clears the
// record. Used when an operator removes the device.
func (s *ingressService) Release(ctx context.Context, deviceID domain.DeviceID) error {
	release, err := s.locks.Acquire(ctx, "ingress:"+string(deviceID))
	if err != nil {
		return err
	}
	defer release()

	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.Ingress == nil {
		return nil
	}

	if err := s.bridge.DeleteIngress(ctx, device.Ingress.IngressID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProvisioningUnavailable, err)
	}

	_, err = s.deviceRepo.Mutate(ctx, deviceID, func(d *domain.Device) error {
		d.Ingress = nil
		return nil
	})
	return err
}

func (s *ingressService) deleteQuietly(ctx context.Context, ingressID string) {
	if err := s.bridge.DeleteIngress(ctx, ingressID); err != nil {
		s.logger.Warnw("failed to delete duplicate ingress",
			"ingress_id", ingressID,
			"error", err,
		)
	}
}

func (s *ingressService) publish(ctx context.Context, typ domain.EventType, deviceID domain.DeviceID, roomID domain.RoomID) {
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

var errAlreadyProvisioned = errors.New("ingress already provisioned")
