package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"

	"go.uber.org/zap"
)

// PresenceTracker maintains device liveness. Every connected device holds a
// watchdog deadline; heartbeats extend it and a sweep loop marks devices
// offline when it lapses. The deadline is registered before the device is
// marked online, so a connection dropped between the two steps still
// resolves to offline.
type PresenceTracker struct {
	deviceRepo ports.DeviceRepository
	bus        ports.EventBus
	timeout    time.Duration
	sweepEvery time.Duration
	logger     *zap.SugaredLogger

	mu        sync.Mutex
	deadlines map[domain.DeviceID]time.Time
}

func NewPresenceTracker(
	deviceRepo ports.DeviceRepository,
	bus ports.EventBus,
	timeout, sweepEvery time.Duration,
	logger *zap.SugaredLogger,
) *PresenceTracker {
	return &PresenceTracker{
		deviceRepo: deviceRepo,
		bus:        bus,
		timeout:    timeout,
		sweepEvery: sweepEvery,
		logger:     logger,
		deadlines:  make(map[domain.DeviceID]time.Time),
	}
}

var _ ports.PresenceService = (*PresenceTracker)(nil)

// Run drives the sweep loop until ctx is cancelled. On shutdown every
// tracked device is forced offline so the store never advertises presence
// this process can no longer vouch for.
func (t *PresenceTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.markAllOffline()
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

func (t *PresenceTracker) Connect(ctx context.Context, deviceID domain.DeviceID) error {
	t.extend(deviceID)

	if err := t.setStatus(ctx, deviceID, domain.StatusOnline); err != nil {
		t.forget(deviceID)
		return err
	}

	t.logger.Infow("device online", "device_id", deviceID)
	t.publish(ctx, domain.EventDeviceOnline, deviceID)
	return nil
}

func (t *PresenceTracker) Heartbeat(ctx context.Context, deviceID domain.DeviceID) error {
	t.extend(deviceID)
	_, err := t.deviceRepo.Mutate(ctx, deviceID, func(d *domain.Device) error {
		d.LastSeenAt = time.Now()
		return nil
	})
	return err
}

func (t *PresenceTracker) Disconnect(ctx context.Context, deviceID domain.DeviceID) error {
	t.forget(deviceID)

	if err := t.setStatus(ctx, deviceID, domain.StatusOffline); err != nil {
		return err
	}

	t.logger.Infow("device offline", "device_id", deviceID)
	t.publish(ctx, domain.EventDeviceOffline, deviceID)
	return nil
}

// SetStreaming flips the device between online and streaming. A device
// that was never connected stays offline regardless.
func (t *PresenceTracker) SetStreaming(ctx context.Context, deviceID domain.DeviceID, on bool) error {
	t.extend(deviceID)

	_, err := t.deviceRepo.Mutate(ctx, deviceID, func(d *domain.Device) error {
		if d.Status == domain.StatusOffline {
			return nil
		}
		if on {
			d.Status = domain.StatusStreaming
		} else {
			d.Status = domain.StatusOnline
		}
		d.LastSeenAt = time.Now()
		return nil
	})
	if err != nil {
		return err
	}

	if on {
		t.publish(ctx, domain.EventDeviceStreaming, deviceID)
	}
	return nil
}

// ForceOffline is the operator-initiated kick. The transport layer closes
// the connection separately; this makes the store state unconditional.
func (t *PresenceTracker) ForceOffline(ctx context.Context, deviceID domain.DeviceID) error {
	t.forget(deviceID)

	if err := t.setStatus(ctx, deviceID, domain.StatusOffline); err != nil {
		return err
	}

	t.logger.Infow("device forced offline", "device_id", deviceID)
	t.publish(ctx, domain.EventDeviceOffline, deviceID)
	return nil
}

func (t *PresenceTracker) sweep(ctx context.Context) {
	now := time.Now()

	// Untracked first: devices with an expired deadline are still in the
	// map at this point, so nothing is collected twice.
	expired := t.staleUntracked(ctx, now)

	t.mu.Lock()
	for id, deadline := range t.deadlines {
		if now.After(deadline) {
			expired = append(expired, id)
			delete(t.deadlines, id)
		}
	}
	t.mu.Unlock()

	for _, id := range expired {
		if err := t.setStatus(ctx, id, domain.StatusOffline); err != nil {
			t.logger.Warnw("failed to expire device presence", "device_id", id, "error", err)
			continue
		}
		t.logger.Infow("device presence expired", "device_id", id)
		t.publish(ctx, domain.EventDeviceOffline, id)
	}
}

// staleUntracked finds devices advertised online without a live deadline:
// registered but never connected, or left over from a crash of a previous
// process. Their LastSeenAt is the only liveness signal available.
func (t *PresenceTracker) staleUntracked(ctx context.Context, now time.Time) []domain.DeviceID {
	devices, err := t.deviceRepo.List(ctx)
	if err != nil {
		t.logger.Warnw("presence sweep list failed", "error", err)
		return nil
	}

	var stale []domain.DeviceID
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range devices {
		if d.Status == domain.StatusOffline {
			continue
		}
		if _, tracked := t.deadlines[d.ID]; tracked {
			continue
		}
		if now.Sub(d.LastSeenAt) > t.timeout {
			stale = append(stale, d.ID)
		}
	}
	return stale
}

func (t *PresenceTracker) markAllOffline() {
	t.mu.Lock()
	tracked := make([]domain.DeviceID, 0, len(t.deadlines))
	for id := range t.deadlines {
		tracked = append(tracked, id)
	}
	t.deadlines = make(map[domain.DeviceID]time.Time)
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range tracked {
		if err := t.setStatus(ctx, id, domain.StatusOffline); err != nil {
			t.logger.Warnw("failed to mark device offline on shutdown", "device_id", id, "error", err)
		}
	}
}

func (t *PresenceTracker) setStatus(ctx context.Context, deviceID domain.DeviceID, status domain.DeviceStatus) error {
	_, err := t.deviceRepo.Mutate(ctx, deviceID, func(d *domain.Device) error {
		d.Status = status
		d.LastSeenAt = time.Now()
		return nil
	})
	if errors.Is(err, domain.ErrDeviceNotFound) && status == domain.StatusOffline {
		// Deleted while tracked; offline is already true by absence.
		return nil
	}
	return err
}

func (t *PresenceTracker) extend(deviceID domain.DeviceID) {
	t.mu.Lock()
	t.deadlines[deviceID] = time.Now().Add(t.timeout)
	t.mu.Unlock()
}

func (t *PresenceTracker) forget(deviceID domain.DeviceID) {
	t.mu.Lock()
	delete(t.deadlines, deviceID)
	t.mu.Unlock()
}

func (t *PresenceTracker) publish(ctx context.Context, typ domain.EventType, deviceID domain.DeviceID) {
	if t.bus == nil {
		return
	}
	if err := t.bus.Publish(ctx, &domain.Event{
		Type:     typ,
		DeviceID: deviceID,
	}); err != nil {
		t.logger.Warnw("failed to publish event", "type", typ, "error", err)
	}
}
