package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"
	"fleetcast/internal/infrastructure/repositories/memory"
	"fleetcast/pkg/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockMediaBridge struct {
	mock.Mock
}

func (m *MockMediaBridge) CreateIngress(ctx context.Context, name string, roomID domain.RoomID, participantIdentity string) (*domain.Ingress, error) {
	args := m.Called(ctx, name, roomID, participantIdentity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ingress), args.Error(1)
}

func (m *MockMediaBridge) DeleteIngress(ctx context.Context, ingressID string) error {
	args := m.Called(ctx, ingressID)
	return args.Error(0)
}

func newTestRegistry(bridge *MockMediaBridge) (ports.RegistryService, ports.DeviceRepository, ports.RoomRepository) {
	logger := zap.NewNop().Sugar()
	deviceRepo := memory.NewMemoryDeviceRepository()
	roomRepo := memory.NewMemoryRoomRepository()
	locks := memory.NewMemoryLockManager()
	ingress := NewIngressService(deviceRepo, bridge, locks, nil, logger)
	tokens := NewTokenService("devkey", "0123456789abcdef0123456789abcdef", "wss://media.example.com", time.Hour)

	svc := NewRegistryService(deviceRepo, roomRepo, ingress, tokens, locks, nil, validation.DefaultDeviceIDSpec(), logger)
	return svc, deviceRepo, roomRepo
}

func TestRegistryService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("first registration binds hardware", func(t *testing.T) {
		svc, deviceRepo, _ := newTestRegistry(new(MockMediaBridge))

		result, err := svc.Register(ctx, "YRAT01", "mac-AA:BB:CC:DD:EE:FF", "203.0.113.7")

		assert.NoError(t, err)
		assert.NotNil(t, result)
		assert.NotEmpty(t, result.Credential)
		assert.Equal(t, "wss://media.example.com", result.WSEndpoint)
		assert.Empty(t, result.Warning)

		device, err := deviceRepo.GetByID(ctx, "YRAT01")
		assert.NoError(t, err)
		assert.Equal(t, domain.HardwareID("mac-AA:BB:CC:DD:EE:FF"), device.HardwareID)
		assert.Equal(t, domain.StatusOnline, device.Status)
		assert.Equal(t, "203.0.113.7", device.LastLoginOrigin)
		assert.False(t, device.LastLoginAt.IsZero())
	})

	t.Run("repeat registration with same pair succeeds", func(t *testing.T) {
		svc, deviceRepo, _ := newTestRegistry(new(MockMediaBridge))

		_, err := svc.Register(ctx, "YRAT01", "mac-AA:BB:CC:DD:EE:FF", "203.0.113.7")
		assert.NoError(t, err)

		before, _ := deviceRepo.GetByID(ctx, "YRAT01")

		result, err := svc.Register(ctx, "YRAT01", "mac-AA:BB:CC:DD:EE:FF", "198.51.100.9")
		assert.NoError(t, err)
		assert.NotEmpty(t, result.Credential)

		after, _ := deviceRepo.GetByID(ctx, "YRAT01")
		assert.Equal(t, before.HardwareID, after.HardwareID)
		assert.Equal(t, "198.51.100.9", after.LastLoginOrigin)
	})

	t.Run("invalid device ID rejected", func(t *testing.T) {
		svc, _, _ := newTestRegistry(new(MockMediaBridge))

		_, err := svc.Register(ctx, "BOAT01", "mac-AA", "")
		assert.ErrorIs(t, err, domain.ErrInvalidIdentity)

		_, err = svc.Register(ctx, "YRAT00", "mac-AA", "")
		assert.ErrorIs(t, err, domain.ErrInvalidIdentity)

		_, err = svc.Register(ctx, "YRAT1", "mac-AA", "")
		assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
	})

	t.Run("empty hardware ID rejected", func(t *testing.T) {
		svc, _, _ := newTestRegistry(new(MockMediaBridge))

		_, err := svc.Register(ctx, "YRAT01", "", "")
		assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
	})

	t.Run("hardware bound to another ID is rejected", func(t *testing.T) {
		svc, _, _ := newTestRegistry(new(MockMediaBridge))

		_, err := svc.Register(ctx, "YRAT01", "mac-AA:BB:CC:DD:EE:FF", "")
		assert.NoError(t, err)

		_, err = svc.Register(ctx, "YRAT02", "mac-AA:BB:CC:DD:EE:FF", "")
		assert.ErrorIs(t, err, domain.ErrIdentityConflict)
	})

	t.Run("bound ID rejects a different hardware", func(t *testing.T) {
		svc, deviceRepo, _ := newTestRegistry(new(MockMediaBridge))

		_, err := svc.Register(ctx, "YRAT01", "mac-AA:BB:CC:DD:EE:FF", "")
		assert.NoError(t, err)

		_, err = svc.Register(ctx, "YRAT01", "mac-11:22:33:44:55:66", "")
		assert.ErrorIs(t, err, domain.ErrIdentityConflict)

		device, _ := deviceRepo.GetByID(ctx, "YRAT01")
		assert.Equal(t, domain.HardwareID("mac-AA:BB:CC:DD:EE:FF"), device.HardwareID)
	})

	t.Run("pre-provisioned placeholder binds on first use", func(t *testing.T) {
		svc, deviceRepo, _ := newTestRegistry(new(MockMediaBridge))

		err := deviceRepo.Create(ctx, &domain.Device{
			ID:         "YRAT05",
			Status:     domain.StatusOffline,
			SailNumber: "NZL-42",
		})
		assert.NoError(t, err)

		result, err := svc.Register(ctx, "YRAT05", "mac-05", "")
		assert.NoError(t, err)
		assert.NotEmpty(t, result.Credential)

		device, _ := deviceRepo.GetByID(ctx, "YRAT05")
		assert.Equal(t, domain.HardwareID("mac-05"), device.HardwareID)
		assert.Equal(t, "NZL-42", device.SailNumber)
	})
}

func TestRegistryService_ConcurrentRegistration(t *testing.T) {
	ctx := context.Background()

	t.Run("same hardware under different IDs binds exactly once", func(t *testing.T) {
		svc, deviceRepo, _ := newTestRegistry(new(MockMediaBridge))

		const n = 8
		start := make(chan struct{})
		errs := make([]error, n)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				id := domain.DeviceID(fmt.Sprintf("YRAT%02d", i+1))
				_, errs[i] = svc.Register(ctx, id, "mac-SHARED", "")
			}(i)
		}
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, domain.ErrIdentityConflict)
			}
		}
		assert.Equal(t, 1, succeeded)

		devices, err := deviceRepo.List(ctx)
		assert.NoError(t, err)
		assert.Len(t, devices, 1)
		assert.Equal(t, domain.HardwareID("mac-SHARED"), devices[0].HardwareID)
	})

	t.Run("same ID under different hardware binds exactly once", func(t *testing.T) {
		svc, deviceRepo, _ := newTestRegistry(new(MockMediaBridge))

		const n = 8
		start := make(chan struct{})
		errs := make([]error, n)
		hardware := make([]domain.HardwareID, n)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			hardware[i] = domain.HardwareID(fmt.Sprintf("mac-%02d", i))
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = svc.Register(ctx, "YRAT01", hardware[i], "")
			}(i)
		}
		close(start)
		wg.Wait()

		succeeded := 0
		var winner domain.HardwareID
		for i, err := range errs {
			if err == nil {
				succeeded++
				winner = hardware[i]
			} else {
				assert.ErrorIs(t, err, domain.ErrIdentityConflict)
			}
		}
		assert.Equal(t, 1, succeeded)

		device, err := deviceRepo.GetByID(ctx, "YRAT01")
		assert.NoError(t, err)
		assert.Equal(t, winner, device.HardwareID)
	})
}

func TestRegistryService_RegisterProvisionsIngress(t *testing.T) {
	ctx := context.Background()

	t.Run("assigned device gets an ingress exactly once", func(t *testing.T) {
		bridge := new(MockMediaBridge)
		svc, deviceRepo, roomRepo := newTestRegistry(bridge)

		err := roomRepo.Create(ctx, &domain.Room{
			ID:              "room-regatta1",
			Name:            "Regatta",
			AssignedDevices: []domain.DeviceID{"YRAT03"},
		})
		assert.NoError(t, err)
		err = deviceRepo.Create(ctx, &domain.Device{
			ID:     "YRAT03",
			RoomID: "room-regatta1",
			Status: domain.StatusOffline,
		})
		assert.NoError(t, err)

		bridge.On("CreateIngress", mock.Anything, "YRAT03-ingress", domain.RoomID("room-regatta1"), "YRAT03").
			Return(&domain.Ingress{IngressID: "in-1", StreamKey: "sk-1", BridgeURL: "whip://bridge"}, nil).
			Once()

		result, err := svc.Register(ctx, "YRAT03", "mac-03", "")
		assert.NoError(t, err)
		assert.NotNil(t, result.Ingress)
		assert.Equal(t, "in-1", result.Ingress.IngressID)
		assert.Equal(t, domain.RoomID("room-regatta1"), result.RoomID)

		// Second registration reuses the persisted ingress.
		result, err = svc.Register(ctx, "YRAT03", "mac-03", "")
		assert.NoError(t, err)
		assert.NotNil(t, result.Ingress)
		assert.Equal(t, "in-1", result.Ingress.IngressID)

		bridge.AssertExpectations(t)
	})

	t.Run("provisioning failure is a warning, not an error", func(t *testing.T) {
		bridge := new(MockMediaBridge)
		svc, deviceRepo, roomRepo := newTestRegistry(bridge)

		err := roomRepo.Create(ctx, &domain.Room{
			ID:              "room-regatta2",
			AssignedDevices: []domain.DeviceID{"YRAT04"},
		})
		assert.NoError(t, err)
		err = deviceRepo.Create(ctx, &domain.Device{
			ID:     "YRAT04",
			RoomID: "room-regatta2",
			Status: domain.StatusOffline,
		})
		assert.NoError(t, err)

		bridge.On("CreateIngress", mock.Anything, "YRAT04-ingress", domain.RoomID("room-regatta2"), "YRAT04").
			Return(nil, assert.AnError)

		result, err := svc.Register(ctx, "YRAT04", "mac-04", "")
		assert.NoError(t, err)
		assert.Nil(t, result.Ingress)
		assert.NotEmpty(t, result.Warning)
		assert.NotEmpty(t, result.Credential)
	})
}

func TestRegistryService_UpdateMetadata(t *testing.T) {
	ctx := context.Background()
	svc, deviceRepo, _ := newTestRegistry(new(MockMediaBridge))

	err := deviceRepo.Create(ctx, &domain.Device{
		ID:         "YRAT06",
		Status:     domain.StatusOffline,
		SailNumber: "NZL-7",
		Region:     "Auckland",
	})
	assert.NoError(t, err)

	device, err := svc.UpdateMetadata(ctx, "YRAT06", ports.DeviceMetadata{})
	assert.NoError(t, err)
	assert.Equal(t, "NZL-7", device.SailNumber)
	assert.Equal(t, "Auckland", device.Region)

	device, err = svc.UpdateMetadata(ctx, "YRAT06", ports.DeviceMetadata{SailNumber: "NZL-8", TeamName: "Team Aotearoa"})
	assert.NoError(t, err)
	assert.Equal(t, "NZL-8", device.SailNumber)
	assert.Equal(t, "Auckland", device.Region)
	assert.Equal(t, "Team Aotearoa", device.TeamName)

	_, err = svc.UpdateMetadata(ctx, "YRAT99", ports.DeviceMetadata{SailNumber: "x"})
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}

func TestRegistryService_DeleteDevice(t *testing.T) {
	ctx := context.Background()

	t.Run("delete releases ingress and room membership", func(t *testing.T) {
		bridge := new(MockMediaBridge)
		svc, deviceRepo, roomRepo := newTestRegistry(bridge)

		err := roomRepo.Create(ctx, &domain.Room{
			ID:              "room-del",
			AssignedDevices: []domain.DeviceID{"YRAT07"},
			ActiveDeviceID:  "YRAT07",
		})
		assert.NoError(t, err)
		err = deviceRepo.Create(ctx, &domain.Device{
			ID:      "YRAT07",
			RoomID:  "room-del",
			Status:  domain.StatusOffline,
			Ingress: &domain.Ingress{IngressID: "in-7"},
		})
		assert.NoError(t, err)

		bridge.On("DeleteIngress", mock.Anything, "in-7").Return(nil)

		err = svc.DeleteDevice(ctx, "YRAT07")
		assert.NoError(t, err)

		_, err = deviceRepo.GetByID(ctx, "YRAT07")
		assert.ErrorIs(t, err, domain.ErrDeviceNotFound)

		room, err := roomRepo.GetByID(ctx, "room-del")
		assert.NoError(t, err)
		assert.False(t, room.HasMember("YRAT07"))
		assert.Empty(t, room.ActiveDeviceID)

		bridge.AssertExpectations(t)
	})

	t.Run("delete unknown device", func(t *testing.T) {
		svc, _, _ := newTestRegistry(new(MockMediaBridge))
		err := svc.DeleteDevice(ctx, "YRAT50")
		assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
	})
}
