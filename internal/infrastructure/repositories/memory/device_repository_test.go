package memory

import (
	"context"
	"sync"
	"testing"

	"fleetcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestMemoryDeviceRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDeviceRepository()

	device := &domain.Device{
		ID:         "YRAT01",
		HardwareID: "mac-AA:BB:CC:DD:EE:FF",
		Status:     domain.StatusOffline,
	}

	assert.NoError(t, repo.Create(ctx, device))
	assert.ErrorIs(t, repo.Create(ctx, device), domain.ErrDeviceExists)

	got, err := repo.GetByID(ctx, "YRAT01")
	assert.NoError(t, err)
	assert.Equal(t, device.HardwareID, got.HardwareID)

	_, err = repo.GetByID(ctx, "YRAT02")
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)

	devices, err := repo.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, devices, 1)

	assert.NoError(t, repo.Delete(ctx, "YRAT01"))
	assert.ErrorIs(t, repo.Delete(ctx, "YRAT01"), domain.ErrDeviceNotFound)
}

func TestMemoryDeviceRepository_FindByHardwareID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDeviceRepository()

	repo.Create(ctx, &domain.Device{ID: "YRAT01", HardwareID: "mac-01", Status: domain.StatusOffline})
	repo.Create(ctx, &domain.Device{ID: "YRAT02", Status: domain.StatusOffline})

	got, err := repo.FindByHardwareID(ctx, "mac-01")
	assert.NoError(t, err)
	assert.Equal(t, domain.DeviceID("YRAT01"), got.ID)

	_, err = repo.FindByHardwareID(ctx, "mac-99")
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}

func TestMemoryDeviceRepository_HardwareUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDeviceRepository()

	assert.NoError(t, repo.Create(ctx, &domain.Device{ID: "YRAT01", HardwareID: "mac-01", Status: domain.StatusOffline}))

	// A second record cannot claim a bound fingerprint.
	err := repo.Create(ctx, &domain.Device{ID: "YRAT02", HardwareID: "mac-01", Status: domain.StatusOffline})
	assert.ErrorIs(t, err, domain.ErrIdentityConflict)

	// Nor can a rebind steal one.
	assert.NoError(t, repo.Create(ctx, &domain.Device{ID: "YRAT03", Status: domain.StatusOffline}))
	_, err = repo.Mutate(ctx, "YRAT03", func(d *domain.Device) error {
		d.HardwareID = "mac-01"
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrIdentityConflict)

	device, err := repo.GetByID(ctx, "YRAT03")
	assert.NoError(t, err)
	assert.Empty(t, device.HardwareID)
}

func TestMemoryDeviceRepository_Mutate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDeviceRepository()

	repo.Create(ctx, &domain.Device{ID: "YRAT01", Status: domain.StatusOffline})

	t.Run("applies and persists the mutation", func(t *testing.T) {
		got, err := repo.Mutate(ctx, "YRAT01", func(d *domain.Device) error {
			d.Status = domain.StatusOnline
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, domain.StatusOnline, got.Status)

		stored, _ := repo.GetByID(ctx, "YRAT01")
		assert.Equal(t, domain.StatusOnline, stored.Status)
	})

	t.Run("fn error leaves the record untouched", func(t *testing.T) {
		_, err := repo.Mutate(ctx, "YRAT01", func(d *domain.Device) error {
			d.Status = domain.StatusStreaming
			return assert.AnError
		})
		assert.Error(t, err)

		stored, _ := repo.GetByID(ctx, "YRAT01")
		assert.Equal(t, domain.StatusOnline, stored.Status)
	})

	t.Run("unknown device", func(t *testing.T) {
		_, err := repo.Mutate(ctx, "YRAT09", func(d *domain.Device) error { return nil })
		assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
	})

	t.Run("concurrent mutations all apply", func(t *testing.T) {
		repo.Create(ctx, &domain.Device{ID: "YRAT02", Status: domain.StatusOffline})

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				repo.Mutate(ctx, "YRAT02", func(d *domain.Device) error {
					d.SailNumber = d.SailNumber + "x"
					return nil
				})
			}()
		}
		wg.Wait()

		stored, _ := repo.GetByID(ctx, "YRAT02")
		assert.Len(t, stored.SailNumber, 50)
	})
}

func TestMemoryDeviceRepository_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDeviceRepository()

	repo.Create(ctx, &domain.Device{
		ID:      "YRAT01",
		Status:  domain.StatusOffline,
		Ingress: &domain.Ingress{IngressID: "in-1"},
	})

	got, _ := repo.GetByID(ctx, "YRAT01")
	got.Ingress.IngressID = "tampered"
	got.Status = domain.StatusStreaming

	stored, _ := repo.GetByID(ctx, "YRAT01")
	assert.Equal(t, "in-1", stored.Ingress.IngressID)
	assert.Equal(t, domain.StatusOffline, stored.Status)
}
