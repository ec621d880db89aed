package memory

import (
	"context"
	"testing"

	"fleetcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestMemoryRoomRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepository()

	room := &domain.Room{
		ID:              "room-1",
		Name:            "Race Day 1",
		AssignedDevices: []domain.DeviceID{"YRAT01"},
	}

	assert.NoError(t, repo.Create(ctx, room))
	assert.ErrorIs(t, repo.Create(ctx, room), domain.ErrRoomExists)

	got, err := repo.GetByID(ctx, "room-1")
	assert.NoError(t, err)
	assert.Equal(t, "Race Day 1", got.Name)
	assert.True(t, got.HasMember("YRAT01"))

	_, err = repo.GetByID(ctx, "room-2")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	rooms, err := repo.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, rooms, 1)

	assert.NoError(t, repo.Delete(ctx, "room-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "room-1"), domain.ErrRoomNotFound)
}

func TestMemoryRoomRepository_Mutate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepository()

	repo.Create(ctx, &domain.Room{ID: "room-1", LastUpdated: 100})

	t.Run("fn error leaves the record untouched", func(t *testing.T) {
		_, err := repo.Mutate(ctx, "room-1", func(r *domain.Room) error {
			r.LastUpdated = 200
			return assert.AnError
		})
		assert.Error(t, err)

		stored, _ := repo.GetByID(ctx, "room-1")
		assert.Equal(t, int64(100), stored.LastUpdated)
	})

	t.Run("membership changes persist", func(t *testing.T) {
		_, err := repo.Mutate(ctx, "room-1", func(r *domain.Room) error {
			r.AddMember("YRAT01")
			r.ActiveDeviceID = "YRAT01"
			return nil
		})
		assert.NoError(t, err)

		stored, _ := repo.GetByID(ctx, "room-1")
		assert.True(t, stored.HasMember("YRAT01"))
		assert.Equal(t, domain.DeviceID("YRAT01"), stored.ActiveDeviceID)
	})
}

func TestMemoryRoomRepository_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRoomRepository()

	repo.Create(ctx, &domain.Room{
		ID:              "room-1",
		AssignedDevices: []domain.DeviceID{"YRAT01"},
	})

	got, _ := repo.GetByID(ctx, "room-1")
	got.AssignedDevices[0] = "YRAT99"

	stored, _ := repo.GetByID(ctx, "room-1")
	assert.Equal(t, domain.DeviceID("YRAT01"), stored.AssignedDevices[0])
}
