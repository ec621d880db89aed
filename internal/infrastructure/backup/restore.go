package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleetcast/internal/core/domain"
	"fleetcast/internal/core/ports"
	"fleetcast/pkg/backup"

	"go.uber.org/zap"
)

// RestoreService handles restore operations
type RestoreService struct {
	backupService *backup.BackupService
	deviceRepo    ports.DeviceRepository
	roomRepo      ports.RoomRepository
	logger        *zap.SugaredLogger
}

// NewRestoreService creates a new restore service
func NewRestoreService(
	backupService *backup.BackupService,
	deviceRepo ports.DeviceRepository,
	roomRepo ports.RoomRepository,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		backupService: backupService,
		deviceRepo:    deviceRepo,
		roomRepo:      roomRepo,
		logger:        logger,
	}
}

// RestoreOptions contains restore options
type RestoreOptions struct {
	OverwriteExisting bool
	RestoreDevices    bool
	RestoreRooms      bool
	PointInTime       *time.Time // For point-in-time recovery
}

// DefaultRestoreOptions returns default restore options
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{
		OverwriteExisting: false,
		RestoreDevices:    true,
		RestoreRooms:      true,
	}
}

// RestoreFromBackup restores data from a specific backup
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, backupName string, options RestoreOptions) error {
	rs.logger.Infow("starting restore", "backup_name", backupName, "options", options)

	// Load backup
	backupData, err := rs.backupService.RestoreBackup(ctx, backupName)
	if err != nil {
		return fmt.Errorf("failed to load backup: %w", err)
	}

	// Validate backup version
	if backupData.Version == "" {
		return fmt.Errorf("invalid backup: missing version")
	}

	// Rooms first so restored devices never reference a room that is
	// not there yet.
	if err := rs.restoreRooms(ctx, backupData.Rooms, options); err != nil {
		return fmt.Errorf("failed to restore rooms: %w", err)
	}

	if err := rs.restoreDevices(ctx, backupData.Devices, options); err != nil {
		return fmt.Errorf("failed to restore devices: %w", err)
	}

	rs.logger.Infow("restore completed successfully", "backup_name", backupName)
	return nil
}

// restoreDevices restores devices from backup
func (rs *RestoreService) restoreDevices(ctx context.Context, devices map[string]interface{}, options RestoreOptions) error {
	if !options.RestoreDevices {
		return nil
	}

	for deviceIDStr, deviceData := range devices {
		deviceID := domain.DeviceID(deviceIDStr)

		// Check if device exists
		existing, err := rs.deviceRepo.GetByID(ctx, deviceID)
		if err == nil && existing != nil {
			if !options.OverwriteExisting {
				rs.logger.Debugw("skipping existing device", "device_id", deviceID)
				continue
			}
		}

		// Convert to domain.Device
		deviceJSON, err := json.Marshal(deviceData)
		if err != nil {
			return fmt.Errorf("failed to marshal device: %w", err)
		}

		var device domain.Device
		if err := json.Unmarshal(deviceJSON, &device); err != nil {
			return fmt.Errorf("failed to unmarshal device: %w", err)
		}

		// A restored device was certainly not connected at backup time in
		// any sense that survives a restart.
		device.Status = domain.StatusOffline

		if existing == nil {
			if err := rs.deviceRepo.Create(ctx, &device); err != nil {
				return fmt.Errorf("failed to create device: %w", err)
			}
		} else {
			if _, err := rs.deviceRepo.Mutate(ctx, deviceID, func(d *domain.Device) error {
				*d = device
				return nil
			}); err != nil {
				return fmt.Errorf("failed to update device: %w", err)
			}
		}

		rs.logger.Debugw("restored device", "device_id", deviceID)
	}

	return nil
}

// restoreRooms restores rooms from backup
func (rs *RestoreService) restoreRooms(ctx context.Context, rooms map[string]interface{}, options RestoreOptions) error {
	if !options.RestoreRooms {
		return nil
	}

	for roomIDStr, roomData := range rooms {
		roomID := domain.RoomID(roomIDStr)

		// Check if room exists
		existing, err := rs.roomRepo.GetByID(ctx, roomID)
		if err == nil && existing != nil {
			if !options.OverwriteExisting {
				rs.logger.Debugw("skipping existing room", "room_id", roomID)
				continue
			}
		}

		// Convert to domain.Room
		roomJSON, err := json.Marshal(roomData)
		if err != nil {
			return fmt.Errorf("failed to marshal room: %w", err)
		}

		var room domain.Room
		if err := json.Unmarshal(roomJSON, &room); err != nil {
			return fmt.Errorf("failed to unmarshal room: %w", err)
		}

		if existing == nil {
			if err := rs.roomRepo.Create(ctx, &room); err != nil {
				return fmt.Errorf("failed to create room: %w", err)
			}
		} else {
			if _, err := rs.roomRepo.Mutate(ctx, roomID, func(r *domain.Room) error {
				*r = room
				return nil
			}); err != nil {
				return fmt.Errorf("failed to update room: %w", err)
			}
		}

		rs.logger.Debugw("restored room", "room_id", roomID)
	}

	return nil
}

// FindBackupByTime finds the closest backup to a given time (for point-in-time recovery)
func (rs *RestoreService) FindBackupByTime(ctx context.Context, targetTime time.Time) (string, error) {
	backups, err := rs.backupService.ListBackups(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}

	var closestBackup string
	var closestTime time.Time
	var found bool

	for _, backupName := range backups {
		// Parse timestamp from backup name
		if len(backupName) < 20 {
			continue
		}

		timestampStr := backupName[7:22]
		timestamp, err := time.Parse("20060102-150405", timestampStr)
		if err != nil {
			continue
		}

		// Find backup closest to target time (but not after)
		if timestamp.Before(targetTime) || timestamp.Equal(targetTime) {
			if !found || timestamp.After(closestTime) {
				closestBackup = backupName
				closestTime = timestamp
				found = true
			}
		}
	}

	if !found {
		return "", fmt.Errorf("no backup found before or at target time: %v", targetTime)
	}

	return closestBackup, nil
}
