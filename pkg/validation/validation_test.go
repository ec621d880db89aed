package validation

import (
	"strings"
	"testing"
)

func TestDeviceIDSpecValidate(t *testing.T) {
	spec := DefaultDeviceIDSpec()

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid low", "YRAT01", false},
		{"valid high", "YRAT99", false},
		{"empty", "", true},
		{"wrong prefix", "BOAT01", true},
		{"lowercase prefix", "yrat01", true},
		{"out of range zero", "YRAT00", true},
		{"three digits", "YRAT001", true},
		{"one digit", "YRAT1", true},
		{"trailing junk", "YRAT01x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := spec.Validate(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestDeviceIDSpecValidateCustomRange(t *testing.T) {
	spec := DeviceIDSpec{Prefix: "CAM", Min: 1, Max: 20}

	if err := spec.Validate("CAM05"); err != nil {
		t.Errorf("expected CAM05 to be valid, got %v", err)
	}
	if err := spec.Validate("CAM21"); err == nil {
		t.Error("expected CAM21 to be out of range")
	}
}

func TestValidateHardwareID(t *testing.T) {
	tests := []struct {
		name    string
		hw      string
		wantErr bool
	}{
		{"mac style", "aa:bb:cc:dd:ee:ff", false},
		{"opaque fingerprint", "fp-29cd01", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too long", strings.Repeat("a", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHardwareID(tt.hw)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHardwareID(%q) error = %v, wantErr %v", tt.hw, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRoomID(t *testing.T) {
	if err := ValidateRoomID("room-1a2b3c"); err != nil {
		t.Errorf("expected valid room ID, got %v", err)
	}
	if err := ValidateRoomID(""); err == nil {
		t.Error("expected error for empty room ID")
	}
	if err := ValidateRoomID("room/with/slashes"); err == nil {
		t.Error("expected error for room ID with slashes")
	}
}

func TestValidateRoomName(t *testing.T) {
	if err := ValidateRoomName("Race 1"); err != nil {
		t.Errorf("expected valid room name, got %v", err)
	}
	if err := ValidateRoomName("  "); err == nil {
		t.Error("expected error for blank room name")
	}
	if err := ValidateRoomName(strings.Repeat("x", 101)); err == nil {
		t.Error("expected error for overlong room name")
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{"https://example.com", "ws://localhost:7880", "wss://lk.example.com"}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) unexpected error: %v", u, err)
		}
	}
	invalid := []string{"", "ftp://example.com", "://nohost"}
	for _, u := range invalid {
		if err := ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) expected error", u)
		}
	}
}
