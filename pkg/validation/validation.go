package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// RoomIDRegex validates room ID format
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// IdentityRegex validates participant identity format
	IdentityRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// DeviceIDSpec describes the accepted device ID format: a fixed prefix
// followed by a zero-padded two-digit number within [Min, Max].
type DeviceIDSpec struct {
	Prefix string
	Min    int
	Max    int
}

// DefaultDeviceIDSpec matches YRAT01 through YRAT99.
func DefaultDeviceIDSpec() DeviceIDSpec {
	return DeviceIDSpec{Prefix: "YRAT", Min: 1, Max: 99}
}

// Validate checks an ID against the expected format and numeric range.
func (s DeviceIDSpec) Validate(id string) error {
	if id == "" {
		return fmt.Errorf("device ID is required")
	}
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(s.Prefix) + `\d{2}$`)
	if !pattern.MatchString(id) {
		return fmt.Errorf("invalid device ID format (must be %s%02d-%s%02d, e.g. %s%02d)",
			s.Prefix, s.Min, s.Prefix, s.Max, s.Prefix, s.Min)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, s.Prefix))
	if err != nil {
		return fmt.Errorf("invalid device number")
	}
	if n < s.Min || n > s.Max {
		return fmt.Errorf("device number must be between %d and %d", s.Min, s.Max)
	}
	return nil
}

// ValidateHardwareID validates a hardware fingerprint. The value is opaque;
// only emptiness and length are checked.
func ValidateHardwareID(hw string) error {
	hw = strings.TrimSpace(hw)
	if hw == "" {
		return fmt.Errorf("hardware ID is required")
	}
	if len(hw) > 128 {
		return fmt.Errorf("hardware ID is too long (max 128 characters)")
	}
	return nil
}

// ValidateRoomID validates a room ID.
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 100 {
		return fmt.Errorf("room ID is too long (max 100 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room ID format")
	}
	return nil
}

// ValidateRoomName validates a room display name.
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return fmt.Errorf("room name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("room name contains invalid characters")
	}
	return nil
}

// ValidateIdentity validates a participant identity for credential issuance.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("identity is required")
	}
	if len(identity) > 100 {
		return fmt.Errorf("identity is too long (max 100 characters)")
	}
	if !IdentityRegex.MatchString(identity) {
		return fmt.Errorf("invalid identity format")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
