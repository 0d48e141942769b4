package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device does not exist, is inactive
	// on an active-only lookup, or is owned by someone else.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose serial is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidSerial is returned when a serial does not normalise to 12 hex characters.
	ErrInvalidSerial = errors.New("device: invalid serial")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrSettingsNotFound is returned when a device has no settings row yet.
	ErrSettingsNotFound = errors.New("device: settings not found")

	// ErrInvalidSettings is returned when settings validation fails.
	ErrInvalidSettings = errors.New("device: invalid settings")
)
