package device

import "errors"

// Domain errors for the device package.
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when a record lacks its id, type or address.
	ErrInvalidDevice = errors.New("device: invalid")
)
