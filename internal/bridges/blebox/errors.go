package blebox

import "errors"

// Domain errors for the BleBox bridge package.
var (
	// ErrRequestFailed is returned when an HTTP request to a device fails at
	// the transport level (refused, reset, timed out).
	ErrRequestFailed = errors.New("blebox: request failed")

	// ErrHTTPStatus is returned when a device answers with a non-2xx status.
	ErrHTTPStatus = errors.New("blebox: unexpected http status")

	// ErrSuperseded is returned for a waiting request that was replaced by a
	// newer submission for the same endpoint key before it was dispatched.
	ErrSuperseded = errors.New("blebox: request superseded")

	// ErrSchedulerClosed is returned for submissions made after Close.
	ErrSchedulerClosed = errors.New("blebox: scheduler closed")

	// ErrUnknownCommand is returned when a command name is not in the catalogue
	// or is not a control of the device's family.
	ErrUnknownCommand = errors.New("blebox: unknown command")

	// ErrInvalidParams is returned when a control is given more parameters
	// than its path has placeholders.
	ErrInvalidParams = errors.New("blebox: too many parameters")

	// ErrUnknownType is returned when a device reports a type with no family.
	ErrUnknownType = errors.New("blebox: unknown device type")

	// ErrDeviceNotFound is returned when no tracked device has the given id.
	ErrDeviceNotFound = errors.New("blebox: device not found")

	// ErrProbeFailed is returned when the type-specific state probe of a newly
	// discovered device fails.
	ErrProbeFailed = errors.New("blebox: state probe failed")

	// ErrPopulationCap is returned when the registry is full.
	ErrPopulationCap = errors.New("blebox: device population cap reached")

	// ErrInvalidIdentity is returned when an identity payload lacks an id or type.
	ErrInvalidIdentity = errors.New("blebox: invalid identity")

	// ErrScanDisabled is returned when a sweep is requested on a bridge
	// without a scanner.
	ErrScanDisabled = errors.New("blebox: scanning disabled")

	// ErrInvalidAddress is returned when an address or netmask cannot be used
	// for scanning.
	ErrInvalidAddress = errors.New("blebox: invalid address")
)
