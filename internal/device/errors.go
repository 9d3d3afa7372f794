package device

import "errors"

var (
	// ErrDeviceNotFound is returned when a device ID is not in the current snapshot.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidValue is returned when a reading cannot be decoded.
	ErrInvalidValue = errors.New("device: invalid value")

	// ErrInvalidCategory is returned when a category name is not recognised.
	ErrInvalidCategory = errors.New("device: invalid category")

	// ErrNotSwitchable is returned when a command targets a read-only device type.
	ErrNotSwitchable = errors.New("device: not switchable")

	// ErrInvalidTarget is returned when a command value is out of range for the type.
	ErrInvalidTarget = errors.New("device: invalid target value")
)
