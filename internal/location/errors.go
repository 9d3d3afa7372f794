package location

import "errors"

var (
	// ErrHubNotFound is returned when a hub ID is not in the directory.
	ErrHubNotFound = errors.New("location: hub not found")

	// ErrAreaNotFound is returned when an area ID is not in the directory.
	ErrAreaNotFound = errors.New("location: area not found")

	// ErrInvalidName is returned when a hub or area name fails validation.
	ErrInvalidName = errors.New("location: invalid name")
)
