package mirror

import "errors"

var (
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("mirror: already running")

	// ErrBadCommand is returned for command messages that cannot be decoded.
	ErrBadCommand = errors.New("mirror: malformed command")
)
