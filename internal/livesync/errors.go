package livesync

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken is returned by a Dialer when no usable token is held.
	ErrNoToken = errors.New("livesync: no token for push channel")

	// ErrChannelClosed is returned by Receive after Close.
	ErrChannelClosed = errors.New("livesync: channel closed")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("livesync: engine already running")
)

// Close codes used by the push channel (RFC 6455 section 7.4.1).
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// CloseError reports why a push channel ended.
type CloseError struct {
	Code int
	Text string
	Err  error
}

// Error implements error.
func (e *CloseError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("livesync: channel closed with code %d: %s", e.Code, e.Text)
	}
	return fmt.Sprintf("livesync: channel closed with code %d", e.Code)
}

// Unwrap returns the underlying transport error, if any.
func (e *CloseError) Unwrap() error { return e.Err }

// Clean reports whether the close was intentional.
func (e *CloseError) Clean() bool { return e.Code == CloseNormal }

// closeCode extracts a close code from a Receive error. Errors that are not a
// CloseError count as abnormal.
func closeCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CloseAbnormal
}
