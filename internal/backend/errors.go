package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth is returned for HTTP 401 and when no usable token is held.
	ErrAuth = errors.New("backend: not authenticated")

	// ErrNetwork is returned for transport failures and malformed responses.
	ErrNetwork = errors.New("backend: network error")

	// ErrServer is returned for HTTP 5xx responses.
	ErrServer = errors.New("backend: server error")

	// ErrNotFound is returned for HTTP 404 responses.
	ErrNotFound = errors.New("backend: not found")

	// ErrRejected is returned for any other 4xx response.
	ErrRejected = errors.New("backend: request rejected")
)

// StatusError carries a non-2xx response. It unwraps to the sentinel for its status class.
type StatusError struct {
	Status  int
	Message string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: HTTP %d", e.Status)
	}
	return fmt.Sprintf("backend: HTTP %d: %s", e.Status, e.Message)
}

// Unwrap maps the status to its sentinel.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrAuth
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status >= http.StatusInternalServerError:
		return ErrServer
	default:
		return ErrRejected
	}
}
