package session

import "errors"

var (
	// ErrEmptyToken is returned when SetToken is called with an empty token.
	ErrEmptyToken = errors.New("session: empty token")

	// ErrStoreUnavailable is returned when the token store cannot be read or written.
	ErrStoreUnavailable = errors.New("session: token store unavailable")
)
