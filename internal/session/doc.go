// Package session guards the panel's credential.
//
// The Guard owns the single access token the panel holds for the remote
// backend. It persists the token through a Store (SQLite in production, memory
// in tests) and tells interested components when the user logs in or out, so
// nothing has to poll for authentication state.
//
// Nothing in the sync layer may start, retry or continue work while
// IsAuthenticated reports false.
//
// JWT access tokens are inspected without verification: the panel never holds
// the signing secret, it only reads the exp claim so an expired token stops
// counting as a session. Opaque tokens are valid for as long as they are stored.
package session
