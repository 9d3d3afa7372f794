// Package api implements the local HTTP and WebSocket API of the Gray Logic Panel.
//
// This package provides:
//   - Read endpoints over the live device snapshot (lists, filters, stats)
//   - Passthroughs for backend mutations (rename, area assignment, commands,
//     hub and area management, claims)
//   - Login, logout, signup and password reset, with the access token held
//     server-side by the session guard
//   - The local activity log of accepted mutations (/audit)
//   - A WebSocket hub relaying snapshot and sync status events to browsers
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The browser never talks to the remote backend directly. Reads are served
// from the sync engine's in-memory snapshot through memoised selectors, so a
// page load costs no backend round trip. Mutations are forwarded to the
// backend and, on success, ask the engine for a refresh; the new snapshot then
// reaches every open browser through the hub.
//
// # Security
//
// The server binds to loopback by default. The token never leaves the process:
// /auth/session reports only whether a session exists and when it expires.
//
// # Graceful Degradation
//
// Read endpoints keep answering from the last snapshot while the engine is
// reconnecting or polling. Backend outages surface as 502 on mutations only.
package api
