// Package livesync keeps the panel's device snapshot fresh.
//
// The Engine holds one authoritative device.Snapshot for the signed-in user.
// A push channel (WebSocket) tells it when something changed; it then refetches
// the whole collection over REST. When the channel cannot be kept open the
// engine retries a few times and then falls back to fixed-interval polling.
//
// # States
//
//	Idle             not authenticated; no snapshot, channel or timers
//	Connecting       a channel dial is in flight
//	Live             channel open; polling is stopped
//	ReconnectWait    channel lost; one reconnect is scheduled
//	DegradedPolling  retry budget spent; a poll loop drives refreshes
//
// The transition table is the pure Machine type. The Engine is an actor: one
// goroutine owns every piece of mutable state and serialises session events,
// channel events, timer fires, fetch completions and refresh requests through
// a single mailbox. Timers, channels and fetches carry generation numbers so an
// event armed for a state the engine has since left is dropped on arrival.
//
// # Refresh
//
// RequestRefresh is debounced: calls within the debounce window collapse into
// one fetch. At most one fetch runs at a time; a refresh that fires while a
// fetch is in flight is refused.
//
// # Degraded Polling
//
// Once degraded, the engine stays degraded until the next login. It does not
// redial the push channel.
package livesync
