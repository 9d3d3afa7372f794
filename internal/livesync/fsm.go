package livesync

// State is the sync engine's connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateLive
	StateReconnectWait
	StateDegradedPolling
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReconnectWait:
		return "reconnect_wait"
	case StateDegradedPolling:
		return "degraded_polling"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear as a string in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is an input to the state machine.
type Event int

const (
	// EventAuthGained: the session became authenticated.
	EventAuthGained Event = iota + 1
	// EventAuthLost: logout, token expiry, or a 401 from a fetch.
	EventAuthLost
	// EventChannelOpened: the push channel handshake completed.
	EventChannelOpened
	// EventChannelFailed: dial error or transport error.
	EventChannelFailed
	// EventChannelClosedClean: the peer closed with code 1000.
	EventChannelClosedClean
	// EventChannelClosedAbnormal: the peer closed with any other code.
	EventChannelClosedAbnormal
	// EventReconnectDue: the reconnect delay elapsed.
	EventReconnectDue
)

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e {
	case EventAuthGained:
		return "auth_gained"
	case EventAuthLost:
		return "auth_lost"
	case EventChannelOpened:
		return "channel_opened"
	case EventChannelFailed:
		return "channel_failed"
	case EventChannelClosedClean:
		return "channel_closed_clean"
	case EventChannelClosedAbnormal:
		return "channel_closed_abnormal"
	case EventReconnectDue:
		return "reconnect_due"
	default:
		return "unknown"
	}
}

// Action is a side effect the engine must perform after a transition.
type Action int

const (
	// ActionOpenChannel dials the push channel.
	ActionOpenChannel Action = iota + 1
	// ActionCloseChannel closes the current channel with code 1000.
	ActionCloseChannel
	// ActionFetch performs an immediate snapshot fetch.
	ActionFetch
	// ActionScheduleReconnect arms the reconnect timer.
	ActionScheduleReconnect
	// ActionCancelReconnect disarms the reconnect timer.
	ActionCancelReconnect
	// ActionStartPolling arms the poll loop.
	ActionStartPolling
	// ActionStopPolling disarms the poll loop.
	ActionStopPolling
	// ActionCancelRefresh disarms a pending debounced refresh.
	ActionCancelRefresh
	// ActionClearSnapshot drops the snapshot and the error flag.
	ActionClearSnapshot
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionOpenChannel:
		return "open_channel"
	case ActionCloseChannel:
		return "close_channel"
	case ActionFetch:
		return "fetch"
	case ActionScheduleReconnect:
		return "schedule_reconnect"
	case ActionCancelReconnect:
		return "cancel_reconnect"
	case ActionStartPolling:
		return "start_polling"
	case ActionStopPolling:
		return "stop_polling"
	case ActionCancelRefresh:
		return "cancel_refresh"
	case ActionClearSnapshot:
		return "clear_snapshot"
	default:
		return "unknown"
	}
}

// teardown is everything leaving a session requires.
var teardown = []Action{
	ActionCloseChannel,
	ActionCancelReconnect,
	ActionStopPolling,
	ActionCancelRefresh,
	ActionClearSnapshot,
}

// Machine is the connection state machine. It performs no I/O: Handle returns
// the actions the caller must carry out, in order.
//
// Machine is not safe for concurrent use; the Engine confines it to its actor goroutine.
type Machine struct {
	state      State
	retries    int
	maxRetries int
}

// NewMachine returns a machine in StateIdle that allows maxRetries reconnect
// attempts per disconnect episode before degrading to polling.
func NewMachine(maxRetries int) *Machine {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Machine{maxRetries: maxRetries}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Retries returns the reconnect attempts made in the current episode.
func (m *Machine) Retries() int { return m.retries }

// Handle applies ev and returns the resulting actions. Events that have no
// meaning in the current state return nil and leave the machine unchanged.
func (m *Machine) Handle(ev Event) []Action {
	if ev == EventAuthLost {
		if m.state == StateIdle {
			return nil
		}
		m.state = StateIdle
		m.retries = 0
		return append([]Action(nil), teardown...)
	}

	switch m.state {
	case StateIdle:
		if ev == EventAuthGained {
			m.state = StateConnecting
			m.retries = 0
			return []Action{ActionOpenChannel, ActionFetch}
		}

	case StateConnecting:
		switch ev {
		case EventChannelOpened:
			m.state = StateLive
			m.retries = 0
			return nil
		case EventChannelFailed, EventChannelClosedClean, EventChannelClosedAbnormal:
			// Any close before open is a failed attempt.
			return m.lostChannel()
		}

	case StateLive:
		switch ev {
		case EventChannelFailed, EventChannelClosedAbnormal:
			return m.lostChannel()
		case EventChannelClosedClean:
			// The server ended the channel on purpose: no reconnect, but keep
			// the snapshot fresh by polling.
			m.state = StateDegradedPolling
			return []Action{ActionStartPolling, ActionFetch}
		}

	case StateReconnectWait:
		if ev == EventReconnectDue {
			m.retries++
			m.state = StateConnecting
			return []Action{ActionOpenChannel}
		}

	case StateDegradedPolling:
		// Terminal until the session ends.
	}
	return nil
}

// lostChannel schedules a reconnect while budget remains, otherwise degrades.
func (m *Machine) lostChannel() []Action {
	if m.retries < m.maxRetries {
		m.state = StateReconnectWait
		return []Action{ActionScheduleReconnect}
	}
	m.state = StateDegradedPolling
	return []Action{ActionStartPolling, ActionFetch}
}
