package livesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-panel/internal/backend"
	"github.com/nerrad567/gray-logic-panel/internal/device"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-panel/internal/session"
)

// Fetcher loads the full device collection. backend.Client satisfies it.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) ([]device.Device, error)
}

// Session is the engine's view of the credential store. session.Guard satisfies it.
type Session interface {
	IsAuthenticated() bool
	ClearSession()
	Subscribe() (<-chan session.Event, func())
}

// Logger is the logging surface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config tunes the engine's timers.
type Config struct {
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	PollInterval         time.Duration
	DebounceWindow       time.Duration
}

// ConfigFrom converts the YAML sync section.
func ConfigFrom(c config.SyncConfig) Config {
	reconnect, poll, debounce := c.Durations()
	return Config{
		ReconnectDelay:       reconnect,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		PollInterval:         poll,
		DebounceWindow:       debounce,
	}
}

// Status is a point-in-time view of the engine for the panel UI.
type Status struct {
	State           State     `json:"state"`
	Retries         int       `json:"retries"`
	Fetching        bool      `json:"fetching"`
	LastError       string    `json:"last_error,omitempty"`
	SnapshotVersion uint64    `json:"snapshot_version"`
	Devices         int       `json:"devices"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// Update is delivered to subscribers whenever the status or snapshot changes.
type Update struct {
	Snapshot *device.Snapshot
	Status   Status
}

type timerKind int

const (
	reconnectTimer timerKind = iota
	pollTimer
	refreshTimer
	numTimers
)

func (k timerKind) String() string {
	switch k {
	case reconnectTimer:
		return "reconnect"
	case pollTimer:
		return "poll"
	default:
		return "refresh"
	}
}

// timerSlot is one cancellable timer. seq changes on every arm and disarm, so a
// fire that raced a disarm is recognisable as stale.
type timerSlot struct {
	t   *time.Timer
	seq uint64
}

// Mailbox messages.
type (
	refreshRequested struct{}
	timerFired       struct {
		kind timerKind
		seq  uint64
	}
	channelOpened struct {
		gen uint64
		ch  Channel
	}
	channelFailed struct {
		gen uint64
		err error
	}
	channelMessage struct{ gen uint64 }
	channelClosed  struct {
		gen uint64
		err error
	}
	fetchDone struct {
		id      uint64
		epoch   uint64
		devices []device.Device
		err     error
		at      time.Time
	}
)

const (
	mailboxSize     = 64
	subscriberDepth = 1
)

// Engine is the live sync engine.
//
// Thread Safety: Snapshot, Status, Devices, RequestRefresh and Subscribe are
// safe for concurrent use. Everything else runs on the Run goroutine.
type Engine struct {
	cfg     Config
	fetcher Fetcher
	session Session
	dialer  Dialer
	logger  Logger

	mailbox chan any
	done    chan struct{}
	running atomic.Bool

	snapshot atomic.Pointer[device.Snapshot]
	status   atomic.Pointer[Status]

	subMu     sync.Mutex
	subs      map[int]chan Update
	nextSubID int

	// Owned by the Run goroutine.
	ctx         context.Context
	machine     *Machine
	channel     Channel
	channelGen  uint64
	dialCancel  context.CancelFunc
	timers      [numTimers]timerSlot
	fetchID     uint64
	nextFetchID uint64
	authEpoch   uint64
	version     uint64
	lastErr     error
}

// NewEngine wires an engine. dialer may be nil when no push endpoint is
// configured; the engine then polls from the first connection failure onward.
func NewEngine(cfg Config, fetcher Fetcher, sess Session, dialer Dialer) *Engine {
	maxRetries := cfg.MaxReconnectAttempts
	if dialer == nil {
		dialer = noDialer{}
		maxRetries = 0
	}
	e := &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		session: sess,
		dialer:  dialer,
		logger:  noopLogger{},
		mailbox: make(chan any, mailboxSize),
		done:    make(chan struct{}),
		subs:    make(map[int]chan Update),
		machine: NewMachine(maxRetries),
	}
	e.status.Store(&Status{State: StateIdle})
	return e
}

// SetLogger replaces the engine's logger. Call before Run.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// Snapshot returns the current snapshot, nil when there is none.
func (e *Engine) Snapshot() *device.Snapshot {
	return e.snapshot.Load()
}

// Devices returns the current device list. The slice is shared and must not be modified.
func (e *Engine) Devices() []device.Device {
	return e.snapshot.Load().View()
}

// Status returns the latest published status.
func (e *Engine) Status() Status {
	return *e.status.Load()
}

// RequestRefresh asks for a debounced refetch. It never blocks and never fails;
// it is ignored while unauthenticated and dropped when the mailbox is full.
func (e *Engine) RequestRefresh() {
	select {
	case e.mailbox <- refreshRequested{}:
	default:
		// Mailbox full: this request is dropped.
	}
}

// Subscribe returns a latest-wins stream of updates. A slow subscriber only
// ever sees the newest update. The returned function unsubscribes and closes the channel.
func (e *Engine) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberDepth)

	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, id)
			e.subMu.Unlock()
			close(ch)
		})
	}
}

// Run drives the engine until ctx is cancelled. It returns ErrAlreadyRunning
// if called twice; otherwise it returns nil on shutdown.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.done)
	e.ctx = ctx

	authEvents, unsubscribe := e.session.Subscribe()
	defer unsubscribe()

	e.logger.Info("live sync engine started")
	if e.session.IsAuthenticated() {
		e.handle(EventAuthGained)
	}
	e.publish()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			e.logger.Info("live sync engine stopped")
			return nil
		case ev, ok := <-authEvents:
			if !ok {
				authEvents = nil
				continue
			}
			e.onSessionEvent(ev)
		case msg := <-e.mailbox:
			e.dispatch(msg)
		}
	}
}

// post delivers msg to the Run goroutine. It reports false once the engine has stopped.
func (e *Engine) post(msg any) bool {
	select {
	case e.mailbox <- msg:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) onSessionEvent(ev session.Event) {
	switch ev.Kind {
	case session.Login:
		if e.session.IsAuthenticated() {
			e.handle(EventAuthGained)
		}
	case session.Logout:
		e.handle(EventAuthLost)
	}
}

func (e *Engine) dispatch(msg any) {
	switch m := msg.(type) {
	case refreshRequested:
		e.scheduleRefresh()

	case timerFired:
		e.onTimer(m)

	case channelOpened:
		if m.gen != e.channelGen || e.machine.State() != StateConnecting {
			//nolint:errcheck // Stale connection, nothing to report
			m.ch.Close(CloseNormal)
			return
		}
		e.channel = m.ch
		e.logger.Info("push channel open")
		e.handle(EventChannelOpened)

	case channelFailed:
		if m.gen != e.channelGen {
			return
		}
		e.logger.Warn("push channel failed", "error", m.err, "retries", e.machine.Retries())
		e.dropChannel()
		e.handle(EventChannelFailed)

	case channelMessage:
		if m.gen != e.channelGen {
			return
		}
		e.scheduleRefresh()

	case channelClosed:
		if m.gen != e.channelGen || errors.Is(m.err, ErrChannelClosed) {
			return
		}
		e.dropChannel()
		code := closeCode(m.err)
		if code == CloseNormal {
			e.logger.Info("push channel closed by server", "code", code)
			e.handle(EventChannelClosedClean)
		} else {
			e.logger.Warn("push channel closed abnormally", "code", code, "error", m.err)
			e.handle(EventChannelClosedAbnormal)
		}

	case fetchDone:
		e.onFetchDone(m)
	}
}

// handle feeds ev to the machine and performs the resulting actions.
func (e *Engine) handle(ev Event) {
	before := e.machine.State()
	actions := e.machine.Handle(ev)
	after := e.machine.State()

	if ev == EventAuthLost && before != StateIdle {
		e.authEpoch++
	}
	if before != after {
		e.logger.Info("sync state changed",
			"from", before.String(),
			"to", after.String(),
			"event", ev.String(),
			"retries", e.machine.Retries(),
		)
	}

	for _, a := range actions {
		e.perform(a)
	}
	e.publish()
}

func (e *Engine) perform(a Action) {
	switch a {
	case ActionOpenChannel:
		e.openChannel()
	case ActionCloseChannel:
		e.closeChannel()
	case ActionFetch:
		e.startFetch("immediate")
	case ActionScheduleReconnect:
		e.arm(reconnectTimer, e.cfg.ReconnectDelay)
	case ActionCancelReconnect:
		e.disarm(reconnectTimer)
	case ActionStartPolling:
		e.arm(pollTimer, e.cfg.PollInterval)
	case ActionStopPolling:
		e.disarm(pollTimer)
	case ActionCancelRefresh:
		e.disarm(refreshTimer)
	case ActionClearSnapshot:
		e.snapshot.Store(nil)
		e.lastErr = nil
		// Any fetch still running belongs to the old session.
		e.fetchID = 0
	}
}

// openChannel dials in the background. The dial and the reader loop report
// back through the mailbox tagged with this attempt's generation.
func (e *Engine) openChannel() {
	e.closeChannel()

	e.channelGen++
	gen := e.channelGen
	ctx, cancel := context.WithCancel(e.ctx)
	e.dialCancel = cancel

	go func() {
		ch, err := e.dialer.Dial(ctx)
		if err != nil {
			e.post(channelFailed{gen: gen, err: err})
			return
		}
		if !e.post(channelOpened{gen: gen, ch: ch}) {
			//nolint:errcheck // Engine stopped before the channel was handed over
			ch.Close(CloseNormal)
			return
		}
		for {
			if err := ch.Receive(); err != nil {
				e.post(channelClosed{gen: gen, err: err})
				return
			}
			if !e.post(channelMessage{gen: gen}) {
				return
			}
		}
	}()
}

// closeChannel deliberately closes the current channel with code 1000 and
// invalidates any dial still in flight.
func (e *Engine) closeChannel() {
	e.channelGen++
	if e.dialCancel != nil {
		e.dialCancel()
		e.dialCancel = nil
	}
	if e.channel != nil {
		if err := e.channel.Close(CloseNormal); err != nil {
			e.logger.Debug("closing push channel", "error", err)
		}
		e.channel = nil
	}
}

// dropChannel forgets a channel that ended on its own.
func (e *Engine) dropChannel() {
	if e.dialCancel != nil {
		e.dialCancel()
		e.dialCancel = nil
	}
	if e.channel != nil {
		//nolint:errcheck // Already closed by the peer; releases the socket
		e.channel.Close(CloseNormal)
		e.channel = nil
	}
}

// scheduleRefresh arms (or re-arms) the trailing debounce timer.
func (e *Engine) scheduleRefresh() {
	if e.machine.State() == StateIdle || !e.session.IsAuthenticated() {
		return
	}
	if e.cfg.DebounceWindow <= 0 {
		e.startFetch("refresh")
		return
	}
	e.arm(refreshTimer, e.cfg.DebounceWindow)
}

func (e *Engine) onTimer(m timerFired) {
	slot := &e.timers[m.kind]
	if slot.t == nil || slot.seq != m.seq {
		return
	}
	slot.t = nil

	switch m.kind {
	case reconnectTimer:
		e.handle(EventReconnectDue)
	case pollTimer:
		if e.machine.State() != StateDegradedPolling {
			return
		}
		e.startFetch("poll")
		e.arm(pollTimer, e.cfg.PollInterval)
	case refreshTimer:
		e.startFetch("refresh")
	}
}

func (e *Engine) arm(kind timerKind, d time.Duration) {
	e.disarm(kind)
	slot := &e.timers[kind]
	seq := slot.seq
	slot.t = time.AfterFunc(d, func() {
		e.post(timerFired{kind: kind, seq: seq})
	})
}

func (e *Engine) disarm(kind timerKind) {
	slot := &e.timers[kind]
	if slot.t != nil {
		slot.t.Stop()
		slot.t = nil
	}
	slot.seq++
}

// startFetch begins a snapshot fetch unless one is already in flight.
func (e *Engine) startFetch(reason string) {
	if e.fetchID != 0 {
		e.logger.Debug("fetch refused, one already in flight", "reason", reason)
		return
	}
	if !e.session.IsAuthenticated() {
		return
	}

	e.nextFetchID++
	id := e.nextFetchID
	e.fetchID = id
	epoch := e.authEpoch
	ctx := e.ctx

	e.logger.Debug("fetching snapshot", "reason", reason)
	go func() {
		devices, err := e.fetcher.FetchSnapshot(ctx)
		e.post(fetchDone{id: id, epoch: epoch, devices: devices, err: err, at: time.Now()})
	}()
	e.publish()
}

func (e *Engine) onFetchDone(m fetchDone) {
	if m.id != e.fetchID {
		return
	}
	e.fetchID = 0

	// A result from before the last logout must not resurrect that session's data.
	if m.epoch != e.authEpoch || e.machine.State() == StateIdle {
		e.publish()
		return
	}

	switch {
	case m.err == nil:
		e.version++
		e.snapshot.Store(device.NewSnapshot(m.devices, e.version, m.at))
		e.lastErr = nil
		e.logger.Debug("snapshot updated", "devices", len(m.devices), "version", e.version)
		e.publish()

	case errors.Is(m.err, backend.ErrAuth):
		e.logger.Warn("backend rejected credentials, ending session", "error", m.err)
		e.handle(EventAuthLost)
		e.session.ClearSession()

	case errors.Is(m.err, context.Canceled):
		e.publish()

	default:
		e.lastErr = m.err
		e.logger.Warn("snapshot fetch failed", "error", m.err, "state", e.machine.State().String())
		e.publish()
	}
}

// publish stores the current status and notifies subscribers when anything changed.
func (e *Engine) publish() {
	snap := e.snapshot.Load()
	next := Status{
		State:           e.machine.State(),
		Retries:         e.machine.Retries(),
		Fetching:        e.fetchID != 0,
		SnapshotVersion: snap.Version(),
		Devices:         snap.Len(),
		FetchedAt:       snap.FetchedAt(),
	}
	if e.lastErr != nil {
		next.LastError = e.lastErr.Error()
	}

	if prev := e.status.Load(); prev != nil && *prev == next {
		return
	}
	e.status.Store(&next)

	update := Update{Snapshot: snap, Status: next}
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- update:
		default:
			// Replace the stale pending update with this one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- update:
			default:
			}
		}
	}
}

func (e *Engine) shutdown() {
	e.closeChannel()
	for k := timerKind(0); k < numTimers; k++ {
		e.disarm(k)
	}
}

// noDialer stands in when no push endpoint is configured.
type noDialer struct{}

var errNoPushEndpoint = errors.New("livesync: no push endpoint configured")

func (noDialer) Dial(context.Context) (Channel, error) {
	return nil, errNoPushEndpoint
}
