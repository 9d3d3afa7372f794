package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-panel/internal/backend"
	"github.com/nerrad567/gray-logic-panel/internal/device"
	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-panel/internal/livesync"
)

// Source is the live device state the mirror follows.
type Source interface {
	Snapshot() *device.Snapshot
	Status() livesync.Status
	Subscribe() (<-chan livesync.Update, func())
	RequestRefresh()
}

// Publisher is the broker surface the mirror writes to. *mqtt.Client satisfies it.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	ClearRetained(topic string) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Commander forwards device commands to the backend.
type Commander interface {
	SendCommand(ctx context.Context, deviceID string, target float64) error
}

// SessionClearer drops the stored credential. *session.Guard satisfies it.
type SessionClearer interface {
	ClearSession()
}

// Logger is the logging surface the mirror needs.
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

const (
	// commandTimeout bounds one forwarded command.
	commandTimeout = 10 * time.Second

	// discoveredBuffer holds retained topics reported by the broker before Run drains them.
	discoveredBuffer = 256

	// subscribeQoS is used for the discovery and command subscriptions.
	subscribeQoS = 1
)

// entry is what the mirror last wrote for one device. A nil payload means
// the write failed and must be retried.
type entry struct {
	topic   string
	payload []byte
}

// Mirror keeps the broker's retained topics in step with the live snapshot.
//
// All mirror state is owned by the Run goroutine. Broker callbacks only
// post to channels.
type Mirror struct {
	pub       Publisher
	topics    mqtt.Topics
	source    Source
	commander Commander
	session   SessionClearer
	logger    Logger

	resync     chan struct{}
	discovered chan string
	running    atomic.Bool
	healthy    atomic.Bool

	// Owned by Run.
	devices      map[string]entry
	status       []byte
	subscribed   bool
	snapshotSeen bool
	orphans      map[string]struct{}
	invalid      map[string]struct{}
}

// New creates a mirror writing under topics.
func New(pub Publisher, topics mqtt.Topics, source Source) *Mirror {
	return &Mirror{
		pub:        pub,
		topics:     topics,
		source:     source,
		logger:     noopLogger{},
		resync:     make(chan struct{}, 1),
		discovered: make(chan string, discoveredBuffer),
		devices:    make(map[string]entry),
		orphans:    make(map[string]struct{}),
		invalid:    make(map[string]struct{}),
	}
}

// SetLogger replaces the mirror's logger. Call before Run.
func (m *Mirror) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// EnableCommands accepts device commands on the command topic and forwards
// them through c. Call before Run.
func (m *Mirror) EnableCommands(c Commander) {
	m.commander = c
}

// SetSessionClearer makes a backend 401 on a forwarded command end the
// session, as it does for commands from the HTTP API. Call before Run.
func (m *Mirror) SetSessionClearer(s SessionClearer) {
	m.session = s
}

// Name identifies the mirror in health reports.
func (m *Mirror) Name() string { return "mqtt_mirror" }

// Healthy reports whether the broker is reachable and the last pass
// published everything.
func (m *Mirror) Healthy() bool {
	return m.healthy.Load() && m.pub.IsConnected()
}

// Resync forces every topic to be rewritten. Wire it to the broker's
// on-connect callback so a reconnect repairs anything missed while offline.
func (m *Mirror) Resync() {
	select {
	case m.resync <- struct{}{}:
	default:
	}
}

// Run mirrors updates until ctx is cancelled or the source closes its stream.
func (m *Mirror) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	updates, unsubscribe := m.source.Subscribe()
	defer unsubscribe()

	m.ensureSubscribed()
	m.apply(m.source.Snapshot(), m.source.Status())

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			m.apply(u.Snapshot, u.Status)
		case <-m.resync:
			m.logger.Info("mqtt mirror resyncing")
			m.invalidate()
			m.ensureSubscribed()
			m.apply(m.source.Snapshot(), m.source.Status())
		case topic := <-m.discovered:
			m.noteRetained(topic)
		}
	}
}

// ensureSubscribed registers the discovery and command subscriptions once.
// The client restores them itself after a reconnect.
func (m *Mirror) ensureSubscribed() {
	if m.subscribed || !m.pub.IsConnected() {
		return
	}
	if err := m.pub.Subscribe(m.topics.AllDeviceStates(), subscribeQoS, m.handleRetained); err != nil {
		m.logger.Warn("mqtt mirror cannot discover retained state", "error", err)
		return
	}
	if m.commander != nil {
		if err := m.pub.Subscribe(m.topics.AllDeviceCommands(), subscribeQoS, m.handleCommand); err != nil {
			m.logger.Warn("mqtt mirror cannot accept commands", "error", err)
			return
		}
	}
	m.subscribed = true
}

// invalidate forgets every payload so the next pass rewrites all topics.
func (m *Mirror) invalidate() {
	for id, e := range m.devices {
		m.devices[id] = entry{topic: e.topic}
	}
	m.status = nil
}

// apply brings the broker in line with snap and status.
func (m *Mirror) apply(snap *device.Snapshot, status livesync.Status) {
	if !m.pub.IsConnected() {
		m.healthy.Store(false)
		return
	}

	ok := m.applyDevices(snap)
	if !m.applyStatus(status) {
		ok = false
	}
	m.healthy.Store(ok)
}

func (m *Mirror) applyDevices(snap *device.Snapshot) bool {
	ok := true
	seen := make(map[string]struct{}, snap.Len())

	for _, d := range snap.View() {
		if !mqtt.ValidSegment(d.ID) || !mqtt.ValidSegment(d.HubID) {
			if _, warned := m.invalid[d.ID]; !warned {
				m.invalid[d.ID] = struct{}{}
				m.logger.Warn("device ID cannot be used as an MQTT topic level", "device_id", d.ID, "hub_id", d.HubID)
			}
			continue
		}
		seen[d.ID] = struct{}{}

		topic := m.topics.DeviceState(d.HubID, d.ID)
		payload, err := json.Marshal(newState(d))
		if err != nil {
			m.logger.Error("encoding device state", "device_id", d.ID, "error", err)
			ok = false
			continue
		}

		prev, had := m.devices[d.ID]
		if had && prev.topic == topic && bytes.Equal(prev.payload, payload) {
			continue
		}
		if had && prev.topic != topic {
			// The device moved to another hub.
			if err := m.pub.ClearRetained(prev.topic); err != nil {
				m.logger.Warn("clearing moved device state", "topic", prev.topic, "error", err)
			}
		}

		if err := m.pub.PublishRetained(topic, payload); err != nil {
			m.logger.Warn("publishing device state", "device_id", d.ID, "error", err)
			m.devices[d.ID] = entry{topic: topic}
			ok = false
			continue
		}
		m.devices[d.ID] = entry{topic: topic, payload: payload}
	}

	for id, e := range m.devices {
		if _, present := seen[id]; present {
			continue
		}
		if err := m.pub.ClearRetained(e.topic); err != nil {
			m.logger.Warn("clearing vanished device state", "device_id", id, "error", err)
			ok = false
			continue
		}
		delete(m.devices, id)
	}

	if snap != nil {
		m.snapshotSeen = true
		for topic := range m.orphans {
			m.pruneOrphan(topic)
		}
		clear(m.orphans)
	}
	return ok
}

func (m *Mirror) applyStatus(status livesync.Status) bool {
	payload, err := json.Marshal(status)
	if err != nil {
		m.logger.Error("encoding sync status", "error", err)
		return false
	}
	if bytes.Equal(payload, m.status) {
		return true
	}
	if err := m.pub.PublishRetained(m.topics.SyncStatus(), payload); err != nil {
		m.logger.Warn("publishing sync status", "error", err)
		return false
	}
	m.status = payload
	return true
}

// handleRetained runs on the broker's goroutine for every non-empty state
// message, including the echo of the mirror's own writes.
func (m *Mirror) handleRetained(topic string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	select {
	case m.discovered <- topic:
	default:
		m.logger.Debug("mqtt mirror discovery backlog full", "topic", topic)
	}
	return nil
}

// noteRetained decides what to do with a state topic seen on the broker.
// Until the first snapshot arrives it cannot tell live devices from stale
// ones, so topics are held back.
func (m *Mirror) noteRetained(topic string) {
	if !m.snapshotSeen {
		m.orphans[topic] = struct{}{}
		return
	}
	m.pruneOrphan(topic)
}

func (m *Mirror) pruneOrphan(topic string) {
	if m.owns(topic) {
		return
	}
	if _, _, ok := m.topics.ParseDeviceState(topic); !ok {
		return
	}
	if err := m.pub.ClearRetained(topic); err != nil {
		m.logger.Warn("clearing stale device state", "topic", topic, "error", err)
		return
	}
	m.logger.Debug("cleared stale device state", "topic", topic)
}

func (m *Mirror) owns(topic string) bool {
	for _, e := range m.devices {
		if e.topic == topic {
			return true
		}
	}
	return false
}

// handleCommand runs on the broker's goroutine. Returned errors are logged
// by the MQTT client.
func (m *Mirror) handleCommand(topic string, payload []byte) error {
	id, ok := m.topics.ParseDeviceCommand(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %s", ErrBadCommand, topic)
	}
	target, err := parseTarget(payload)
	if err != nil {
		return err
	}

	d, found := device.ByID(m.source.Snapshot().View(), id)
	if !found {
		return fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	if err := d.Info().CheckTarget(target); err != nil {
		return fmt.Errorf("command for %s: %w", id, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := m.commander.SendCommand(ctx, id, target); err != nil {
		if errors.Is(err, backend.ErrAuth) && m.session != nil {
			m.logger.Warn("backend rejected credentials, clearing session", "device_id", id)
			m.session.ClearSession()
		}
		return fmt.Errorf("forwarding command for %s: %w", id, err)
	}

	m.logger.Info("mqtt command forwarded", "device_id", id, "target_value", target)
	m.source.RequestRefresh()
	return nil
}
