// Package recorder keeps a local time series of device readings.
//
// It follows the live sync engine and writes one point per device each time
// the backend's observation timestamp for that device advances, plus one
// point per sync state transition. Re-recording an already written
// observation after a restart is harmless: InfluxDB keeps one point per
// series and timestamp.
package recorder

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-panel/internal/device"
	"github.com/nerrad567/gray-logic-panel/internal/livesync"
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("recorder: already running")

// Writer is the time-series sink. *influxdb.Client satisfies it.
type Writer interface {
	WriteReading(deviceID, hubID, category string, value float64, observedAt time.Time)
	WriteSyncState(state string, reconnectAttempts int, at time.Time)
	IsConnected() bool
}

// Source is the live device state the recorder follows.
type Source interface {
	Snapshot() *device.Snapshot
	Status() livesync.Status
	Subscribe() (<-chan livesync.Update, func())
}

// Logger is the logging surface the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Recorder writes new readings as snapshots arrive.
type Recorder struct {
	w       Writer
	source  Source
	logger  Logger
	now     func() time.Time
	running atomic.Bool

	// Owned by Run.
	last      map[string]time.Time
	lastState livesync.State
	haveState bool
}

// New creates a recorder writing to w.
func New(w Writer, source Source) *Recorder {
	return &Recorder{
		w:      w,
		source: source,
		logger: noopLogger{},
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// SetLogger replaces the recorder's logger. Call before Run.
func (r *Recorder) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Name identifies the recorder in health reports.
func (r *Recorder) Name() string { return "influx_recorder" }

// Healthy reports whether the time-series database is reachable.
func (r *Recorder) Healthy() bool { return r.w.IsConnected() }

// Run records until ctx is cancelled or the source closes its stream.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	updates, unsubscribe := r.source.Subscribe()
	defer unsubscribe()
	r.logger.Info("reading recorder started")

	r.record(r.source.Snapshot(), r.source.Status())
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			r.record(u.Snapshot, u.Status)
		}
	}
}

func (r *Recorder) record(snap *device.Snapshot, status livesync.Status) {
	if !r.haveState || status.State != r.lastState {
		r.w.WriteSyncState(status.State.String(), status.Retries, r.now())
		r.lastState = status.State
		r.haveState = true
	}

	if snap == nil {
		clear(r.last)
		return
	}

	written := 0
	seen := make(map[string]struct{}, snap.Len())
	for _, d := range snap.View() {
		seen[d.ID] = struct{}{}
		if d.ObservedAt == nil {
			continue
		}
		value, ok := d.Value.Float()
		if !ok {
			continue
		}
		if prev, had := r.last[d.ID]; had && !d.ObservedAt.After(prev) {
			continue
		}
		r.w.WriteReading(d.ID, d.HubID, string(d.Category()), value, *d.ObservedAt)
		r.last[d.ID] = *d.ObservedAt
		written++
	}
	for id := range r.last {
		if _, ok := seen[id]; !ok {
			delete(r.last, id)
		}
	}

	if written > 0 {
		r.logger.Debug("recorded readings", "count", written, "snapshot_version", snap.Version())
	}
}
