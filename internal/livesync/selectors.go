package livesync

import (
	"sync"

	"github.com/nerrad567/gray-logic-panel/internal/device"
)

// SnapshotSource is anything holding a current snapshot. Engine satisfies it.
type SnapshotSource interface {
	Snapshot() *device.Snapshot
}

// maxMemoEntries bounds each memo map. Keys come from request input, so a
// full map is reset rather than allowed to grow.
const maxMemoEntries = 256

type selectorKind int

const (
	selectAll selectorKind = iota
	selectHub
	selectArea
	selectUnassigned
)

type selectorKey struct {
	kind selectorKind
	id   string
}

// Selectors memoises the device projections over the source's current snapshot.
//
// A result is computed at most once per (snapshot, key). When the snapshot
// pointer changes every memo is dropped. Returned slices are shared between
// callers and must be treated as read-only.
//
// Thread Safety: all methods are safe for concurrent use.
type Selectors struct {
	source SnapshotSource

	mu       sync.Mutex
	snap     *device.Snapshot
	lists    map[selectorKey][]device.Device
	stats    map[selectorKey]device.Stats
	filtered map[device.Filter][]device.Device
	computed int
}

// NewSelectors returns memoised selectors over source.
func NewSelectors(source SnapshotSource) *Selectors {
	return &Selectors{source: source}
}

// All returns every device in the current snapshot.
func (s *Selectors) All() []device.Device {
	return s.list(selectorKey{kind: selectAll})
}

// ForHub returns the devices on hubID.
func (s *Selectors) ForHub(hubID string) []device.Device {
	return s.list(selectorKey{kind: selectHub, id: hubID})
}

// ForArea returns the devices assigned to areaID.
func (s *Selectors) ForArea(areaID string) []device.Device {
	return s.list(selectorKey{kind: selectArea, id: areaID})
}

// UnassignedForHub returns the devices on hubID that have no area.
func (s *Selectors) UnassignedForHub(hubID string) []device.Device {
	return s.list(selectorKey{kind: selectUnassigned, id: hubID})
}

// ByID finds one device in the current snapshot.
func (s *Selectors) ByID(id string) (device.Device, bool) {
	return device.ByID(s.source.Snapshot().View(), id)
}

// Stats aggregates the whole snapshot.
func (s *Selectors) Stats() device.Stats {
	return s.statsFor(selectorKey{kind: selectAll})
}

// StatsForHub aggregates the devices on hubID.
func (s *Selectors) StatsForHub(hubID string) device.Stats {
	return s.statsFor(selectorKey{kind: selectHub, id: hubID})
}

// StatsForArea aggregates the devices in areaID.
func (s *Selectors) StatsForArea(areaID string) device.Stats {
	return s.statsFor(selectorKey{kind: selectArea, id: areaID})
}

// Filter applies f to the current snapshot. Free-text searches are
// computed on every call and never memoised.
func (s *Selectors) Filter(f device.Filter) []device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.syncLocked()
	if out, ok := s.filtered[f]; ok {
		return out
	}
	s.computed++
	out := device.FilterDevices(snap.View(), f)
	if f.Search == "" {
		if len(s.filtered) >= maxMemoEntries {
			clear(s.filtered)
		}
		s.filtered[f] = out
	}
	return out
}

func (s *Selectors) list(key selectorKey) []device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(key, s.syncLocked())
}

func (s *Selectors) listLocked(key selectorKey, snap *device.Snapshot) []device.Device {
	if out, ok := s.lists[key]; ok {
		return out
	}
	s.computed++

	devices := snap.View()
	var out []device.Device
	switch key.kind {
	case selectHub:
		out = device.ForHub(devices, key.id)
	case selectArea:
		out = device.ForArea(devices, key.id)
	case selectUnassigned:
		out = device.UnassignedForHub(devices, key.id)
	default:
		out = snap.Devices()
		if out == nil {
			out = []device.Device{}
		}
	}
	if len(s.lists) >= maxMemoEntries {
		clear(s.lists)
	}
	s.lists[key] = out
	return out
}

func (s *Selectors) statsFor(key selectorKey) device.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.syncLocked()
	if st, ok := s.stats[key]; ok {
		return st
	}
	st := device.ComputeStats(s.listLocked(key, snap))
	if len(s.stats) >= maxMemoEntries {
		clear(s.stats)
	}
	s.stats[key] = st
	return st
}

// syncLocked drops every memo when the snapshot has been replaced.
func (s *Selectors) syncLocked() *device.Snapshot {
	snap := s.source.Snapshot()
	if snap != s.snap || s.lists == nil {
		s.snap = snap
		s.lists = make(map[selectorKey][]device.Device)
		s.stats = make(map[selectorKey]device.Stats)
		s.filtered = make(map[device.Filter][]device.Device)
	}
	return snap
}
