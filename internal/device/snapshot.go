package device

import "time"

// Snapshot is one complete, immutable device collection.
//
// A Snapshot is never modified after construction. Replacing the current
// snapshot is a single pointer swap, so readers see either the old collection
// or the new one and never a mix.
type Snapshot struct {
	devices   []Device
	version   uint64
	fetchedAt time.Time
}

// NewSnapshot takes ownership of devices. Callers must not modify the slice afterwards.
func NewSnapshot(devices []Device, version uint64, fetchedAt time.Time) *Snapshot {
	return &Snapshot{devices: devices, version: version, fetchedAt: fetchedAt}
}

// Devices returns a copy of the collection.
func (s *Snapshot) Devices() []Device {
	if s == nil {
		return nil
	}
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// View returns the underlying slice without copying. Callers must treat it as read-only.
func (s *Snapshot) View() []Device {
	if s == nil {
		return nil
	}
	return s.devices
}

// Len returns the number of devices. A nil snapshot is empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.devices)
}

// Version increases by one for every snapshot the engine publishes.
func (s *Snapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

// FetchedAt is when the backend response was received.
func (s *Snapshot) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}
