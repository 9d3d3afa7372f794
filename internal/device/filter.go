package device

import "strings"

type areaMode int

const (
	areaAny areaMode = iota
	areaNone
	areaExact
)

// AreaFilter is a three-way area predicate. The zero value matches every device.
type AreaFilter struct {
	mode areaMode
	id   string
}

// AnyArea matches every device.
func AnyArea() AreaFilter { return AreaFilter{} }

// NoArea matches only unassigned devices.
func NoArea() AreaFilter { return AreaFilter{mode: areaNone} }

// InArea matches only devices assigned to id.
func InArea(id string) AreaFilter { return AreaFilter{mode: areaExact, id: id} }

// Match applies the predicate to d.
func (f AreaFilter) Match(d Device) bool {
	switch f.mode {
	case areaNone:
		return d.Unassigned()
	case areaExact:
		return d.InArea(f.id)
	default:
		return true
	}
}

// IsAny reports whether the filter is a no-op.
func (f AreaFilter) IsAny() bool { return f.mode == areaAny }

// Filter narrows a device list. Every field is optional; set fields are ANDed.
type Filter struct {
	// Category, when non-empty, requires an exact category match.
	Category Category
	Area     AreaFilter
	// Search is matched case-insensitively against the device name or its type description.
	Search string
}

// Match reports whether d passes every set predicate.
func (f Filter) Match(d Device) bool {
	if f.Category != "" && d.Category() != f.Category {
		return false
	}
	if !f.Area.Match(d) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(d.Name), q) &&
			!strings.Contains(strings.ToLower(d.Info().Description), q) {
			return false
		}
	}
	return true
}

// FilterDevices returns the devices that pass f, preserving input order.
func FilterDevices(devices []Device, f Filter) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	return out
}
