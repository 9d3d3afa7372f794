package device

import "time"

// ForHub returns every device on hubID. An empty hubID yields an empty slice.
func ForHub(devices []Device, hubID string) []Device {
	out := []Device{}
	if hubID == "" {
		return out
	}
	for _, d := range devices {
		if d.HubID == hubID {
			out = append(out, d)
		}
	}
	return out
}

// ForArea returns every device assigned to exactly areaID.
func ForArea(devices []Device, areaID string) []Device {
	out := []Device{}
	for _, d := range devices {
		if d.InArea(areaID) {
			out = append(out, d)
		}
	}
	return out
}

// UnassignedForHub returns the devices on hubID that have no area.
func UnassignedForHub(devices []Device, hubID string) []Device {
	out := []Device{}
	if hubID == "" {
		return out
	}
	for _, d := range devices {
		if d.HubID == hubID && d.Unassigned() {
			out = append(out, d)
		}
	}
	return out
}

// ByID returns the device with id.
func ByID(devices []Device, id string) (Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// Stats aggregates a set of devices.
type Stats struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
	// LatestAt is the most recent observation across the set, nil if none has one.
	LatestAt *time.Time     `json:"latest_at,omitempty"`
	ByArea   map[string]int `json:"by_area"`
}

// ComputeStats counts devices per category and per area and finds the most
// recent observation. Every category key is present, possibly with zero.
// Unassigned devices are not counted in ByArea.
func ComputeStats(devices []Device) Stats {
	stats := Stats{
		Total:      len(devices),
		ByCategory: make(map[Category]int, len(AllCategories())),
		ByArea:     make(map[string]int),
	}
	for _, c := range AllCategories() {
		stats.ByCategory[c] = 0
	}

	for _, d := range devices {
		stats.ByCategory[d.Category()]++
		if d.AreaID != nil {
			stats.ByArea[*d.AreaID]++
		}
		if d.ObservedAt != nil && (stats.LatestAt == nil || d.ObservedAt.After(*stats.LatestAt)) {
			latest := *d.ObservedAt
			stats.LatestAt = &latest
		}
	}
	return stats
}
