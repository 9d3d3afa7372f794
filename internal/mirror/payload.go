package mirror

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-panel/internal/device"
)

// State is the retained payload for one device.
type State struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	HubID      string          `json:"hub_id"`
	AreaID     *string         `json:"area_id"`
	Type       device.TypeCode `json:"type"`
	Category   device.Category `json:"category"`
	Unit       string          `json:"unit,omitempty"`
	Value      device.Value    `json:"value"`
	ObservedAt *time.Time      `json:"observed_at"`
}

func newState(d device.Device) State {
	info := d.Info()
	return State{
		ID:         d.ID,
		Name:       d.Name,
		HubID:      d.HubID,
		AreaID:     d.AreaID,
		Type:       d.Type,
		Category:   info.Category,
		Unit:       info.Unit,
		Value:      d.Value,
		ObservedAt: d.ObservedAt,
	}
}

// command is the JSON form of an inbound command.
type command struct {
	TargetValue *float64 `json:"target_value"`
}

// parseTarget accepts either a bare number ("1", "42.5") or
// {"target_value": n}.
func parseTarget(payload []byte) (float64, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrBadCommand)
	}
	if v, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
		return v, nil
	}

	var cmd command
	if err := json.Unmarshal(trimmed, &cmd); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadCommand, err)
	}
	if cmd.TargetValue == nil {
		return 0, fmt.Errorf("%w: target_value is required", ErrBadCommand)
	}
	return *cmd.TargetValue, nil
}
