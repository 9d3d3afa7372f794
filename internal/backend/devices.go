package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-panel/internal/device"
)

// wireDevice is one record of the snapshot endpoint.
type wireDevice struct {
	DeviceID    string   `json:"device_id"`
	Nickname    string   `json:"nickname"`
	Type        int      `json:"type"`
	AreaID      *string  `json:"area_id"`
	HubID       string   `json:"hub_id"`
	DeviceData  *float64 `json:"device_data"`
	DeviceState *float64 `json:"device_state"`
	Timestamp   *string  `json:"timestamp"`
}

// normalize converts a wire record into the panel's device model.
func (w wireDevice) normalize() device.Device {
	d := device.Device{
		ID:         w.DeviceID,
		Name:       w.Nickname,
		Type:       device.TypeCode(w.Type),
		HubID:      w.HubID,
		Value:      latestValue(w.DeviceData, w.DeviceState),
		ObservedAt: parseTimestamp(w.Timestamp),
	}
	if w.AreaID != nil && *w.AreaID != "" {
		area := *w.AreaID
		d.AreaID = &area
	}
	return d
}

// latestValue folds the two optional reading fields into one Value. data wins.
func latestValue(data, state *float64) device.Value {
	switch {
	case data != nil:
		return device.Continuous(*data)
	case state != nil:
		return device.Discrete(int(math.Round(*state)))
	default:
		return device.NoData()
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts RFC 3339 and the naive ISO forms some backends emit
// (interpreted as UTC). Unparseable values become nil rather than failing the snapshot.
func parseTimestamp(raw *string) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, *raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// FetchSnapshot returns every device visible to the current user.
//
// Returns:
//   - ErrAuth on 401 or when no token is held
//   - an error wrapping ErrNetwork for every other failure
func (c *Client) FetchSnapshot(ctx context.Context) ([]device.Device, error) {
	var records []wireDevice
	if err := c.do(ctx, call{method: http.MethodGet, path: "/devices"}, &records); err != nil {
		if errors.Is(err, ErrAuth) || errors.Is(err, ErrNetwork) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	devices := make([]device.Device, 0, len(records))
	for _, r := range records {
		if r.DeviceID == "" {
			c.logger.Warn("skipping device record without id", "hub_id", r.HubID)
			continue
		}
		devices = append(devices, r.normalize())
	}
	return devices, nil
}

// RenameDevice changes a device's nickname.
func (c *Client) RenameDevice(ctx context.Context, deviceID, name string) error {
	return c.do(ctx, call{
		method: http.MethodPatch,
		path:   "/devices/" + url.PathEscape(deviceID),
		body:   map[string]string{"nickname": name},
	}, nil)
}

// AssignDeviceArea moves a device into areaID, replacing any previous area.
func (c *Client) AssignDeviceArea(ctx context.Context, deviceID, areaID string) error {
	return c.do(ctx, call{
		method: http.MethodPut,
		path:   "/devices/" + url.PathEscape(deviceID) + "/area",
		body:   map[string]string{"area_id": areaID},
	}, nil)
}

// RemoveDeviceFromArea makes a device unassigned.
func (c *Client) RemoveDeviceFromArea(ctx context.Context, deviceID string) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		path:   "/devices/" + url.PathEscape(deviceID) + "/area",
	}, nil)
}

// SendCommand asks the device to move to target (0/1 for switches, a level for dimmers).
// Calls are throttled; the wait honours ctx.
func (c *Client) SendCommand(ctx context.Context, deviceID string, target float64) error {
	if err := c.commands.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for command slot: %w", err)
	}
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   "/devices/" + url.PathEscape(deviceID) + "/command",
		body:   map[string]float64{"target_value": target},
	}, nil)
}

// HistoryQuery bounds a history request. Zero fields are omitted.
type HistoryQuery struct {
	From  time.Time
	To    time.Time
	Limit int
}

func (q HistoryQuery) values() url.Values {
	v := url.Values{}
	if !q.From.IsZero() {
		v.Set("from", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Reading is one historical observation.
type Reading struct {
	At    time.Time    `json:"at"`
	Value device.Value `json:"value"`
}

type wireReading struct {
	Timestamp   *string  `json:"timestamp"`
	DeviceData  *float64 `json:"device_data"`
	DeviceState *float64 `json:"device_state"`
}

// History returns a device's past readings, oldest first as the backend orders them.
// Records without a parseable timestamp are dropped.
func (c *Client) History(ctx context.Context, deviceID string, q HistoryQuery) ([]Reading, error) {
	var records []wireReading
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/devices/" + url.PathEscape(deviceID) + "/history",
		query:  q.values(),
	}, &records)
	if err != nil {
		return nil, err
	}

	out := make([]Reading, 0, len(records))
	for _, r := range records {
		at := parseTimestamp(r.Timestamp)
		if at == nil {
			continue
		}
		out = append(out, Reading{At: *at, Value: latestValue(r.DeviceData, r.DeviceState)})
	}
	return out, nil
}
