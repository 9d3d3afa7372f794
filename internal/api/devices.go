package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-panel/internal/audit"
	"github.com/nerrad567/gray-logic-panel/internal/backend"
	"github.com/nerrad567/gray-logic-panel/internal/device"
	"github.com/nerrad567/gray-logic-panel/internal/location"
)

// deviceResponse is a device plus its registry metadata.
type deviceResponse struct {
	device.Device
	Category    device.Category `json:"category"`
	Description string          `json:"description"`
	Unit        string          `json:"unit,omitempty"`
}

func toResponse(d device.Device) deviceResponse {
	info := d.Info()
	return deviceResponse{
		Device:      d,
		Category:    info.Category,
		Description: info.Description,
		Unit:        info.Unit,
	}
}

func toResponses(devices []device.Device) []deviceResponse {
	out := make([]deviceResponse, len(devices))
	for i, d := range devices {
		out[i] = toResponse(d)
	}
	return out
}

func writeDevices(w http.ResponseWriter, devices []device.Device) {
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": toResponses(devices),
		"count":   len(devices),
	})
}

// parseDeviceFilter reads the category, area and search filters from the query.
//
// Query parameters:
//   - category: environmental, security or control
//   - area_id: devices in this area
//   - unassigned: "true" for devices with no area (conflicts with area_id)
//   - q: case-insensitive substring of the name or type description
func parseDeviceFilter(r *http.Request) (device.Filter, error) {
	q := r.URL.Query()
	var f device.Filter

	if c := q.Get("category"); c != "" {
		category, err := device.ParseCategory(c)
		if err != nil {
			return f, err
		}
		f.Category = category
	}

	unassigned, err := parseBool(q.Get("unassigned"))
	if err != nil {
		return f, err
	}
	areaID := q.Get("area_id")
	switch {
	case unassigned && areaID != "":
		return f, errConflictingAreaFilter
	case unassigned:
		f.Area = device.NoArea()
	case areaID != "":
		f.Area = device.InArea(areaID)
	}

	f.Search = strings.TrimSpace(q.Get("q"))
	return f, nil
}

// handleListDevices returns the current snapshot, optionally filtered.
// hub_id narrows the result to one hub on top of the filters above.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	f, err := parseDeviceFilter(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	devices := s.selectors.Filter(f)
	if hubID := r.URL.Query().Get("hub_id"); hubID != "" {
		devices = device.ForHub(devices, hubID)
	}
	writeDevices(w, devices)
}

// handleDeviceStats returns counts for the whole snapshot, one hub or one area.
func (s *Server) handleDeviceStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("hub_id") != "":
		writeJSON(w, http.StatusOK, s.selectors.StatsForHub(q.Get("hub_id")))
	case q.Get("area_id") != "":
		writeJSON(w, http.StatusOK, s.selectors.StatsForArea(q.Get("area_id")))
	default:
		writeJSON(w, http.StatusOK, s.selectors.Stats())
	}
}

// handleGetDevice returns a single device from the snapshot.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.selectors.ByID(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(d))
}

// updateDeviceRequest is the PATCH /devices/{id} body. An empty area_id
// removes the device from its area.
type updateDeviceRequest struct {
	Name   *string `json:"name"`
	AreaID *string `json:"area_id"`
}

// handleUpdateDevice renames a device and/or moves it between areas.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateDeviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == nil && req.AreaID == nil {
		writeBadRequest(w, "nothing to update")
		return
	}

	ctx := r.Context()
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if err := location.ValidateName(name); err != nil {
			writeValidationError(w, err.Error())
			return
		}
		if err := s.backend.RenameDevice(ctx, id, name); err != nil {
			s.writeBackendError(w, r, "rename device", err)
			return
		}
		s.recordActivity(r, audit.ActionRename, audit.EntityDevice, id, map[string]any{"name": name})
	}

	if req.AreaID != nil {
		var err error
		if *req.AreaID == "" {
			err = s.backend.RemoveDeviceFromArea(ctx, id)
		} else {
			err = s.backend.AssignDeviceArea(ctx, id, *req.AreaID)
		}
		if err != nil {
			// The rename already landed; the panel must still pick it up.
			if req.Name != nil {
				s.engine.RequestRefresh()
			}
			s.writeBackendError(w, r, "assign device area", err)
			return
		}
		if *req.AreaID == "" {
			s.recordActivity(r, audit.ActionUnassignArea, audit.EntityDevice, id, nil)
		} else {
			s.recordActivity(r, audit.ActionAssignArea, audit.EntityDevice, id, map[string]any{"area_id": *req.AreaID})
		}
	}

	s.accepted(w, map[string]any{"device_id": id})
}

// handleRemoveDeviceArea makes a device unassigned.
func (s *Server) handleRemoveDeviceArea(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.backend.RemoveDeviceFromArea(r.Context(), id); err != nil {
		s.writeBackendError(w, r, "remove device from area", err)
		return
	}
	s.recordActivity(r, audit.ActionUnassignArea, audit.EntityDevice, id, nil)
	s.accepted(w, map[string]any{"device_id": id})
}

// commandRequest is the PUT /devices/{id}/command body.
type commandRequest struct {
	TargetValue *float64 `json:"target_value"`
}

// handleDeviceCommand forwards a target value to a switchable device.
//
// On/off types accept 0 or 1; dimmers accept 0 to 100. The device must be in
// the current snapshot so its type can be checked.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TargetValue == nil {
		writeBadRequest(w, "target_value is required")
		return
	}

	d, ok := s.selectors.ByID(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	if err := validateTarget(d.Info(), *req.TargetValue); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	if err := s.backend.SendCommand(r.Context(), id, *req.TargetValue); err != nil {
		s.writeBackendError(w, r, "send command", err)
		return
	}
	s.recordActivity(r, audit.ActionCommand, audit.EntityDevice, id, map[string]any{"target_value": *req.TargetValue})
	s.accepted(w, map[string]any{"device_id": id, "target_value": *req.TargetValue})
}

// validateTarget maps the registry's range check to client-facing messages.
func validateTarget(info device.TypeInfo, target float64) error {
	err := info.CheckTarget(target)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, device.ErrNotSwitchable):
		return errNotSwitchable
	case info.Kind == device.KindDiscrete:
		return errOnOffTarget
	default:
		return errLevelTarget
	}
}

// Default and maximum number of history records.
const (
	defaultHistoryLimit = 500
	maxHistoryLimit     = 5000
)

// handleDeviceHistory proxies a device's history.
//
// Query parameters:
//   - from, to: RFC 3339 bounds (optional)
//   - limit: maximum records, default 500
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	query := backend.HistoryQuery{Limit: defaultHistoryLimit}
	var err error
	if query.From, err = parseTime(q.Get("from")); err != nil {
		writeBadRequest(w, "from must be an RFC 3339 timestamp")
		return
	}
	if query.To, err = parseTime(q.Get("to")); err != nil {
		writeBadRequest(w, "to must be an RFC 3339 timestamp")
		return
	}
	if !query.From.IsZero() && !query.To.IsZero() && query.To.Before(query.From) {
		writeBadRequest(w, "to must not be before from")
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil || limit < 1 || limit > maxHistoryLimit {
			writeBadRequest(w, "limit must be between 1 and 5000")
			return
		}
		query.Limit = limit
	}

	readings, err := s.backend.History(r.Context(), id, query)
	if err != nil {
		s.writeBackendError(w, r, "load history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"readings":  readings,
		"count":     len(readings),
	})
}

// accepted acknowledges a forwarded mutation and asks the engine to pick up
// its effect. The refreshed snapshot reaches browsers over the WebSocket.
func (s *Server) accepted(w http.ResponseWriter, body map[string]any) {
	s.engine.RequestRefresh()
	body["status"] = "accepted"
	writeJSON(w, http.StatusAccepted, body)
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errInvalidBool
	}
	return v, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
