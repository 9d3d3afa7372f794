package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-panel/internal/audit"
	"github.com/nerrad567/gray-logic-panel/internal/backend"
	"github.com/nerrad567/gray-logic-panel/internal/location"
)

// hubResponse is a hub with its device counts from the current snapshot.
type hubResponse struct {
	location.Hub
	Devices    int `json:"devices"`
	Unassigned int `json:"unassigned"`
}

// nameRequest is the body of every rename.
type nameRequest struct {
	Name string `json:"name"`
}

// handleListHubs returns the user's hubs.
func (s *Server) handleListHubs(w http.ResponseWriter, r *http.Request) {
	hubs, err := s.directory.Hubs(r.Context())
	if err != nil {
		s.writeBackendError(w, r, "list hubs", err)
		return
	}

	out := make([]hubResponse, len(hubs))
	for i, h := range hubs {
		out[i] = hubResponse{
			Hub:        h,
			Devices:    len(s.selectors.ForHub(h.ID)),
			Unassigned: len(s.selectors.UnassignedForHub(h.ID)),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hubs": out, "count": len(out)})
}

// handleUpdateHub renames a hub.
func (s *Server) handleUpdateHub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := location.ValidateName(name); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	if err := s.backend.RenameHub(r.Context(), id, name); err != nil {
		s.writeBackendError(w, r, "rename hub", err)
		return
	}
	s.recordActivity(r, audit.ActionRename, audit.EntityHub, id, map[string]any{"name": name})
	s.directory.InvalidateHubs()
	s.accepted(w, map[string]any{"hub_id": id})
}

// handleHubDevices returns a hub's devices with its unassigned ones listed separately.
func (s *Server) handleHubDevices(w http.ResponseWriter, r *http.Request) {
	hub, err := s.directory.Hub(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, location.ErrHubNotFound) {
			writeNotFound(w, "hub not found")
			return
		}
		s.writeBackendError(w, r, "load hub", err)
		return
	}

	devices := s.selectors.ForHub(hub.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"hub":        hub,
		"devices":    toResponses(devices),
		"unassigned": toResponses(s.selectors.UnassignedForHub(hub.ID)),
		"stats":      s.selectors.StatsForHub(hub.ID),
		"count":      len(devices),
	})
}

// handleClaimHub claims a hub by its printed identifier.
func (s *Server) handleClaimHub(w http.ResponseWriter, r *http.Request) {
	var req backend.ClaimHubRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.HubID = strings.TrimSpace(req.HubID)
	if req.HubID == "" {
		writeValidationError(w, "hub_id is required")
		return
	}

	if err := s.backend.ClaimHub(r.Context(), req); err != nil {
		s.writeBackendError(w, r, "claim hub", err)
		return
	}
	s.recordActivity(r, audit.ActionClaim, audit.EntityHub, req.HubID, nil)
	s.directory.InvalidateHubs()
	s.accepted(w, map[string]any{"hub_id": req.HubID})
}

// handleClaimCamera attaches a camera to one of the user's hubs.
func (s *Server) handleClaimCamera(w http.ResponseWriter, r *http.Request) {
	var req backend.ClaimCameraRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.CameraID = strings.TrimSpace(req.CameraID)
	if req.CameraID == "" || req.HubID == "" {
		writeValidationError(w, "camera_id and hub_id are required")
		return
	}

	if err := s.backend.ClaimCamera(r.Context(), req); err != nil {
		s.writeBackendError(w, r, "claim camera", err)
		return
	}
	s.recordActivity(r, audit.ActionClaim, audit.EntityCamera, req.CameraID, map[string]any{"hub_id": req.HubID})
	s.accepted(w, map[string]any{"camera_id": req.CameraID, "hub_id": req.HubID})
}

// handleListAreas returns every area, or one hub's areas when hub_id is given.
func (s *Server) handleListAreas(w http.ResponseWriter, r *http.Request) {
	var (
		areas []location.Area
		err   error
	)
	if hubID := r.URL.Query().Get("hub_id"); hubID != "" {
		areas, err = s.directory.AreasForHub(r.Context(), hubID)
	} else {
		areas, err = s.directory.Areas(r.Context())
	}
	if err != nil {
		s.writeBackendError(w, r, "list areas", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"areas": areas, "count": len(areas)})
}

// createAreaRequest is the POST /areas body.
type createAreaRequest struct {
	HubID string `json:"hub_id"`
	Name  string `json:"name"`
}

// handleCreateArea creates an area on a hub.
func (s *Server) handleCreateArea(w http.ResponseWriter, r *http.Request) {
	var req createAreaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	area := location.Area{HubID: req.HubID, Name: strings.TrimSpace(req.Name)}
	if err := location.ValidateArea(&area); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	created, err := s.backend.CreateArea(r.Context(), area.HubID, area.Name)
	if err != nil {
		s.writeBackendError(w, r, "create area", err)
		return
	}
	s.recordActivity(r, audit.ActionCreate, audit.EntityArea, created.ID, map[string]any{"hub_id": created.HubID, "name": created.Name})
	s.directory.InvalidateAreas()
	s.engine.RequestRefresh()
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateArea renames an area.
func (s *Server) handleUpdateArea(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := location.ValidateName(name); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	if err := s.backend.RenameArea(r.Context(), id, name); err != nil {
		s.writeBackendError(w, r, "rename area", err)
		return
	}
	s.recordActivity(r, audit.ActionRename, audit.EntityArea, id, map[string]any{"name": name})
	s.directory.InvalidateAreas()
	s.accepted(w, map[string]any{"area_id": id})
}

// handleDeleteArea deletes an area. Its devices become unassigned.
func (s *Server) handleDeleteArea(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.backend.DeleteArea(r.Context(), id); err != nil {
		s.writeBackendError(w, r, "delete area", err)
		return
	}
	s.recordActivity(r, audit.ActionDelete, audit.EntityArea, id, nil)
	s.directory.InvalidateAreas()
	s.accepted(w, map[string]any{"area_id": id})
}

// handleAreaDevices returns the devices assigned to an area.
func (s *Server) handleAreaDevices(w http.ResponseWriter, r *http.Request) {
	area, err := s.directory.Area(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, location.ErrAreaNotFound) {
			writeNotFound(w, "area not found")
			return
		}
		s.writeBackendError(w, r, "load area", err)
		return
	}

	devices := s.selectors.ForArea(area.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"area":    area,
		"devices": toResponses(devices),
		"stats":   s.selectors.StatsForArea(area.ID),
		"count":   len(devices),
	})
}
