package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/nerrad567/gray-logic-panel/internal/location"
)

type wireHub struct {
	HubID    string `json:"hub_id"`
	Nickname string `json:"nickname"`
}

type wireArea struct {
	AreaID string `json:"area_id"`
	Name   string `json:"name"`
	HubID  string `json:"hub_id"`
}

// ListHubs returns the hubs the user has claimed.
func (c *Client) ListHubs(ctx context.Context) ([]location.Hub, error) {
	var records []wireHub
	if err := c.do(ctx, call{method: http.MethodGet, path: "/hubs"}, &records); err != nil {
		return nil, err
	}
	hubs := make([]location.Hub, 0, len(records))
	for _, r := range records {
		hubs = append(hubs, location.Hub{ID: r.HubID, Name: r.Nickname})
	}
	return hubs, nil
}

// ListAreas returns every area across the user's hubs.
func (c *Client) ListAreas(ctx context.Context) ([]location.Area, error) {
	var records []wireArea
	if err := c.do(ctx, call{method: http.MethodGet, path: "/areas"}, &records); err != nil {
		return nil, err
	}
	areas := make([]location.Area, 0, len(records))
	for _, r := range records {
		areas = append(areas, location.Area{ID: r.AreaID, Name: r.Name, HubID: r.HubID})
	}
	return areas, nil
}

// RenameHub changes a hub's nickname.
func (c *Client) RenameHub(ctx context.Context, hubID, name string) error {
	return c.do(ctx, call{
		method: http.MethodPatch,
		path:   "/hubs/" + url.PathEscape(hubID),
		body:   map[string]string{"nickname": name},
	}, nil)
}

// CreateArea creates an area on a hub and returns it as the backend stored it.
func (c *Client) CreateArea(ctx context.Context, hubID, name string) (location.Area, error) {
	var out wireArea
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/areas",
		body:   map[string]string{"hub_id": hubID, "name": name},
	}, &out)
	if err != nil {
		return location.Area{}, err
	}
	return location.Area{ID: out.AreaID, Name: out.Name, HubID: out.HubID}, nil
}

// RenameArea changes an area's name.
func (c *Client) RenameArea(ctx context.Context, areaID, name string) error {
	return c.do(ctx, call{
		method: http.MethodPatch,
		path:   "/areas/" + url.PathEscape(areaID),
		body:   map[string]string{"name": name},
	}, nil)
}

// DeleteArea removes an area. Its devices become unassigned server-side.
func (c *Client) DeleteArea(ctx context.Context, areaID string) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		path:   "/areas/" + url.PathEscape(areaID),
	}, nil)
}

// ClaimHubRequest registers a physical hub to the current user.
type ClaimHubRequest struct {
	HubID    string `json:"hub_id"`
	Nickname string `json:"nickname,omitempty"`
}

// ClaimHub claims a hub by its printed identifier.
func (c *Client) ClaimHub(ctx context.Context, req ClaimHubRequest) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/hubs/claim", body: req}, nil)
}

// ClaimCameraRequest attaches a camera to one of the user's hubs.
type ClaimCameraRequest struct {
	CameraID string `json:"camera_id"`
	HubID    string `json:"hub_id"`
	Nickname string `json:"nickname,omitempty"`
}

// ClaimCamera claims a camera onto a hub.
func (c *Client) ClaimCamera(ctx context.Context, req ClaimCameraRequest) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/cameras/claim", body: req}, nil)
}
