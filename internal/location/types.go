package location

// Hub is a gateway claimed by the current user. Every device belongs to exactly one hub.
type Hub struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Area is a user-defined grouping of devices on one hub.
type Area struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	HubID string `json:"hub_id"`
}
