package api

import "net/http"

// handleSyncStatus returns the engine's connection state.
func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleSyncRefresh asks for an out-of-band fetch. The engine debounces and
// drops requests while a fetch is running, so this is always accepted.
func (s *Server) handleSyncRefresh(w http.ResponseWriter, _ *http.Request) {
	s.engine.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}
