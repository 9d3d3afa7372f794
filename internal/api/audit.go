package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-panel/internal/audit"
)

// recordActivity logs an accepted mutation to the activity log, if one is configured.
func (s *Server) recordActivity(r *http.Request, action, entityType, entityID string, details map[string]any) {
	audit.Log(r.Context(), s.audit, s.logger, audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Source:     audit.SourceAPI,
		Details:    details,
	})
}

// handleListActivity returns the local activity log, newest first.
//
// Query parameters:
//   - action, entity_type, entity_id, source: exact-match filters
//   - since: RFC 3339 lower bound
//   - limit (default 50, max 200), offset
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "activity log is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Source:     q.Get("source"),
	}

	var err error
	if filter.Since, err = parseTime(q.Get("since")); err != nil {
		writeBadRequest(w, "since must be an RFC 3339 timestamp")
		return
	}
	if filter.Limit, err = parseNonNegative(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = parseNonNegative(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing activity failed", "error", err)
		writeInternalError(w, "failed to load activity log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseNonNegative(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
