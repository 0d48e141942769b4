package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/feeder-core/internal/audit"
)

// handleListLogs queries the device log, newest first.
//
// Query parameters: level, q (message substring), sinceMinutes, limit
// (default 200, max 1000).
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		DeviceID: deviceFromContext(r.Context()).ID,
		Contains: q.Get("q"),
	}

	if v := q.Get("level"); v != "" {
		level, err := audit.ParseLevel(v)
		if err != nil {
			writeBadRequest(w, "invalid level")
			return
		}
		filter.Level = level
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"sinceMinutes", &filter.SinceMinutes},
		{"limit", &filter.Limit},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, p.name+" must be a non-negative integer")
			return
		}
		*p.dst = n
	}

	result, err := s.audit.Query(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
