// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ticketd/ticketd/internal/analytics"
)

// parseDate accepts RFC 3339 timestamps and bare dates.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenantID")
	q := r.URL.Query()

	var from, to time.Time
	if raw := q.Get("from_date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid from_date")
			return
		}
		from = t
	}
	if raw := q.Get("to_date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid to_date")
			return
		}
		to = t
	}

	stats, err := s.deps.Stats.ComputeStats(r.Context(), tenant, from, to)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if stats.Elapsed > analytics.SlowThreshold {
		writeError(w, r, http.StatusGatewayTimeout, "performance limit exceeded")
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}
