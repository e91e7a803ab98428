// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCircuitStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	cb := s.deps.Breaker(name)
	if cb == nil {
		writeError(w, r, http.StatusNotFound, "unknown circuit breaker")
		return
	}
	writeJSON(w, r, http.StatusOK, cb.Status())
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	cb := s.deps.Breaker(name)
	if cb == nil {
		writeError(w, r, http.StatusNotFound, "unknown circuit breaker")
		return
	}
	cb.Reset()
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "reset",
		"name":   name,
	})
}

func (s *Server) handleLimiterStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Limiter == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rate limiter not configured")
		return
	}
	writeJSON(w, r, http.StatusOK, s.deps.Limiter.Status())
}
