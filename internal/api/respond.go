// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ticketd/ticketd/internal/log"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Str("event", "api.encode_failed").
			Err(err).
			Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorBody{Error: msg})
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Error().
		Str("event", "api.internal_error").
		Err(err).
		Msg("request failed")
	writeError(w, r, http.StatusInternalServerError, "internal server error")
}

// requireTenant reads the tenant_id query parameter, writing a 400 when it is
// absent.
func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := r.URL.Query().Get("tenant_id")
	if tenant == "" {
		writeError(w, r, http.StatusBadRequest, "tenant_id is required")
		return "", false
	}
	return tenant, true
}
