// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ticketd/ticketd/internal/ingest"
	"github.com/ticketd/ticketd/internal/lock"
	"github.com/ticketd/ticketd/internal/store"
)

// handleIngestRun starts a synchronous ingestion run for the tenant. The
// response carries the final run summary; a concurrent run yields 409.
func (s *Server) handleIngestRun(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	sum, err := s.deps.Ingest.Run(r.Context(), tenant)
	if errors.Is(err, ingest.ErrConflict) {
		writeError(w, r, http.StatusConflict, "ingestion already running for tenant")
		return
	}
	if err != nil {
		if sum != nil {
			// Run failed mid-flight; the summary still reports what happened.
			writeJSON(w, r, http.StatusInternalServerError, sum)
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

type ingestStatusResponse struct {
	Running  bool                `json:"running"`
	TenantID string              `json:"tenant_id"`
	Job      *store.IngestionJob `json:"job,omitempty"`
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	job, err := s.deps.Ingest.RunningJob(r.Context(), tenant)
	if errors.Is(err, store.ErrNotFound) {
		// Idle tenant: the common case, not an error.
		writeJSON(w, r, http.StatusOK, ingestStatusResponse{TenantID: tenant})
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ingestStatusResponse{
		Running:  job != nil,
		TenantID: tenant,
		Job:      job,
	})
}

func (s *Server) handleIngestProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.deps.Ingest.Progress(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

func (s *Server) handleIngestCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	err := s.deps.Ingest.RequestCancel(r.Context(), jobID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "job not found")
	case errors.Is(err, ingest.ErrNotRunning):
		writeError(w, r, http.StatusConflict, "job is not running")
	case err != nil:
		writeInternalError(w, r, err)
	default:
		writeJSON(w, r, http.StatusOK, map[string]string{
			"status": "cancelled",
			"job_id": jobID,
		})
	}
}

func (s *Server) handleIngestLogs(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	limit := intQuery(r, "limit", 50)

	logs, err := s.deps.Logs.ListByTenant(r.Context(), tenant, limit)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if logs == nil {
		logs = []store.IngestionLog{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"tenant_id": tenant,
		"logs":      logs,
	})
}

type lockStatusResponse struct {
	TenantID string       `json:"tenant_id"`
	Locked   bool         `json:"locked"`
	Lock     *lock.Status `json:"lock,omitempty"`
}

func (s *Server) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenantID")

	st, err := s.deps.Locks.Inspect(r.Context(), "ingest:"+tenant)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if st == nil {
		writeJSON(w, r, http.StatusOK, lockStatusResponse{TenantID: tenant})
		return
	}
	writeJSON(w, r, http.StatusOK, lockStatusResponse{
		TenantID: tenant,
		Locked:   !st.IsExpired,
		Lock:     st,
	})
}
