// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ticketd/ticketd/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

type ticketListResponse struct {
	Tickets  []store.Ticket `json:"tickets"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Count    int            `json:"count"`
}

func (s *Server) handleTicketList(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page := intQuery(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := intQuery(r, "page_size", defaultPageSize)
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	tickets, err := s.deps.Tickets.List(r.Context(), store.ListFilter{
		TenantID: tenant,
		Status:   q.Get("status"),
		Urgency:  q.Get("urgency"),
		Source:   q.Get("source"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []store.Ticket{}
	}
	writeJSON(w, r, http.StatusOK, ticketListResponse{
		Tickets:  tickets,
		Page:     page,
		PageSize: pageSize,
		Count:    len(tickets),
	})
}

func (s *Server) handleTicketUrgent(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	tickets, err := s.deps.Tickets.ListUrgent(r.Context(), tenant)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []store.Ticket{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

func (s *Server) handleTicketGet(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	externalID := chi.URLParam(r, "externalID")

	ticket, err := s.deps.Tickets.Get(r.Context(), tenant, externalID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ticket not found")
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ticket)
}

func (s *Server) handleTicketHistory(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	externalID := chi.URLParam(r, "externalID")
	limit := intQuery(r, "limit", 50)

	history, err := s.deps.History.List(r.Context(), tenant, externalID, limit)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if history == nil {
		history = []store.TicketHistory{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"ticket_id": externalID,
		"history":   history,
	})
}
