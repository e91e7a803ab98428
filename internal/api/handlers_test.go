// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketd/ticketd/internal/analytics"
	"github.com/ticketd/ticketd/internal/ingest"
	"github.com/ticketd/ticketd/internal/lock"
	"github.com/ticketd/ticketd/internal/ratelimit"
	"github.com/ticketd/ticketd/internal/resilience"
	"github.com/ticketd/ticketd/internal/store"
)

type fakeIngestor struct {
	summary    *ingest.Summary
	runErr     error
	cancelErr  error
	job        *store.IngestionJob
	jobErr     error
	running    *store.IngestionJob
	runningErr error

	ranTenant   string
	cancelledID string
}

func (f *fakeIngestor) Run(_ context.Context, tenantID string) (*ingest.Summary, error) {
	f.ranTenant = tenantID
	return f.summary, f.runErr
}

func (f *fakeIngestor) RequestCancel(_ context.Context, jobID string) error {
	f.cancelledID = jobID
	return f.cancelErr
}

func (f *fakeIngestor) Progress(context.Context, string) (*store.IngestionJob, error) {
	return f.job, f.jobErr
}

// RunningJob mirrors the orchestrator contract: an idle tenant is
// store.ErrNotFound, not a nil job.
func (f *fakeIngestor) RunningJob(context.Context, string) (*store.IngestionJob, error) {
	if f.runningErr != nil {
		return nil, f.runningErr
	}
	if f.running == nil {
		return nil, store.ErrNotFound
	}
	return f.running, nil
}

type fakeLocks struct {
	status *lock.Status
}

func (f *fakeLocks) Inspect(context.Context, string) (*lock.Status, error) {
	return f.status, nil
}

type fakeTickets struct {
	filter  store.ListFilter
	tickets []store.Ticket
	urgent  []store.Ticket
	ticket  *store.Ticket
	getErr  error
}

func (f *fakeTickets) List(_ context.Context, filter store.ListFilter) ([]store.Ticket, error) {
	f.filter = filter
	return f.tickets, nil
}

func (f *fakeTickets) ListUrgent(context.Context, string) ([]store.Ticket, error) {
	return f.urgent, nil
}

func (f *fakeTickets) Get(context.Context, string, string) (*store.Ticket, error) {
	return f.ticket, f.getErr
}

type fakeHistory struct {
	entries []store.TicketHistory
	limit   int
}

func (f *fakeHistory) List(_ context.Context, _, _ string, limit int) ([]store.TicketHistory, error) {
	f.limit = limit
	return f.entries, nil
}

type fakeLogs struct {
	entries []store.IngestionLog
}

func (f *fakeLogs) ListByTenant(context.Context, string, int) ([]store.IngestionLog, error) {
	return f.entries, nil
}

type fakeStats struct {
	stats *analytics.Stats
	err   error
	from  time.Time
	to    time.Time
}

func (f *fakeStats) ComputeStats(_ context.Context, _ string, from, to time.Time) (*analytics.Stats, error) {
	f.from, f.to = from, to
	return f.stats, f.err
}

type fakeLimiter struct {
	status ratelimit.Status
}

func (f *fakeLimiter) Status() ratelimit.Status { return f.status }

type testServer struct {
	ingest  *fakeIngestor
	locks   *fakeLocks
	tickets *fakeTickets
	history *fakeHistory
	logs    *fakeLogs
	stats   *fakeStats
	breaker *resilience.CircuitBreaker
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		ingest:  &fakeIngestor{},
		locks:   &fakeLocks{},
		tickets: &fakeTickets{},
		history: &fakeHistory{},
		logs:    &fakeLogs{},
		stats:   &fakeStats{stats: &analytics.Stats{ByStatus: map[string]int{}}},
		breaker: resilience.New("notify"),
	}
	srv := NewServer(Deps{
		Ingest:  ts.ingest,
		Locks:   ts.locks,
		Tickets: ts.tickets,
		History: ts.history,
		Logs:    ts.logs,
		Stats:   ts.stats,
		Limiter: &fakeLimiter{status: ratelimit.Status{Limit: 60, WindowSeconds: 60, Remaining: 60}},
		Breaker: func(name string) *resilience.CircuitBreaker {
			if name == "notify" {
				return ts.breaker
			}
			return nil
		},
	})
	ts.handler = srv.Router()
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestIngestRunReturnsSummary(t *testing.T) {
	ts := newTestServer(t)
	ts.ingest.summary = &ingest.Summary{
		JobID:       "job-1",
		Status:      store.JobCompleted,
		NewIngested: 5,
		Updated:     2,
	}

	rec := ts.do(t, http.MethodPost, "/ingest/run?tenant_id=acme")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", ts.ingest.ranTenant)
	body := decodeBody(t, rec)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(5), body["new_ingested"])
}

func TestIngestRunRequiresTenant(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/ingest/run")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tenant_id is required", decodeBody(t, rec)["error"])
}

func TestIngestRunConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.ingest.runErr = ingest.ErrConflict

	rec := ts.do(t, http.MethodPost, "/ingest/run?tenant_id=acme")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIngestRunFailureCarriesSummary(t *testing.T) {
	ts := newTestServer(t)
	ts.ingest.summary = &ingest.Summary{JobID: "job-1", Status: store.JobFailed, Errors: 3}
	ts.ingest.runErr = errors.New("fetch page 2: boom")

	rec := ts.do(t, http.MethodPost, "/ingest/run?tenant_id=acme")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, float64(3), body["errors"])
}

func TestIngestStatusIdle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/ingest/status?tenant_id=acme")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["running"])
	assert.Equal(t, "acme", body["tenant_id"])
	assert.NotContains(t, body, "job")
}

func TestIngestStatusRunning(t *testing.T) {
	ts := newTestServer(t)
	ts.ingest.running = &store.IngestionJob{JobID: "job-1", Status: store.JobRunning, Progress: 40}

	rec := ts.do(t, http.MethodGet, "/ingest/status?tenant_id=acme")

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["running"])
	job := body["job"].(map[string]any)
	assert.Equal(t, "job-1", job["job_id"])
	assert.Equal(t, float64(40), job["progress"])
}

func TestIngestStatusStoreError(t *testing.T) {
	ts := newTestServer(t)
	ts.ingest.runningErr = errors.New("cursor timeout")

	rec := ts.do(t, http.MethodGet, "/ingest/status?tenant_id=acme")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIngestProgressNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.ingest.jobErr = store.ErrNotFound

	rec := ts.do(t, http.MethodGet, "/ingest/progress/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestCancel(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodDelete, "/ingest/job-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-1", ts.ingest.cancelledID)
	body := decodeBody(t, rec)
	assert.Equal(t, "cancelled", body["status"])
}

func TestIngestCancelNotRunning(t *testing.T) {
	ts := newTestServer(t)
	ts.ingest.cancelErr = ingest.ErrNotRunning

	rec := ts.do(t, http.MethodDelete, "/ingest/job-1")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIngestCancelUnknownJob(t *testing.T) {
	ts := newTestServer(t)
	ts.ingest.cancelErr = store.ErrNotFound

	rec := ts.do(t, http.MethodDelete, "/ingest/job-1")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLockStatusAbsent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/ingest/lock/acme")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["locked"])
	assert.Equal(t, "acme", body["tenant_id"])
}

func TestLockStatusHeld(t *testing.T) {
	ts := newTestServer(t)
	ts.locks.status = &lock.Status{
		ResourceID: "ingest:acme",
		OwnerID:    "owner-1",
		ExpiresAt:  time.Now().Add(30 * time.Second),
	}

	rec := ts.do(t, http.MethodGet, "/ingest/lock/acme")

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["locked"])
	detail := body["lock"].(map[string]any)
	assert.Equal(t, "owner-1", detail["owner_id"])
}

func TestLockStatusExpired(t *testing.T) {
	ts := newTestServer(t)
	ts.locks.status = &lock.Status{ResourceID: "ingest:acme", IsExpired: true}

	rec := ts.do(t, http.MethodGet, "/ingest/lock/acme")

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["locked"])
}

func TestIngestLogs(t *testing.T) {
	ts := newTestServer(t)
	ts.logs.entries = []store.IngestionLog{
		{JobID: "job-1", Status: store.LogSuccess, NewIngested: 4},
	}

	rec := ts.do(t, http.MethodGet, "/ingest/logs?tenant_id=acme")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "acme", body["tenant_id"])
	logs := body["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, "success", logs[0].(map[string]any)["status"])
}

func TestTicketListAppliesFilters(t *testing.T) {
	ts := newTestServer(t)
	ts.tickets.tickets = []store.Ticket{{ExternalID: "t1"}}

	rec := ts.do(t, http.MethodGet, "/tickets/?tenant_id=acme&status=open&urgency=high&source=email&page=3&page_size=10")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.ListFilter{
		TenantID: "acme",
		Status:   "open",
		Urgency:  "high",
		Source:   "email",
		Page:     3,
		PageSize: 10,
	}, ts.tickets.filter)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(3), body["page"])
}

func TestTicketListDefaultsPaging(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/tickets/?tenant_id=acme&page=0&page_size=9999")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.tickets.filter.Page)
	assert.Equal(t, defaultPageSize, ts.tickets.filter.PageSize)
	assert.Equal(t, []any{}, decodeBody(t, rec)["tickets"])
}

func TestTicketGetNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.tickets.getErr = store.ErrNotFound

	rec := ts.do(t, http.MethodGet, "/tickets/t-404?tenant_id=acme")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketGet(t *testing.T) {
	ts := newTestServer(t)
	ts.tickets.ticket = &store.Ticket{ExternalID: "t1", Subject: "refund"}

	rec := ts.do(t, http.MethodGet, "/tickets/t1?tenant_id=acme")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "refund", decodeBody(t, rec)["subject"])
}

func TestTicketHistoryShape(t *testing.T) {
	ts := newTestServer(t)
	ts.history.entries = []store.TicketHistory{{TicketID: "t1", Action: store.ActionUpdated}}

	rec := ts.do(t, http.MethodGet, "/tickets/t1/history?tenant_id=acme&limit=5")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, ts.history.limit)
	body := decodeBody(t, rec)
	assert.Equal(t, "t1", body["ticket_id"])
	assert.Len(t, body["history"], 1)
}

func TestStatsParsesWindow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/tenants/acme/stats?from_date=2026-08-01&to_date=2026-08-10T12:00:00Z")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), ts.stats.from)
	assert.Equal(t, time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC), ts.stats.to)
}

func TestStatsRejectsBadDate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/tenants/acme/stats?from_date=yesterday")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsOverBudgetReturns504(t *testing.T) {
	ts := newTestServer(t)
	ts.stats.stats = &analytics.Stats{Elapsed: analytics.SlowThreshold + time.Millisecond}

	rec := ts.do(t, http.MethodGet, "/tenants/acme/stats")

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "performance limit exceeded", decodeBody(t, rec)["error"])
}

func TestCircuitStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/circuit/notify/status")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "notify", body["name"])
	assert.Equal(t, "closed", body["state"])
}

func TestCircuitStatusUnknown(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/circuit/nope/status")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCircuitReset(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 10; i++ {
		ts.breaker.RecordFailure()
	}
	require.Equal(t, resilience.StateOpen, ts.breaker.State())

	rec := ts.do(t, http.MethodPost, "/circuit/notify/reset")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resilience.StateClosed, ts.breaker.State())
}

func TestRateLimiterStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/rate-limiter/status")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(60), body["limit"])
	assert.Equal(t, float64(60), body["remaining"])
}

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/rate-limiter/status", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
}

func TestRequestIDAssigned(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/rate-limiter/status")

	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}
