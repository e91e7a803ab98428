// SPDX-License-Identifier: MIT

package store

import "time"

// Ticket is one externally sourced support ticket. (tenant_id, external_id)
// is globally unique; a ticket with DeletedAt set is excluded from all
// normal reads and is never hard-deleted.
type Ticket struct {
	ExternalID     string     `bson:"external_id" json:"external_id"`
	TenantID       string     `bson:"tenant_id" json:"tenant_id"`
	CustomerID     string     `bson:"customer_id" json:"customer_id"`
	Source         string     `bson:"source" json:"source"`
	Subject        string     `bson:"subject" json:"subject"`
	Message        string     `bson:"message" json:"message"`
	Status         string     `bson:"status" json:"status"`
	Urgency        string     `bson:"urgency" json:"urgency"`
	Sentiment      string     `bson:"sentiment" json:"sentiment"`
	RequiresAction bool       `bson:"requires_action" json:"requires_action"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

// Job statuses. Terminal states are immutable.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobCancelled = "cancelled"
	JobFailed    = "failed"
)

// IngestionJob is one ingestion run. At most one job per tenant is in
// running state at any instant; the distributed lock enforces it.
type IngestionJob struct {
	JobID          string     `bson:"job_id" json:"job_id"`
	TenantID       string     `bson:"tenant_id" json:"tenant_id"`
	Status         string     `bson:"status" json:"status"`
	StartedAt      time.Time  `bson:"started_at" json:"started_at"`
	EndedAt        *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	TotalPages     int        `bson:"total_pages" json:"total_pages"`
	ProcessedPages int        `bson:"processed_pages" json:"processed_pages"`
	Progress       int        `bson:"progress" json:"progress"`
}

// Ingestion log statuses.
const (
	LogSuccess   = "success"
	LogPartial   = "partial"
	LogFailed    = "failed"
	LogCancelled = "cancelled"
)

// IngestionLog is the append-only audit row written at the end of every run
// that acquired the lock, including failed and cancelled ones.
type IngestionLog struct {
	TenantID    string    `bson:"tenant_id" json:"tenant_id"`
	JobID       string    `bson:"job_id" json:"job_id"`
	Status      string    `bson:"status" json:"status"`
	StartedAt   time.Time `bson:"started_at" json:"started_at"`
	EndedAt     time.Time `bson:"ended_at" json:"ended_at"`
	NewIngested int       `bson:"new_ingested" json:"new_ingested"`
	Updated     int       `bson:"updated" json:"updated"`
	Errors      int       `bson:"errors" json:"errors"`
	Error       string    `bson:"error,omitempty" json:"error,omitempty"`
}

// Lock is a TTL-bounded mutual-exclusion document, unique on ResourceID.
// An entry with ExpiresAt in the past is logically free.
type Lock struct {
	ResourceID string    `bson:"resource_id" json:"resource_id"`
	OwnerID    string    `bson:"owner_id" json:"owner_id"`
	AcquiredAt time.Time `bson:"acquired_at" json:"acquired_at"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"`
}

// History actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// FieldChange records one field-level change.
type FieldChange struct {
	Old any `bson:"old" json:"old"`
	New any `bson:"new" json:"new"`
}

// TicketHistory is an append-only change-log row keyed by the ticket's
// external ID within a tenant.
type TicketHistory struct {
	TicketID   string                 `bson:"ticket_id" json:"ticket_id"`
	TenantID   string                 `bson:"tenant_id" json:"tenant_id"`
	Action     string                 `bson:"action" json:"action"`
	Changes    map[string]FieldChange `bson:"changes,omitempty" json:"changes,omitempty"`
	RecordedAt time.Time              `bson:"recorded_at" json:"recorded_at"`
}
