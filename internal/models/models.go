package models

import (
	"encoding/json"
	"time"
)

// SyncStatus tracks how a locally stored entity relates to the server.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"  // confirmed by the server
	StatusPending SyncStatus = "pending" // local change not yet confirmed
	StatusFailed  SyncStatus = "failed"  // retries exhausted, needs attention
)

// EntityType identifies which kind of entity a change or snapshot refers to.
type EntityType string

const (
	EntityBase   EntityType = "base"
	EntityTable  EntityType = "table"
	EntityRecord EntityType = "record"
)

// ChangeType identifies the kind of mutation queued for sync.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Base is a workspace containing tables.
type Base struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SyncStatus  SyncStatus `json:"sync_status"`
	Version     int64      `json:"version"`
}

// Table belongs to a base and holds records.
type Table struct {
	ID          string     `json:"id"`
	BaseID      string     `json:"base_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SyncStatus  SyncStatus `json:"sync_status"`
	Version     int64      `json:"version"`
}

// Record is a row in a table. Fields is a free-form document; the store
// persists it verbatim and does no semantic merging.
type Record struct {
	ID         string         `json:"id"`
	TableID    string         `json:"table_id"`
	Fields     map[string]any `json:"fields"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	SyncStatus SyncStatus     `json:"sync_status"`
	Version    int64          `json:"version"`
}

// PendingChange is one queued local mutation awaiting confirmation by the
// server. Exactly one exists per mutation; removal on confirmed sync is
// atomic with marking the entity synced.
type PendingChange struct {
	ID             int64           `json:"id"`
	EntityType     EntityType      `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	ChangeType     ChangeType      `json:"change_type"`
	Payload        json.RawMessage `json:"payload"`
	BaseVersion    int64           `json:"base_version"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
	RetryCount     int             `json:"retry_count"`
	LastError      string          `json:"last_error,omitempty"`
}

// SyncStats summarises one scheduler cycle.
type SyncStats struct {
	TotalPending int `json:"total_pending"`
	Synced       int `json:"synced"`
	Failed       int `json:"failed"`
	Conflicts    int `json:"conflicts"`
}

// SyncStatusInfo is the UI-facing view of the scheduler's state.
type SyncStatusInfo struct {
	IsOnline       bool       `json:"is_online"`
	SyncInProgress bool       `json:"sync_in_progress"`
	PendingChanges int        `json:"pending_changes"`
	LastSyncTime   *time.Time `json:"last_sync_time,omitempty"`
}

// Conflict is the transient verdict surfaced when a queued mutation cannot
// be applied safely. The pending change stays queued until resolved.
type Conflict struct {
	EntityType     EntityType      `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	ChangeID       int64           `json:"change_id"`
	LocalSnapshot  json.RawMessage `json:"local_snapshot"`
	RemoteSnapshot json.RawMessage `json:"remote_snapshot"`
	DetectedAt     time.Time       `json:"detected_at"`
}
