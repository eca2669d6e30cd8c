package models

import (
	"encoding/json"
	"time"
)

type EntityType string

const (
	EntityProject    EntityType = "project"
	EntityTimeEntry  EntityType = "timeEntry"
	EntityInvoice    EntityType = "invoice"
	EntitySettings   EntityType = "settings"
	EntityRecentTask EntityType = "recentTask"
)

type SyncOperation string

const (
	OpCreate SyncOperation = "create"
	OpUpdate SyncOperation = "update"
	OpDelete SyncOperation = "delete"
)

// SyncState is the client-side sync status of a local row.
type SyncState string

const (
	SyncStateSynced   SyncState = "synced"
	SyncStatePending  SyncState = "pending"
	SyncStateConflict SyncState = "conflict"
)

// ChangeQueueItem is a not-yet-transmitted local mutation. At most one item
// exists per (entityType, entityId); a newer mutation replaces the pending one.
type ChangeQueueItem struct {
	ID         int64           `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	CloudID    *string         `json:"cloud_id,omitempty"`
	Operation  SyncOperation   `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
	LastError  *string         `json:"last_error,omitempty"`
}

// IDMapping associates a device-local integer identity with the
// server-issued opaque identity for the same logical record.
type IDMapping struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	LocalID    int64      `json:"local_id"`
	CloudID    string     `json:"cloud_id"`
	UserID     string     `json:"user_id"`
}

type MigrationOption string

const (
	MigrateMerge     MigrationOption = "merge"
	MigrateKeepLocal MigrationOption = "keep-local"
	MigrateKeepCloud MigrationOption = "keep-cloud"
	MigrateCancel    MigrationOption = "cancel"
)

// EntityCounts is the per-type record count reported by both sides of a
// migration decision.
type EntityCounts struct {
	Projects    int `json:"projects"`
	TimeEntries int `json:"timeEntries"`
	Invoices    int `json:"invoices"`
}

func (c EntityCounts) Total() int {
	return c.Projects + c.TimeEntries + c.Invoices
}
