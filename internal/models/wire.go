package models

import "encoding/json"

// Wire types for the sync protocol (JSON over HTTP, one authenticated user
// per call).

type PushItemStatus string

const (
	PushSuccess  PushItemStatus = "success"
	PushConflict PushItemStatus = "conflict"
	PushError    PushItemStatus = "error"
)

// PushItem is one queued mutation on the wire. SyncVersion is the version
// the client believes it is overwriting.
type PushItem struct {
	Operation   SyncOperation   `json:"operation"`
	LocalID     int64           `json:"localId"`
	CloudID     *string         `json:"cloudId,omitempty"`
	Data        json.RawMessage `json:"data"`
	SyncVersion int64           `json:"syncVersion"`
}

type PushRequest struct {
	Projects    []PushItem `json:"projects,omitempty"`
	TimeEntries []PushItem `json:"timeEntries,omitempty"`
	Invoices    []PushItem `json:"invoices,omitempty"`
	Settings    []PushItem `json:"settings,omitempty"`
}

// PushResult is the per-item outcome. On conflict, ServerData carries the
// server's full current record so the client can surface it for resolution.
type PushResult struct {
	LocalID     int64           `json:"localId"`
	CloudID     string          `json:"cloudId"`
	SyncVersion int64           `json:"syncVersion"`
	Status      PushItemStatus  `json:"status"`
	Error       string          `json:"error,omitempty"`
	ServerData  json.RawMessage `json:"serverData,omitempty"`
}

type PushResponse struct {
	Projects    []PushResult `json:"projects,omitempty"`
	TimeEntries []PushResult `json:"timeEntries,omitempty"`
	Invoices    []PushResult `json:"invoices,omitempty"`
	Settings    []PushResult `json:"settings,omitempty"`
}

type PullData struct {
	Projects    []CloudProject    `json:"projects,omitempty"`
	TimeEntries []CloudTimeEntry  `json:"timeEntries,omitempty"`
	Invoices    []CloudInvoice    `json:"invoices,omitempty"`
	Settings    []CloudSettings   `json:"settings,omitempty"`
	RecentTasks []CloudRecentTask `json:"recentTasks,omitempty"`
}

// PullResponse returns every row of the requested types changed after the
// cursor, tombstones included. SyncedAt is the server completion timestamp
// the client persists as its next cursor.
type PullResponse struct {
	Data     PullData `json:"data"`
	SyncedAt string   `json:"syncedAt"`
}

type StatusResponse struct {
	HasExistingData bool         `json:"hasExistingData"`
	Counts          EntityCounts `json:"counts"`
}

// MigrateRequest is the full local snapshot, exported by a raw table scan
// that bypasses the change queue.
type MigrateRequest struct {
	Projects    []Project        `json:"projects"`
	TimeEntries []TimeEntry      `json:"timeEntries"`
	Invoices    []Invoice        `json:"invoices"`
	Settings    *SettingsPayload `json:"settings,omitempty"`
	RecentTasks []RecentTask     `json:"recentTasks"`
}

// MigrateMappings maps local ids (JSON object keys, as decimal strings) to
// assigned cloud ids, per entity type.
type MigrateMappings struct {
	Projects    map[int64]string `json:"projects"`
	TimeEntries map[int64]string `json:"timeEntries"`
	Invoices    map[int64]string `json:"invoices"`
}

// MigrateResponse reports a partially-succeeding bulk migration: rows that
// failed validation are listed in Errors and skipped, not rolled back.
type MigrateResponse struct {
	Success  bool            `json:"success"`
	Mappings MigrateMappings `json:"mappings"`
	Errors   []string        `json:"errors"`
	Migrated EntityCounts    `json:"migrated"`
}
