package models

import (
	"time"

	"github.com/google/uuid"
)

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

// Project is the client-side (local store) row.
type Project struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	ClientName  string        `json:"clientName,omitempty"`
	HourlyRate  float64       `json:"hourlyRate"`
	Color       string        `json:"color"`
	Status      ProjectStatus `json:"status"`
	CloudID     *string       `json:"cloudId,omitempty"`
	SyncStatus  SyncState     `json:"syncStatus"`
	SyncVersion int64         `json:"syncVersion"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// CloudProject is the authoritative-store row and the wire representation
// exchanged by pull, push responses and migrate.
type CloudProject struct {
	CloudID     string        `json:"cloudId"`
	UserID      uuid.UUID     `json:"userId"`
	LocalID     *int64        `json:"localId,omitempty"`
	Name        string        `json:"name"`
	ClientName  string        `json:"clientName,omitempty"`
	HourlyRate  float64       `json:"hourlyRate"`
	Color       string        `json:"color"`
	Status      ProjectStatus `json:"status"`
	SyncVersion int64         `json:"syncVersion"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	DeletedAt   *time.Time    `json:"deletedAt,omitempty"`
}

// ProjectPayload is the field snapshot carried by a queued project mutation.
type ProjectPayload struct {
	Name       string        `json:"name"`
	ClientName string        `json:"clientName,omitempty"`
	HourlyRate float64       `json:"hourlyRate"`
	Color      string        `json:"color"`
	Status     ProjectStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
}
