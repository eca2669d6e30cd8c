package models

import (
	"time"

	"github.com/google/uuid"
)

// TimeEntry is the client-side row. Date is a calendar day ("2006-01-02");
// Duration is minutes. ProjectCloudID is denormalized so the cloud store can
// enforce referential integrity without knowing local identities.
type TimeEntry struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"projectId"`
	ProjectCloudID *string   `json:"projectCloudId,omitempty"`
	Date           string    `json:"date"`
	Duration       int       `json:"duration"`
	Notes          string    `json:"notes,omitempty"`
	CloudID        *string   `json:"cloudId,omitempty"`
	SyncStatus     SyncState `json:"syncStatus"`
	SyncVersion    int64     `json:"syncVersion"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type CloudTimeEntry struct {
	CloudID        string     `json:"cloudId"`
	UserID         uuid.UUID  `json:"userId"`
	LocalID        *int64     `json:"localId,omitempty"`
	ProjectCloudID string     `json:"projectCloudId"`
	Date           string     `json:"date"`
	Duration       int        `json:"duration"`
	Notes          string     `json:"notes,omitempty"`
	SyncVersion    int64      `json:"syncVersion"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

type TimeEntryPayload struct {
	ProjectCloudID string    `json:"projectCloudId"`
	Date           string    `json:"date"`
	Duration       int       `json:"duration"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
