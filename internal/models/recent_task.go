package models

import (
	"time"

	"github.com/google/uuid"
)

// RecentTask remembers task descriptions per project for quick reuse.
// It rides along with pull and migrate but is never conflict-tracked.
type RecentTask struct {
	ID              int64     `json:"id"`
	ProjectID       int64     `json:"projectId"`
	TaskDescription string    `json:"taskDescription"`
	LastUsedAt      time.Time `json:"lastUsedAt"`
	UsageCount      int       `json:"usageCount"`
}

type CloudRecentTask struct {
	CloudID         string     `json:"cloudId"`
	UserID          uuid.UUID  `json:"userId"`
	LocalID         *int64     `json:"localId,omitempty"`
	ProjectCloudID  string     `json:"projectCloudId"`
	TaskDescription string     `json:"taskDescription"`
	LastUsedAt      time.Time  `json:"lastUsedAt"`
	UsageCount      int        `json:"usageCount"`
	SyncVersion     int64      `json:"syncVersion"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
}
