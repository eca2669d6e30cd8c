package models

import (
	"time"

	"github.com/google/uuid"
)

type ThemePreference string

const (
	ThemeLight  ThemePreference = "light"
	ThemeDark   ThemePreference = "dark"
	ThemeSystem ThemePreference = "system"
)

type UserProfile struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Company  string `json:"company"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Bio      string `json:"bio"`
}

type WorkSettings struct {
	TargetHoursPerWeek int     `json:"targetHoursPerWeek"`
	DefaultHourlyRate  float64 `json:"defaultHourlyRate"`
	WorkDays           [7]bool `json:"workDays"`
}

type InvoiceSettings struct {
	InvoiceCounter  int    `json:"invoiceCounter"`
	InvoicePrefix   string `json:"invoicePrefix"`
	LastInvoiceYear int    `json:"lastInvoiceYear"`
}

// Settings is the client-side singleton row.
type Settings struct {
	Profile         UserProfile     `json:"profile"`
	WorkSettings    WorkSettings    `json:"workSettings"`
	InvoiceSettings InvoiceSettings `json:"invoiceSettings"`
	Theme           ThemePreference `json:"theme"`
	SyncStatus      SyncState       `json:"syncStatus"`
	SyncVersion     int64           `json:"syncVersion"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// CloudSettings is keyed by user; there is exactly one row per user.
type CloudSettings struct {
	UserID          uuid.UUID       `json:"userId"`
	Profile         UserProfile     `json:"profile"`
	WorkSettings    WorkSettings    `json:"workSettings"`
	InvoiceSettings InvoiceSettings `json:"invoiceSettings"`
	Theme           ThemePreference `json:"theme"`
	SyncVersion     int64           `json:"syncVersion"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type SettingsPayload struct {
	Profile         UserProfile     `json:"profile"`
	WorkSettings    WorkSettings    `json:"workSettings"`
	InvoiceSettings InvoiceSettings `json:"invoiceSettings"`
	Theme           ThemePreference `json:"theme"`
}

func DefaultSettings() *Settings {
	return &Settings{
		WorkSettings: WorkSettings{
			TargetHoursPerWeek: 40,
			DefaultHourlyRate:  50,
			WorkDays:           [7]bool{false, true, true, true, true, true, false},
		},
		InvoiceSettings: InvoiceSettings{
			InvoicePrefix:   "INV",
			LastInvoiceYear: time.Now().Year(),
		},
		Theme:       ThemeSystem,
		SyncStatus:  SyncStatePending,
		SyncVersion: 1,
	}
}
