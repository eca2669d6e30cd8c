package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trueloggs/timesync/internal/models"
)

// GetSettings returns the singleton row, or fresh defaults when the app
// has never saved settings.
func (o ops) GetSettings(ctx context.Context) (*models.Settings, error) {
	var s models.Settings
	var workDays, updatedAt string
	err := o.db.QueryRowContext(ctx,
		`SELECT full_name, email, company, phone, address, bio,
			target_hours_per_week, default_hourly_rate, work_days,
			invoice_counter, invoice_prefix, last_invoice_year, theme,
			sync_status, sync_version, updated_at
		 FROM settings WHERE id = 1`).Scan(
		&s.Profile.FullName, &s.Profile.Email, &s.Profile.Company,
		&s.Profile.Phone, &s.Profile.Address, &s.Profile.Bio,
		&s.WorkSettings.TargetHoursPerWeek, &s.WorkSettings.DefaultHourlyRate, &workDays,
		&s.InvoiceSettings.InvoiceCounter, &s.InvoiceSettings.InvoicePrefix,
		&s.InvoiceSettings.LastInvoiceYear, &s.Theme,
		&s.SyncStatus, &s.SyncVersion, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(workDays), &s.WorkSettings.WorkDays); err != nil {
		return nil, fmt.Errorf("decode work days: %w", err)
	}
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func (o ops) SaveSettings(ctx context.Context, s *models.Settings) error {
	workDays, err := json.Marshal(s.WorkSettings.WorkDays)
	if err != nil {
		return fmt.Errorf("encode work days: %w", err)
	}
	_, err = o.db.ExecContext(ctx,
		`INSERT INTO settings (id, full_name, email, company, phone, address, bio,
			target_hours_per_week, default_hourly_rate, work_days,
			invoice_counter, invoice_prefix, last_invoice_year, theme,
			sync_status, sync_version, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			company = excluded.company,
			phone = excluded.phone,
			address = excluded.address,
			bio = excluded.bio,
			target_hours_per_week = excluded.target_hours_per_week,
			default_hourly_rate = excluded.default_hourly_rate,
			work_days = excluded.work_days,
			invoice_counter = excluded.invoice_counter,
			invoice_prefix = excluded.invoice_prefix,
			last_invoice_year = excluded.last_invoice_year,
			theme = excluded.theme,
			sync_status = excluded.sync_status,
			sync_version = excluded.sync_version,
			updated_at = excluded.updated_at`,
		s.Profile.FullName, s.Profile.Email, s.Profile.Company,
		s.Profile.Phone, s.Profile.Address, s.Profile.Bio,
		s.WorkSettings.TargetHoursPerWeek, s.WorkSettings.DefaultHourlyRate, string(workDays),
		s.InvoiceSettings.InvoiceCounter, s.InvoiceSettings.InvoicePrefix,
		s.InvoiceSettings.LastInvoiceYear, s.Theme,
		s.SyncStatus, s.SyncVersion, fmtTime(s.UpdatedAt))
	return err
}
