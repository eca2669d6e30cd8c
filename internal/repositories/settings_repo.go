package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trueloggs/timesync/internal/models"
)

type PostgresSettingsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSettingsRepository(pool *pgxpool.Pool) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{pool: pool}
}

func (r *PostgresSettingsRepository) Get(ctx context.Context, userID uuid.UUID) (*models.CloudSettings, error) {
	query := `SELECT user_id, profile_full_name, profile_email, profile_company, profile_phone,
	              profile_address, profile_bio, target_hours_per_week, default_hourly_rate, work_days,
	              invoice_counter, invoice_prefix, last_invoice_year, theme, sync_version, updated_at
	          FROM settings WHERE user_id = $1`

	var s models.CloudSettings
	var workDays string
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.Profile.FullName,
		&s.Profile.Email,
		&s.Profile.Company,
		&s.Profile.Phone,
		&s.Profile.Address,
		&s.Profile.Bio,
		&s.WorkSettings.TargetHoursPerWeek,
		&s.WorkSettings.DefaultHourlyRate,
		&workDays,
		&s.InvoiceSettings.InvoiceCounter,
		&s.InvoiceSettings.InvoicePrefix,
		&s.InvoiceSettings.LastInvoiceYear,
		&s.Theme,
		&s.SyncVersion,
		&s.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if err := json.Unmarshal([]byte(workDays), &s.WorkSettings.WorkDays); err != nil {
		return nil, fmt.Errorf("failed to decode work days: %w", err)
	}
	return &s, nil
}

// Upsert writes the singleton row, overwriting on conflict. The caller owns
// the version compare; SyncVersion is stored as given.
func (r *PostgresSettingsRepository) Upsert(ctx context.Context, settings *models.CloudSettings) error {
	workDays, err := json.Marshal(settings.WorkSettings.WorkDays)
	if err != nil {
		return fmt.Errorf("failed to encode work days: %w", err)
	}

	query := `INSERT INTO settings (user_id, profile_full_name, profile_email, profile_company, profile_phone,
	              profile_address, profile_bio, target_hours_per_week, default_hourly_rate, work_days,
	              invoice_counter, invoice_prefix, last_invoice_year, theme, sync_version, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	          ON CONFLICT (user_id) DO UPDATE SET
	              profile_full_name = EXCLUDED.profile_full_name,
	              profile_email = EXCLUDED.profile_email,
	              profile_company = EXCLUDED.profile_company,
	              profile_phone = EXCLUDED.profile_phone,
	              profile_address = EXCLUDED.profile_address,
	              profile_bio = EXCLUDED.profile_bio,
	              target_hours_per_week = EXCLUDED.target_hours_per_week,
	              default_hourly_rate = EXCLUDED.default_hourly_rate,
	              work_days = EXCLUDED.work_days,
	              invoice_counter = EXCLUDED.invoice_counter,
	              invoice_prefix = EXCLUDED.invoice_prefix,
	              last_invoice_year = EXCLUDED.last_invoice_year,
	              theme = EXCLUDED.theme,
	              sync_version = EXCLUDED.sync_version,
	              updated_at = EXCLUDED.updated_at`

	_, err = r.pool.Exec(ctx, query,
		settings.UserID,
		settings.Profile.FullName,
		settings.Profile.Email,
		settings.Profile.Company,
		settings.Profile.Phone,
		settings.Profile.Address,
		settings.Profile.Bio,
		settings.WorkSettings.TargetHoursPerWeek,
		settings.WorkSettings.DefaultHourlyRate,
		string(workDays),
		settings.InvoiceSettings.InvoiceCounter,
		settings.InvoiceSettings.InvoicePrefix,
		settings.InvoiceSettings.LastInvoiceYear,
		settings.Theme,
		settings.SyncVersion,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}
