package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trueloggs/timesync/internal/models"
)

type PostgresTimeEntryRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTimeEntryRepository(pool *pgxpool.Pool) *PostgresTimeEntryRepository {
	return &PostgresTimeEntryRepository{pool: pool}
}

const timeEntryColumns = `cloud_id, user_id, local_id, project_cloud_id, date, duration, notes,
	sync_version, created_at, updated_at, deleted_at`

func scanTimeEntry(row pgx.Row) (*models.CloudTimeEntry, error) {
	var e models.CloudTimeEntry
	var notes *string
	err := row.Scan(
		&e.CloudID,
		&e.UserID,
		&e.LocalID,
		&e.ProjectCloudID,
		&e.Date,
		&e.Duration,
		&notes,
		&e.SyncVersion,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if notes != nil {
		e.Notes = *notes
	}
	return &e, nil
}

func (r *PostgresTimeEntryRepository) GetByCloudID(ctx context.Context, userID uuid.UUID, cloudID string) (*models.CloudTimeEntry, error) {
	query := `SELECT ` + timeEntryColumns + `
	          FROM time_entries WHERE cloud_id = $1 AND user_id = $2`

	entry, err := scanTimeEntry(r.pool.QueryRow(ctx, query, cloudID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get time entry: %w", err)
	}
	return entry, nil
}

func (r *PostgresTimeEntryRepository) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]models.CloudTimeEntry, error) {
	query := `SELECT ` + timeEntryColumns + ` FROM time_entries WHERE user_id = $1`
	args := []any{userID}
	if since != nil {
		query += ` AND updated_at > $2`
		args = append(args, *since)
	}
	query += ` ORDER BY updated_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	var entries []models.CloudTimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time entries: %w", err)
	}
	return entries, nil
}

func (r *PostgresTimeEntryRepository) Create(ctx context.Context, entry *models.CloudTimeEntry) error {
	query := `INSERT INTO time_entries (user_id, local_id, project_cloud_id, date, duration, notes, sync_version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	          RETURNING cloud_id`

	err := r.pool.QueryRow(ctx, query,
		entry.UserID,
		entry.LocalID,
		entry.ProjectCloudID,
		entry.Date,
		entry.Duration,
		entry.Notes,
		entry.SyncVersion,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Scan(&entry.CloudID)

	if err != nil {
		return fmt.Errorf("failed to create time entry: %w", err)
	}
	return nil
}

func (r *PostgresTimeEntryRepository) Update(ctx context.Context, entry *models.CloudTimeEntry) error {
	query := `UPDATE time_entries
	          SET date = $1, duration = $2, notes = NULLIF($3, ''), sync_version = $4, updated_at = $5
	          WHERE cloud_id = $6 AND user_id = $7 AND deleted_at IS NULL`

	result, err := r.pool.Exec(ctx, query,
		entry.Date,
		entry.Duration,
		entry.Notes,
		entry.SyncVersion,
		entry.UpdatedAt,
		entry.CloudID,
		entry.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update time entry: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresTimeEntryRepository) SoftDelete(ctx context.Context, userID uuid.UUID, cloudID string, syncVersion int64) error {
	query := `UPDATE time_entries
	          SET deleted_at = NOW(), sync_version = $1, updated_at = NOW()
	          WHERE cloud_id = $2 AND user_id = $3 AND deleted_at IS NULL`

	if _, err := r.pool.Exec(ctx, query, syncVersion, cloudID, userID); err != nil {
		return fmt.Errorf("failed to delete time entry: %w", err)
	}
	return nil
}

func (r *PostgresTimeEntryRepository) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM time_entries WHERE user_id = $1 AND deleted_at IS NULL`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count time entries: %w", err)
	}
	return count, nil
}
