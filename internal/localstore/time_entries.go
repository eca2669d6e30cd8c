package localstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/trueloggs/timesync/internal/models"
)

const timeEntryColumns = `id, project_id, date, duration, notes, cloud_id, sync_status, sync_version, created_at, updated_at`

func scanTimeEntry(row interface{ Scan(...any) error }) (*models.TimeEntry, error) {
	var e models.TimeEntry
	var cloudID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.ProjectID, &e.Date, &e.Duration, &e.Notes,
		&cloudID, &e.SyncStatus, &e.SyncVersion, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cloudID.Valid {
		e.CloudID = &cloudID.String
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func (o ops) GetTimeEntry(ctx context.Context, id int64) (*models.TimeEntry, error) {
	return scanTimeEntry(o.db.QueryRowContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE id = ?`, id))
}

func (o ops) GetTimeEntryByCloudID(ctx context.Context, cloudID string) (*models.TimeEntry, error) {
	return scanTimeEntry(o.db.QueryRowContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE cloud_id = ?`, cloudID))
}

func (o ops) ListTimeEntries(ctx context.Context) ([]models.TimeEntry, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries ORDER BY date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (o ops) InsertTimeEntry(ctx context.Context, e *models.TimeEntry) error {
	res, err := o.db.ExecContext(ctx,
		`INSERT INTO time_entries (project_id, date, duration, notes, cloud_id, sync_status, sync_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.Date, e.Duration, e.Notes,
		e.CloudID, e.SyncStatus, e.SyncVersion, fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt))
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (o ops) UpdateTimeEntry(ctx context.Context, e *models.TimeEntry) error {
	res, err := o.db.ExecContext(ctx,
		`UPDATE time_entries SET project_id = ?, date = ?, duration = ?, notes = ?,
		 cloud_id = ?, sync_status = ?, sync_version = ?, updated_at = ? WHERE id = ?`,
		e.ProjectID, e.Date, e.Duration, e.Notes,
		e.CloudID, e.SyncStatus, e.SyncVersion, fmtTime(e.UpdatedAt), e.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (o ops) DeleteTimeEntry(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ?`, id)
	return err
}
