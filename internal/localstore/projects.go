package localstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/trueloggs/timesync/internal/models"
)

const projectColumns = `id, name, client_name, hourly_rate, color, status, cloud_id, sync_status, sync_version, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*models.Project, error) {
	var p models.Project
	var cloudID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.ClientName, &p.HourlyRate, &p.Color, &p.Status,
		&cloudID, &p.SyncStatus, &p.SyncVersion, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cloudID.Valid {
		p.CloudID = &cloudID.String
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (o ops) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	return scanProject(o.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
}

func (o ops) GetProjectByCloudID(ctx context.Context, cloudID string) (*models.Project, error) {
	return scanProject(o.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE cloud_id = ?`, cloudID))
}

func (o ops) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// InsertProject assigns the new local id to p.ID.
func (o ops) InsertProject(ctx context.Context, p *models.Project) error {
	res, err := o.db.ExecContext(ctx,
		`INSERT INTO projects (name, client_name, hourly_rate, color, status, cloud_id, sync_status, sync_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.ClientName, p.HourlyRate, p.Color, p.Status,
		p.CloudID, p.SyncStatus, p.SyncVersion, fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt))
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (o ops) UpdateProject(ctx context.Context, p *models.Project) error {
	res, err := o.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, client_name = ?, hourly_rate = ?, color = ?, status = ?,
		 cloud_id = ?, sync_status = ?, sync_version = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.ClientName, p.HourlyRate, p.Color, p.Status,
		p.CloudID, p.SyncStatus, p.SyncVersion, fmtTime(p.UpdatedAt), p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (o ops) DeleteProject(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	return err
}
