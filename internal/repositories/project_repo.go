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

type PostgresProjectRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresProjectRepository(pool *pgxpool.Pool) *PostgresProjectRepository {
	return &PostgresProjectRepository{pool: pool}
}

const projectColumns = `cloud_id, user_id, local_id, name, client_name, hourly_rate, color, status,
	sync_version, created_at, updated_at, deleted_at`

func scanProject(row pgx.Row) (*models.CloudProject, error) {
	var p models.CloudProject
	var clientName *string
	err := row.Scan(
		&p.CloudID,
		&p.UserID,
		&p.LocalID,
		&p.Name,
		&clientName,
		&p.HourlyRate,
		&p.Color,
		&p.Status,
		&p.SyncVersion,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if clientName != nil {
		p.ClientName = *clientName
	}
	return &p, nil
}

func (r *PostgresProjectRepository) GetByCloudID(ctx context.Context, userID uuid.UUID, cloudID string) (*models.CloudProject, error) {
	query := `SELECT ` + projectColumns + `
	          FROM projects WHERE cloud_id = $1 AND user_id = $2`

	project, err := scanProject(r.pool.QueryRow(ctx, query, cloudID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

func (r *PostgresProjectRepository) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]models.CloudProject, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE user_id = $1`
	args := []any{userID}
	if since != nil {
		query += ` AND updated_at > $2`
		args = append(args, *since)
	}
	query += ` ORDER BY updated_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.CloudProject
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

func (r *PostgresProjectRepository) Create(ctx context.Context, project *models.CloudProject) error {
	query := `INSERT INTO projects (user_id, local_id, name, client_name, hourly_rate, color, status, sync_version, created_at, updated_at)
	          VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
	          RETURNING cloud_id`

	err := r.pool.QueryRow(ctx, query,
		project.UserID,
		project.LocalID,
		project.Name,
		project.ClientName,
		project.HourlyRate,
		project.Color,
		project.Status,
		project.SyncVersion,
		project.CreatedAt,
		project.UpdatedAt,
	).Scan(&project.CloudID)

	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *PostgresProjectRepository) Update(ctx context.Context, project *models.CloudProject) error {
	query := `UPDATE projects
	          SET name = $1, client_name = NULLIF($2, ''), hourly_rate = $3, color = $4, status = $5,
	              sync_version = $6, updated_at = $7
	          WHERE cloud_id = $8 AND user_id = $9 AND deleted_at IS NULL`

	result, err := r.pool.Exec(ctx, query,
		project.Name,
		project.ClientName,
		project.HourlyRate,
		project.Color,
		project.Status,
		project.SyncVersion,
		project.UpdatedAt,
		project.CloudID,
		project.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresProjectRepository) SoftDelete(ctx context.Context, userID uuid.UUID, cloudID string, syncVersion int64) error {
	query := `UPDATE projects
	          SET deleted_at = NOW(), sync_version = $1, updated_at = NOW()
	          WHERE cloud_id = $2 AND user_id = $3 AND deleted_at IS NULL`

	if _, err := r.pool.Exec(ctx, query, syncVersion, cloudID, userID); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

func (r *PostgresProjectRepository) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM projects WHERE user_id = $1 AND deleted_at IS NULL`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return count, nil
}
