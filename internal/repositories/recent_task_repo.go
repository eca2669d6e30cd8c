package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trueloggs/timesync/internal/models"
)

type PostgresRecentTaskRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRecentTaskRepository(pool *pgxpool.Pool) *PostgresRecentTaskRepository {
	return &PostgresRecentTaskRepository{pool: pool}
}

func (r *PostgresRecentTaskRepository) List(ctx context.Context, userID uuid.UUID) ([]models.CloudRecentTask, error) {
	query := `SELECT cloud_id, user_id, local_id, project_cloud_id, task_description, last_used_at, usage_count, sync_version, deleted_at
	          FROM recent_tasks WHERE user_id = $1 ORDER BY last_used_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.CloudRecentTask
	for rows.Next() {
		var t models.CloudRecentTask
		err := rows.Scan(
			&t.CloudID,
			&t.UserID,
			&t.LocalID,
			&t.ProjectCloudID,
			&t.TaskDescription,
			&t.LastUsedAt,
			&t.UsageCount,
			&t.SyncVersion,
			&t.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recent task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent tasks: %w", err)
	}
	return tasks, nil
}

func (r *PostgresRecentTaskRepository) Create(ctx context.Context, task *models.CloudRecentTask) error {
	query := `INSERT INTO recent_tasks (user_id, local_id, project_cloud_id, task_description, last_used_at, usage_count, sync_version)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING cloud_id`

	err := r.pool.QueryRow(ctx, query,
		task.UserID,
		task.LocalID,
		task.ProjectCloudID,
		task.TaskDescription,
		task.LastUsedAt,
		task.UsageCount,
		task.SyncVersion,
	).Scan(&task.CloudID)

	if err != nil {
		return fmt.Errorf("failed to create recent task: %w", err)
	}
	return nil
}
