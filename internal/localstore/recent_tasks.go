package localstore

import (
	"context"

	"github.com/trueloggs/timesync/internal/models"
)

func (o ops) ListRecentTasks(ctx context.Context) ([]models.RecentTask, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, project_id, task_description, last_used_at, usage_count
		 FROM recent_tasks ORDER BY last_used_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.RecentTask
	for rows.Next() {
		var t models.RecentTask
		var lastUsedAt string
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.TaskDescription, &lastUsedAt, &t.UsageCount); err != nil {
			return nil, err
		}
		t.LastUsedAt = parseTime(lastUsedAt)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (o ops) InsertRecentTask(ctx context.Context, t *models.RecentTask) error {
	res, err := o.db.ExecContext(ctx,
		`INSERT INTO recent_tasks (project_id, task_description, last_used_at, usage_count)
		 VALUES (?, ?, ?, ?)`,
		t.ProjectID, t.TaskDescription, fmtTime(t.LastUsedAt), t.UsageCount)
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

// ReplaceRecentTasks swaps the whole table for the pulled set. Recent
// tasks are convenience data and are never conflict-tracked.
func (o ops) ReplaceRecentTasks(ctx context.Context, tasks []models.RecentTask) error {
	if _, err := o.db.ExecContext(ctx, `DELETE FROM recent_tasks`); err != nil {
		return err
	}
	for i := range tasks {
		if err := o.InsertRecentTask(ctx, &tasks[i]); err != nil {
			return err
		}
	}
	return nil
}
