package localstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/trueloggs/timesync/internal/models"
)

const queueColumns = `id, entity_type, entity_id, cloud_id, operation, payload, enqueued_at, retry_count, last_error`

func scanQueueItem(row interface{ Scan(...any) error }) (*models.ChangeQueueItem, error) {
	var item models.ChangeQueueItem
	var cloudID, lastError sql.NullString
	var payload, enqueuedAt string
	err := row.Scan(&item.ID, &item.EntityType, &item.EntityID, &cloudID,
		&item.Operation, &payload, &enqueuedAt, &item.RetryCount, &lastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cloudID.Valid {
		item.CloudID = &cloudID.String
	}
	if lastError.Valid {
		item.LastError = &lastError.String
	}
	item.Payload = []byte(payload)
	item.EnqueuedAt = parseTime(enqueuedAt)
	return &item, nil
}

func (o ops) GetQueueItem(ctx context.Context, entityType models.EntityType, entityID int64) (*models.ChangeQueueItem, error) {
	return scanQueueItem(o.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM sync_queue WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID))
}

// UpsertQueueItem coalesces: a newer mutation for the same record replaces
// the pending one in place, resetting its retry state.
func (o ops) UpsertQueueItem(ctx context.Context, item *models.ChangeQueueItem) error {
	_, err := o.db.ExecContext(ctx,
		`INSERT INTO sync_queue (entity_type, entity_id, cloud_id, operation, payload, enqueued_at, retry_count, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, 0, NULL)
		 ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			cloud_id = excluded.cloud_id,
			operation = excluded.operation,
			payload = excluded.payload,
			enqueued_at = excluded.enqueued_at,
			retry_count = 0,
			last_error = NULL`,
		item.EntityType, item.EntityID, item.CloudID, item.Operation,
		string(item.Payload), fmtTime(item.EnqueuedAt))
	return err
}

func (o ops) ListQueueItems(ctx context.Context) ([]models.ChangeQueueItem, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM sync_queue ORDER BY enqueued_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.ChangeQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (o ops) DeleteQueueItem(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	return err
}

// AckQueueItem deletes a drained item only if it is unchanged since the
// drain. It reports false when a newer mutation coalesced into the row
// while the drained payload was in flight; that item must stay queued.
func (o ops) AckQueueItem(ctx context.Context, id int64, enqueuedAt time.Time) (bool, error) {
	res, err := o.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE id = ? AND enqueued_at = ?`, id, fmtTime(enqueuedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetQueueItemOperation rewrites a pending item's operation in place,
// keeping its payload and retry state.
func (o ops) SetQueueItemOperation(ctx context.Context, id int64, op models.SyncOperation) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE sync_queue SET operation = ? WHERE id = ?`, op, id)
	return err
}

func (o ops) DeleteQueueItemFor(ctx context.Context, entityType models.EntityType, entityID int64) error {
	_, err := o.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?`, entityType, entityID)
	return err
}

// RecordQueueFailure bumps the retry count and remembers the last error;
// the item stays queued for the next cycle.
func (o ops) RecordQueueFailure(ctx context.Context, id int64, lastError string) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`,
		lastError, id)
	return err
}

func (o ops) CountQueueItems(ctx context.Context) (int, error) {
	var n int
	err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}
