package localstore

import (
	"context"
	"database/sql"
	"errors"
)

// GetCursor returns the persisted pull cursor for the user, or "" when the
// user has never completed a pull.
func (o ops) GetCursor(ctx context.Context, userID string) (string, error) {
	var cursor string
	err := o.db.QueryRowContext(ctx,
		`SELECT last_synced_at FROM sync_cursors WHERE user_id = ?`, userID).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return cursor, err
}

func (o ops) SetCursor(ctx context.Context, userID, cursor string) error {
	_, err := o.db.ExecContext(ctx,
		`INSERT INTO sync_cursors (user_id, last_synced_at) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET last_synced_at = excluded.last_synced_at`,
		userID, cursor)
	return err
}
