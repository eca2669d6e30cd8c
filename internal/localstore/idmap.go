package localstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/trueloggs/timesync/internal/models"
)

func scanMapping(row *sql.Row) (*models.IDMapping, error) {
	var m models.IDMapping
	err := row.Scan(&m.ID, &m.EntityType, &m.LocalID, &m.CloudID, &m.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (o ops) GetMappingByLocalID(ctx context.Context, entityType models.EntityType, localID int64, userID string) (*models.IDMapping, error) {
	return scanMapping(o.db.QueryRowContext(ctx,
		`SELECT id, entity_type, local_id, cloud_id, user_id FROM id_mappings
		 WHERE entity_type = ? AND local_id = ? AND user_id = ?`,
		entityType, localID, userID))
}

func (o ops) GetMappingByCloudID(ctx context.Context, entityType models.EntityType, cloudID, userID string) (*models.IDMapping, error) {
	return scanMapping(o.db.QueryRowContext(ctx,
		`SELECT id, entity_type, local_id, cloud_id, user_id FROM id_mappings
		 WHERE entity_type = ? AND cloud_id = ? AND user_id = ?`,
		entityType, cloudID, userID))
}

// SaveMapping upserts the bidirectional association; saving again for the
// same local record replaces its cloud id.
func (o ops) SaveMapping(ctx context.Context, m *models.IDMapping) error {
	_, err := o.db.ExecContext(ctx,
		`INSERT INTO id_mappings (entity_type, local_id, cloud_id, user_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (entity_type, local_id, user_id) DO UPDATE SET cloud_id = excluded.cloud_id`,
		m.EntityType, m.LocalID, m.CloudID, m.UserID)
	return err
}

func (o ops) DeleteMapping(ctx context.Context, entityType models.EntityType, localID int64, userID string) error {
	_, err := o.db.ExecContext(ctx,
		`DELETE FROM id_mappings WHERE entity_type = ? AND local_id = ? AND user_id = ?`,
		entityType, localID, userID)
	return err
}
