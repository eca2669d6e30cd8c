// Package localstore is the device-local SQLite database: the entity
// tables the app reads and writes, plus the sync bookkeeping tables
// (change queue, id mappings, pull cursors).
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trueloggs/timesync/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

var localSchema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		client_name TEXT NOT NULL DEFAULT '',
		hourly_rate REAL NOT NULL DEFAULT 0,
		color TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		cloud_id TEXT,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		sync_version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS time_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		duration INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		cloud_id TEXT,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		sync_version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_number TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		invoice_date TEXT NOT NULL DEFAULT '',
		due_date TEXT NOT NULL DEFAULT '',
		paid_at TEXT,
		company_name TEXT NOT NULL DEFAULT '',
		company_email TEXT NOT NULL DEFAULT '',
		company_phone TEXT NOT NULL DEFAULT '',
		company_address TEXT NOT NULL DEFAULT '',
		client_name TEXT NOT NULL DEFAULT '',
		client_email TEXT NOT NULL DEFAULT '',
		project_name TEXT NOT NULL DEFAULT '',
		project_color TEXT NOT NULL DEFAULT '',
		project_id INTEGER,
		line_items TEXT NOT NULL DEFAULT '[]',
		subtotal REAL NOT NULL DEFAULT 0,
		tax_rate REAL NOT NULL DEFAULT 0,
		tax_amount REAL NOT NULL DEFAULT 0,
		total REAL NOT NULL DEFAULT 0,
		period_start TEXT NOT NULL DEFAULT '',
		period_end TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		payment_terms TEXT NOT NULL DEFAULT '',
		cloud_id TEXT,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		sync_version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		full_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		target_hours_per_week INTEGER NOT NULL DEFAULT 40,
		default_hourly_rate REAL NOT NULL DEFAULT 50,
		work_days TEXT NOT NULL DEFAULT '[false,true,true,true,true,true,false]',
		invoice_counter INTEGER NOT NULL DEFAULT 0,
		invoice_prefix TEXT NOT NULL DEFAULT 'INV',
		last_invoice_year INTEGER NOT NULL DEFAULT 0,
		theme TEXT NOT NULL DEFAULT 'system',
		cloud_id TEXT,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		sync_version INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS recent_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		task_description TEXT NOT NULL,
		last_used_at TEXT NOT NULL,
		usage_count INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		cloud_id TEXT,
		operation TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		enqueued_at TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		UNIQUE(entity_type, entity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS id_mappings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		local_id INTEGER NOT NULL,
		cloud_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		UNIQUE(entity_type, local_id, user_id),
		UNIQUE(entity_type, cloud_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_cursors (
		user_id TEXT PRIMARY KEY,
		last_synced_at TEXT NOT NULL
	)`,
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query helper
// works inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type ops struct {
	db dbtx
}

type Store struct {
	ops
	sqlDB *sql.DB
}

// Tx exposes the same operations as Store, scoped to one transaction.
type Tx struct {
	ops
}

// Open opens (creating if needed) the local database at path. ":memory:"
// gives an in-memory database, used by tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	for _, stmt := range localSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply local schema: %w", err)
		}
	}
	return &Store{ops: ops{db: db}, sqlDB: db}, nil
}

func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// WithTx runs fn inside one transaction spanning every table; a returned
// error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{ops: ops{db: sqlTx}}); err != nil {
		sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

// Counts returns per-type active record counts for the migration check.
func (o ops) Counts(ctx context.Context) (models.EntityCounts, error) {
	var counts models.EntityCounts
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&counts.Projects); err != nil {
		return counts, err
	}
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM time_entries`).Scan(&counts.TimeEntries); err != nil {
		return counts, err
	}
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&counts.Invoices); err != nil {
		return counts, err
	}
	return counts, nil
}

// Wipe deletes all entity data and sync bookkeeping. Used by the
// keep-cloud migration path before repopulating from a full pull.
func (o ops) Wipe(ctx context.Context) error {
	for _, table := range []string{
		"projects", "time_entries", "invoices", "settings",
		"recent_tasks", "sync_queue", "id_mappings", "sync_cursors",
	} {
		if _, err := o.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("wipe %s: %w", table, err)
		}
	}
	return nil
}

// entityTable maps a sync-tracked entity type to its local table.
func entityTable(t models.EntityType) (string, bool) {
	switch t {
	case models.EntityProject:
		return "projects", true
	case models.EntityTimeEntry:
		return "time_entries", true
	case models.EntityInvoice:
		return "invoices", true
	case models.EntitySettings:
		return "settings", true
	}
	return "", false
}

// MarkSynced records a successful push: the server-issued cloud id and
// version, and sync status back to synced.
func (o ops) MarkSynced(ctx context.Context, t models.EntityType, id int64, cloudID string, version int64) error {
	table, ok := entityTable(t)
	if !ok {
		return fmt.Errorf("entity type %q is not sync-tracked", t)
	}
	_, err := o.db.ExecContext(ctx,
		"UPDATE "+table+" SET cloud_id = ?, sync_status = ?, sync_version = ? WHERE id = ?",
		cloudID, models.SyncStateSynced, version, id)
	return err
}

// MarkConflict flags a record whose push was rejected by a newer server
// version. The record keeps its local data until the user resolves it;
// the server's version is recorded so a keep-local resolution can push
// against it.
// SetCloudIdentity records a server-assigned identity and version without
// touching the record's sync status. Used when an ack lands after a newer
// local edit already flipped the record back to pending.
func (o ops) SetCloudIdentity(ctx context.Context, t models.EntityType, id int64, cloudID string, version int64) error {
	table, ok := entityTable(t)
	if !ok {
		return fmt.Errorf("entity type %q is not sync-tracked", t)
	}
	_, err := o.db.ExecContext(ctx,
		"UPDATE "+table+" SET cloud_id = ?, sync_version = ? WHERE id = ?",
		cloudID, version, id)
	return err
}

func (o ops) MarkConflict(ctx context.Context, t models.EntityType, id, serverVersion int64) error {
	table, ok := entityTable(t)
	if !ok {
		return fmt.Errorf("entity type %q is not sync-tracked", t)
	}
	_, err := o.db.ExecContext(ctx,
		"UPDATE "+table+" SET sync_status = ?, sync_version = ? WHERE id = ?",
		models.SyncStateConflict, serverVersion, id)
	return err
}

// ClearConflict unflags a record and forgets its version, so the next
// pull reapplies the server's copy. Used when a conflict is resolved in
// the server's favor.
func (o ops) ClearConflict(ctx context.Context, t models.EntityType, id int64) error {
	table, ok := entityTable(t)
	if !ok {
		return fmt.Errorf("entity type %q is not sync-tracked", t)
	}
	_, err := o.db.ExecContext(ctx,
		"UPDATE "+table+" SET sync_status = ?, sync_version = 0 WHERE id = ?",
		models.SyncStateSynced, id)
	return err
}

// CountConflicts counts records flagged as conflicted across all
// sync-tracked tables.
func (o ops) CountConflicts(ctx context.Context) (int, error) {
	total := 0
	for _, table := range []string{"projects", "time_entries", "invoices", "settings"} {
		var n int
		err := o.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+table+" WHERE sync_status = ?",
			models.SyncStateConflict).Scan(&n)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
