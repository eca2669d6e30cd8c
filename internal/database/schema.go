package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Cloud-side schema. Entity rows are soft-deleted (deleted_at) so that
// deletions propagate to other devices via pull; sync_version is the
// optimistic-concurrency token.
var cloudSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		cloud_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		local_id BIGINT,
		name TEXT NOT NULL,
		client_name TEXT,
		hourly_rate DOUBLE PRECISION NOT NULL,
		color TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		sync_version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_user_updated ON projects (user_id, updated_at)`,
	`CREATE TABLE IF NOT EXISTS time_entries (
		cloud_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		local_id BIGINT,
		project_cloud_id UUID NOT NULL REFERENCES projects(cloud_id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		duration INTEGER NOT NULL,
		notes TEXT,
		sync_version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_time_entries_user_updated ON time_entries (user_id, updated_at)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		cloud_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		local_id BIGINT,
		invoice_number TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		invoice_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		paid_at TEXT,
		company_name TEXT NOT NULL,
		company_email TEXT NOT NULL,
		company_phone TEXT NOT NULL,
		company_address TEXT NOT NULL,
		client_name TEXT NOT NULL,
		client_email TEXT,
		project_name TEXT NOT NULL,
		project_color TEXT NOT NULL,
		project_cloud_id UUID REFERENCES projects(cloud_id) ON DELETE SET NULL,
		line_items TEXT NOT NULL,
		subtotal DOUBLE PRECISION NOT NULL,
		tax_rate DOUBLE PRECISION NOT NULL,
		tax_amount DOUBLE PRECISION NOT NULL,
		total DOUBLE PRECISION NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		notes TEXT,
		payment_terms TEXT,
		sync_version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_user_updated ON invoices (user_id, updated_at)`,
	`CREATE TABLE IF NOT EXISTS settings (
		user_id UUID PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
		profile_full_name TEXT NOT NULL DEFAULT '',
		profile_email TEXT NOT NULL DEFAULT '',
		profile_company TEXT NOT NULL DEFAULT '',
		profile_phone TEXT NOT NULL DEFAULT '',
		profile_address TEXT NOT NULL DEFAULT '',
		profile_bio TEXT NOT NULL DEFAULT '',
		target_hours_per_week INTEGER NOT NULL DEFAULT 40,
		default_hourly_rate DOUBLE PRECISION NOT NULL DEFAULT 50,
		work_days TEXT NOT NULL DEFAULT '[false,true,true,true,true,true,false]',
		invoice_counter INTEGER NOT NULL DEFAULT 0,
		invoice_prefix TEXT NOT NULL DEFAULT 'INV',
		last_invoice_year INTEGER NOT NULL,
		theme TEXT NOT NULL DEFAULT 'system',
		sync_version BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS recent_tasks (
		cloud_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		local_id BIGINT,
		project_cloud_id UUID NOT NULL REFERENCES projects(cloud_id) ON DELETE CASCADE,
		task_description TEXT NOT NULL,
		last_used_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		usage_count INTEGER NOT NULL DEFAULT 1,
		sync_version BIGINT NOT NULL DEFAULT 1,
		deleted_at TIMESTAMPTZ
	)`,
}

// InitCloudSchema creates the cloud tables if they don't exist yet.
func InitCloudSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range cloudSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply cloud schema: %w", err)
		}
	}
	return nil
}
