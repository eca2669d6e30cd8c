package engine

import (
	"context"
	"fmt"

	"github.com/trueloggs/timesync/internal/models"
)

// MigrationCheck is what the app shows when sync is enabled for the first
// time: whether both sides hold data and the user must pick a strategy.
type MigrationCheck struct {
	LocalCounts   models.EntityCounts `json:"localCounts"`
	CloudCounts   models.EntityCounts `json:"cloudCounts"`
	CloudHasData  bool                `json:"cloudHasData"`
	LocalHasData  bool                `json:"localHasData"`
	NeedsDecision bool                `json:"needsDecision"`
}

// CheckMigration compares local and cloud record counts. A decision is
// only needed when both sides hold data; otherwise the obvious direction
// is taken automatically by Migrate.
func (e *Engine) CheckMigration(ctx context.Context) (*MigrationCheck, error) {
	status, err := e.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	local, err := e.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count local records: %w", err)
	}
	return &MigrationCheck{
		LocalCounts:   local,
		CloudCounts:   status.Counts,
		CloudHasData:  status.HasExistingData,
		LocalHasData:  local.Total() > 0,
		NeedsDecision: status.HasExistingData && local.Total() > 0,
	}, nil
}

// Migrate executes the chosen first-enable strategy:
//
//   - merge uploads the full local snapshot alongside whatever the cloud
//     holds, then pulls everything back.
//   - keep-local uploads the same snapshot; existing cloud records are
//     left in place and reappear on the following pull.
//   - keep-cloud wipes the local database and repopulates it from a full
//     pull.
//   - cancel disables the engine; the app keeps working offline.
func (e *Engine) Migrate(ctx context.Context, option models.MigrationOption) error {
	switch option {
	case models.MigrateMerge, models.MigrateKeepLocal:
		return e.migrateUpload(ctx)
	case models.MigrateKeepCloud:
		return e.migrateKeepCloud(ctx)
	case models.MigrateCancel:
		e.Disable()
		return nil
	}
	return fmt.Errorf("unknown migration option %q", option)
}

// migrateUpload bulk-uploads every local record, bypassing the change
// queue, then records the returned identities and pulls the merged state.
func (e *Engine) migrateUpload(ctx context.Context) error {
	if err := e.beginCycle(); err != nil {
		return err
	}
	err := e.runMigrateUpload(ctx)
	e.endCycle(err)
	return err
}

func (e *Engine) runMigrateUpload(ctx context.Context) error {
	userID := e.currentUser()

	req, err := e.exportSnapshot(ctx)
	if err != nil {
		return err
	}
	resp, err := e.client.Migrate(ctx, req)
	if err != nil {
		return err
	}
	for _, msg := range resp.Errors {
		e.logger.Printf("migration: %s", msg)
	}

	record := func(entityType models.EntityType, mappings map[int64]string) error {
		for localID, cloudID := range mappings {
			if err := e.store.MarkSynced(ctx, entityType, localID, cloudID, 1); err != nil {
				return err
			}
			err := e.store.SaveMapping(ctx, &models.IDMapping{
				EntityType: entityType,
				LocalID:    localID,
				CloudID:    cloudID,
				UserID:     userID,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}
	if err := record(models.EntityProject, resp.Mappings.Projects); err != nil {
		return err
	}
	if err := record(models.EntityTimeEntry, resp.Mappings.TimeEntries); err != nil {
		return err
	}
	if err := record(models.EntityInvoice, resp.Mappings.Invoices); err != nil {
		return err
	}

	return e.pull(ctx, true)
}

func (e *Engine) migrateKeepCloud(ctx context.Context) error {
	if err := e.beginCycle(); err != nil {
		return err
	}
	err := func() error {
		if err := e.store.Wipe(ctx); err != nil {
			return fmt.Errorf("wipe local data: %w", err)
		}
		return e.pull(ctx, true)
	}()
	e.endCycle(err)
	return err
}

// exportSnapshot reads every local table directly, ignoring the change
// queue: migration transmits state, not history.
func (e *Engine) exportSnapshot(ctx context.Context) (*models.MigrateRequest, error) {
	projects, err := e.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("export projects: %w", err)
	}
	entries, err := e.store.ListTimeEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("export time entries: %w", err)
	}
	invoices, err := e.store.ListInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("export invoices: %w", err)
	}
	tasks, err := e.store.ListRecentTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("export recent tasks: %w", err)
	}
	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("export settings: %w", err)
	}

	return &models.MigrateRequest{
		Projects:    projects,
		TimeEntries: entries,
		Invoices:    invoices,
		RecentTasks: tasks,
		Settings: &models.SettingsPayload{
			Profile:         settings.Profile,
			WorkSettings:    settings.WorkSettings,
			InvoiceSettings: settings.InvoiceSettings,
			Theme:           settings.Theme,
		},
	}, nil
}
