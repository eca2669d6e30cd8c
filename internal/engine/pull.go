package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/trueloggs/timesync/internal/localstore"
	"github.com/trueloggs/timesync/internal/models"
)

// pull fetches changes after the persisted cursor and applies them in one
// local transaction; the cursor only advances when the whole batch
// committed. full forces a from-scratch pull regardless of the cursor.
func (e *Engine) pull(ctx context.Context, full bool) error {
	userID := e.currentUser()

	cursor := ""
	if !full {
		var err error
		cursor, err = e.store.GetCursor(ctx, userID)
		if err != nil {
			return fmt.Errorf("read pull cursor: %w", err)
		}
	}

	resp, err := e.client.Pull(ctx, cursor)
	if err != nil {
		return err
	}

	return e.store.WithTx(ctx, func(tx *localstore.Tx) error {
		// Projects first: time entries, invoices and recent tasks resolve
		// their parent through the project mappings written here.
		for _, cp := range resp.Data.Projects {
			if err := e.applyProject(ctx, tx, userID, cp); err != nil {
				return err
			}
		}
		for _, ce := range resp.Data.TimeEntries {
			if err := e.applyTimeEntry(ctx, tx, userID, ce); err != nil {
				return err
			}
		}
		for _, ci := range resp.Data.Invoices {
			if err := e.applyInvoice(ctx, tx, userID, ci); err != nil {
				return err
			}
		}
		for _, cs := range resp.Data.Settings {
			if err := e.applySettings(ctx, tx, cs); err != nil {
				return err
			}
		}
		if len(resp.Data.RecentTasks) > 0 {
			if err := e.applyRecentTasks(ctx, tx, userID, resp.Data.RecentTasks); err != nil {
				return err
			}
		}
		return tx.SetCursor(ctx, userID, resp.SyncedAt)
	})
}

// Repull discards the cursor and reapplies the full cloud state. Used to
// recover records that were skipped as orphans once their parent exists.
func (e *Engine) Repull(ctx context.Context) error {
	if err := e.beginCycle(); err != nil {
		return err
	}
	err := e.pull(ctx, true)
	e.endCycle(err)
	return err
}

// hasPendingChange reports whether the record has a queued local edit; a
// pending edit wins over the pulled copy until it has been pushed.
func hasPendingChange(ctx context.Context, tx *localstore.Tx, entityType models.EntityType, localID int64) bool {
	_, err := tx.GetQueueItem(ctx, entityType, localID)
	return err == nil
}

func (e *Engine) applyProject(ctx context.Context, tx *localstore.Tx, userID string, cp models.CloudProject) error {
	mapping, err := tx.GetMappingByCloudID(ctx, models.EntityProject, cp.CloudID, userID)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return err
	}

	if cp.DeletedAt != nil {
		if mapping == nil {
			return nil
		}
		if err := tx.DeleteProject(ctx, mapping.LocalID); err != nil {
			return err
		}
		if err := tx.DeleteQueueItemFor(ctx, models.EntityProject, mapping.LocalID); err != nil {
			return err
		}
		return tx.DeleteMapping(ctx, models.EntityProject, mapping.LocalID, userID)
	}

	if mapping != nil {
		if hasPendingChange(ctx, tx, models.EntityProject, mapping.LocalID) {
			return nil
		}
		local, err := tx.GetProject(ctx, mapping.LocalID)
		if errors.Is(err, localstore.ErrNotFound) {
			return tx.DeleteMapping(ctx, models.EntityProject, mapping.LocalID, userID)
		}
		if err != nil {
			return err
		}
		if local.SyncStatus == models.SyncStateConflict {
			// Flagged records hold the user's copy until resolved.
			return nil
		}
		if local.SyncVersion >= cp.SyncVersion {
			// Local copy is at least as fresh; no field-level merge.
			return nil
		}
		local.Name = cp.Name
		local.ClientName = cp.ClientName
		local.HourlyRate = cp.HourlyRate
		local.Color = cp.Color
		local.Status = cp.Status
		local.CloudID = &cp.CloudID
		local.SyncStatus = models.SyncStateSynced
		local.SyncVersion = cp.SyncVersion
		local.UpdatedAt = cp.UpdatedAt
		return tx.UpdateProject(ctx, local)
	}

	local := &models.Project{
		Name:        cp.Name,
		ClientName:  cp.ClientName,
		HourlyRate:  cp.HourlyRate,
		Color:       cp.Color,
		Status:      cp.Status,
		CloudID:     &cp.CloudID,
		SyncStatus:  models.SyncStateSynced,
		SyncVersion: cp.SyncVersion,
		CreatedAt:   cp.CreatedAt,
		UpdatedAt:   cp.UpdatedAt,
	}
	if err := tx.InsertProject(ctx, local); err != nil {
		return err
	}
	return tx.SaveMapping(ctx, &models.IDMapping{
		EntityType: models.EntityProject,
		LocalID:    local.ID,
		CloudID:    cp.CloudID,
		UserID:     userID,
	})
}

func (e *Engine) applyTimeEntry(ctx context.Context, tx *localstore.Tx, userID string, ce models.CloudTimeEntry) error {
	mapping, err := tx.GetMappingByCloudID(ctx, models.EntityTimeEntry, ce.CloudID, userID)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return err
	}

	if ce.DeletedAt != nil {
		if mapping == nil {
			return nil
		}
		if err := tx.DeleteTimeEntry(ctx, mapping.LocalID); err != nil {
			return err
		}
		if err := tx.DeleteQueueItemFor(ctx, models.EntityTimeEntry, mapping.LocalID); err != nil {
			return err
		}
		return tx.DeleteMapping(ctx, models.EntityTimeEntry, mapping.LocalID, userID)
	}

	projectMapping, err := tx.GetMappingByCloudID(ctx, models.EntityProject, ce.ProjectCloudID, userID)
	if errors.Is(err, localstore.ErrNotFound) {
		// Orphan: the parent project isn't on this device. Skip the row;
		// a later full repull picks it up once the parent exists.
		e.logger.Printf("pull: skipping time entry %s, no local project for %s", ce.CloudID, ce.ProjectCloudID)
		return nil
	}
	if err != nil {
		return err
	}

	if mapping != nil {
		if hasPendingChange(ctx, tx, models.EntityTimeEntry, mapping.LocalID) {
			return nil
		}
		local, err := tx.GetTimeEntry(ctx, mapping.LocalID)
		if errors.Is(err, localstore.ErrNotFound) {
			return tx.DeleteMapping(ctx, models.EntityTimeEntry, mapping.LocalID, userID)
		}
		if err != nil {
			return err
		}
		if local.SyncStatus == models.SyncStateConflict {
			return nil
		}
		if local.SyncVersion >= ce.SyncVersion {
			return nil
		}
		local.ProjectID = projectMapping.LocalID
		local.Date = ce.Date
		local.Duration = ce.Duration
		local.Notes = ce.Notes
		local.CloudID = &ce.CloudID
		local.SyncStatus = models.SyncStateSynced
		local.SyncVersion = ce.SyncVersion
		local.UpdatedAt = ce.UpdatedAt
		return tx.UpdateTimeEntry(ctx, local)
	}

	local := &models.TimeEntry{
		ProjectID:   projectMapping.LocalID,
		Date:        ce.Date,
		Duration:    ce.Duration,
		Notes:       ce.Notes,
		CloudID:     &ce.CloudID,
		SyncStatus:  models.SyncStateSynced,
		SyncVersion: ce.SyncVersion,
		CreatedAt:   ce.CreatedAt,
		UpdatedAt:   ce.UpdatedAt,
	}
	if err := tx.InsertTimeEntry(ctx, local); err != nil {
		return err
	}
	return tx.SaveMapping(ctx, &models.IDMapping{
		EntityType: models.EntityTimeEntry,
		LocalID:    local.ID,
		CloudID:    ce.CloudID,
		UserID:     userID,
	})
}

func (e *Engine) applyInvoice(ctx context.Context, tx *localstore.Tx, userID string, ci models.CloudInvoice) error {
	mapping, err := tx.GetMappingByCloudID(ctx, models.EntityInvoice, ci.CloudID, userID)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return err
	}

	if ci.DeletedAt != nil {
		if mapping == nil {
			return nil
		}
		if err := tx.DeleteInvoice(ctx, mapping.LocalID); err != nil {
			return err
		}
		if err := tx.DeleteQueueItemFor(ctx, models.EntityInvoice, mapping.LocalID); err != nil {
			return err
		}
		return tx.DeleteMapping(ctx, models.EntityInvoice, mapping.LocalID, userID)
	}

	// The project link is optional on invoices; a missing parent degrades
	// to an unlinked invoice instead of an orphan skip, since the invoice
	// carries its own snapshot of everything it displays.
	var projectID *int64
	if ci.ProjectCloudID != nil {
		if pm, err := tx.GetMappingByCloudID(ctx, models.EntityProject, *ci.ProjectCloudID, userID); err == nil {
			projectID = &pm.LocalID
		}
	}

	if mapping != nil {
		if hasPendingChange(ctx, tx, models.EntityInvoice, mapping.LocalID) {
			return nil
		}
		local, err := tx.GetInvoice(ctx, mapping.LocalID)
		if errors.Is(err, localstore.ErrNotFound) {
			return tx.DeleteMapping(ctx, models.EntityInvoice, mapping.LocalID, userID)
		}
		if err != nil {
			return err
		}
		if local.SyncStatus == models.SyncStateConflict {
			return nil
		}
		if local.SyncVersion >= ci.SyncVersion {
			return nil
		}
		local.Status = ci.Status
		local.PaidAt = ci.PaidAt
		local.Notes = ci.Notes
		local.CloudID = &ci.CloudID
		local.SyncStatus = models.SyncStateSynced
		local.SyncVersion = ci.SyncVersion
		local.UpdatedAt = ci.UpdatedAt
		return tx.UpdateInvoice(ctx, local)
	}

	local := &models.Invoice{
		InvoiceNumber:  ci.InvoiceNumber,
		Status:         ci.Status,
		InvoiceDate:    ci.InvoiceDate,
		DueDate:        ci.DueDate,
		PaidAt:         ci.PaidAt,
		CompanyName:    ci.CompanyName,
		CompanyEmail:   ci.CompanyEmail,
		CompanyPhone:   ci.CompanyPhone,
		CompanyAddress: ci.CompanyAddress,
		ClientName:     ci.ClientName,
		ClientEmail:    ci.ClientEmail,
		ProjectName:    ci.ProjectName,
		ProjectColor:   ci.ProjectColor,
		ProjectID:      projectID,
		ProjectCloudID: ci.ProjectCloudID,
		LineItems:      ci.LineItems,
		Subtotal:       ci.Subtotal,
		TaxRate:        ci.TaxRate,
		TaxAmount:      ci.TaxAmount,
		Total:          ci.Total,
		PeriodStart:    ci.PeriodStart,
		PeriodEnd:      ci.PeriodEnd,
		Notes:          ci.Notes,
		PaymentTerms:   ci.PaymentTerms,
		CloudID:        &ci.CloudID,
		SyncStatus:     models.SyncStateSynced,
		SyncVersion:    ci.SyncVersion,
		CreatedAt:      ci.CreatedAt,
		UpdatedAt:      ci.UpdatedAt,
	}
	if err := tx.InsertInvoice(ctx, local); err != nil {
		return err
	}
	return tx.SaveMapping(ctx, &models.IDMapping{
		EntityType: models.EntityInvoice,
		LocalID:    local.ID,
		CloudID:    ci.CloudID,
		UserID:     userID,
	})
}

// applySettings overwrites the local singleton unless a local edit is
// still queued or the local copy is already at the incoming version; the
// queued edit wins until pushed.
func (e *Engine) applySettings(ctx context.Context, tx *localstore.Tx, cs models.CloudSettings) error {
	if hasPendingChange(ctx, tx, models.EntitySettings, 1) {
		return nil
	}
	if current, err := tx.GetSettings(ctx); err == nil {
		if current.SyncStatus == models.SyncStateConflict {
			return nil
		}
		if current.SyncStatus == models.SyncStateSynced && current.SyncVersion >= cs.SyncVersion {
			return nil
		}
	}
	return tx.SaveSettings(ctx, &models.Settings{
		Profile:         cs.Profile,
		WorkSettings:    cs.WorkSettings,
		InvoiceSettings: cs.InvoiceSettings,
		Theme:           cs.Theme,
		SyncStatus:      models.SyncStateSynced,
		SyncVersion:     cs.SyncVersion,
		UpdatedAt:       cs.UpdatedAt,
	})
}

func (e *Engine) applyRecentTasks(ctx context.Context, tx *localstore.Tx, userID string, tasks []models.CloudRecentTask) error {
	local := make([]models.RecentTask, 0, len(tasks))
	for _, ct := range tasks {
		if ct.DeletedAt != nil {
			continue
		}
		pm, err := tx.GetMappingByCloudID(ctx, models.EntityProject, ct.ProjectCloudID, userID)
		if errors.Is(err, localstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		local = append(local, models.RecentTask{
			ProjectID:       pm.LocalID,
			TaskDescription: ct.TaskDescription,
			LastUsedAt:      ct.LastUsedAt,
			UsageCount:      ct.UsageCount,
		})
	}
	return tx.ReplaceRecentTasks(ctx, local)
}
