package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trueloggs/timesync/internal/localstore"
	"github.com/trueloggs/timesync/internal/models"
)

// Enqueue records a local mutation for transmission. At most one item
// exists per record: a second mutation replaces the pending one, a delete
// of a record whose create never left the device cancels the item
// entirely. When the engine is enabled and online, an immediate cycle is
// scheduled.
func (e *Engine) Enqueue(ctx context.Context, entityType models.EntityType, entityID int64, op models.SyncOperation, payload json.RawMessage) error {
	existing, err := e.store.GetQueueItem(ctx, entityType, entityID)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return fmt.Errorf("read pending change: %w", err)
	}

	if existing != nil && existing.Operation == models.OpCreate {
		switch op {
		case models.OpDelete:
			// The server never saw this record; nothing to transmit.
			if err := e.store.DeleteQueueItemFor(ctx, entityType, entityID); err != nil {
				return err
			}
			e.notify()
			return nil
		case models.OpUpdate:
			// Still a create on the wire, with the newer field values.
			op = models.OpCreate
		}
	}

	item := &models.ChangeQueueItem{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	if userID := e.currentUser(); userID != "" {
		if m, err := e.store.GetMappingByLocalID(ctx, entityType, entityID, userID); err == nil {
			item.CloudID = &m.CloudID
		}
	}
	if err := e.store.UpsertQueueItem(ctx, item); err != nil {
		return fmt.Errorf("enqueue change: %w", err)
	}

	e.notify()
	e.mu.Lock()
	ready := e.enabled && e.online
	e.mu.Unlock()
	if ready {
		e.requestSync()
	}
	return nil
}

// PendingCount reports how many records have untransmitted changes.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.store.CountQueueItems(ctx)
}

// ConflictCount reports how many local records are flagged conflicted.
func (e *Engine) ConflictCount(ctx context.Context) (int, error) {
	return e.store.CountConflicts(ctx)
}

// ProjectChange snapshots a project for the queue.
func ProjectChange(p *models.Project) json.RawMessage {
	b, _ := json.Marshal(models.ProjectPayload{
		Name:       p.Name,
		ClientName: p.ClientName,
		HourlyRate: p.HourlyRate,
		Color:      p.Color,
		Status:     p.Status,
		CreatedAt:  p.CreatedAt,
	})
	return b
}

// TimeEntryChange snapshots a time entry for the queue. The parent
// project's cloud id is resolved at push time, since the project may not
// have been assigned one yet.
func TimeEntryChange(t *models.TimeEntry) json.RawMessage {
	payload := models.TimeEntryPayload{
		Date:      t.Date,
		Duration:  t.Duration,
		Notes:     t.Notes,
		CreatedAt: t.CreatedAt,
	}
	if t.ProjectCloudID != nil {
		payload.ProjectCloudID = *t.ProjectCloudID
	}
	b, _ := json.Marshal(payload)
	return b
}

// InvoiceChange snapshots an invoice for the queue.
func InvoiceChange(inv *models.Invoice) json.RawMessage {
	b, _ := json.Marshal(models.InvoicePayload{
		InvoiceNumber:  inv.InvoiceNumber,
		Status:         inv.Status,
		InvoiceDate:    inv.InvoiceDate,
		DueDate:        inv.DueDate,
		PaidAt:         inv.PaidAt,
		CompanyName:    inv.CompanyName,
		CompanyEmail:   inv.CompanyEmail,
		CompanyPhone:   inv.CompanyPhone,
		CompanyAddress: inv.CompanyAddress,
		ClientName:     inv.ClientName,
		ClientEmail:    inv.ClientEmail,
		ProjectName:    inv.ProjectName,
		ProjectColor:   inv.ProjectColor,
		ProjectCloudID: inv.ProjectCloudID,
		LineItems:      inv.LineItems,
		Subtotal:       inv.Subtotal,
		TaxRate:        inv.TaxRate,
		TaxAmount:      inv.TaxAmount,
		Total:          inv.Total,
		PeriodStart:    inv.PeriodStart,
		PeriodEnd:      inv.PeriodEnd,
		Notes:          inv.Notes,
		PaymentTerms:   inv.PaymentTerms,
		CreatedAt:      inv.CreatedAt,
	})
	return b
}

// SettingsChange snapshots the settings singleton for the queue.
func SettingsChange(s *models.Settings) json.RawMessage {
	b, _ := json.Marshal(models.SettingsPayload{
		Profile:         s.Profile,
		WorkSettings:    s.WorkSettings,
		InvoiceSettings: s.InvoiceSettings,
		Theme:           s.Theme,
	})
	return b
}
