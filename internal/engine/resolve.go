package engine

import (
	"context"
	"fmt"

	"github.com/trueloggs/timesync/internal/models"
)

// Resolution is the user's answer to a flagged conflict.
type Resolution string

const (
	// ResolutionKeepLocal re-queues the local copy against the server's
	// current version, so the next push wins.
	ResolutionKeepLocal Resolution = "keep-local"
	// ResolutionKeepServer discards the local copy and reapplies the
	// server's record via a full pull.
	ResolutionKeepServer Resolution = "keep-server"
)

// ResolveConflict settles one flagged record. MarkConflict recorded the
// server's version on the record, so a keep-local push passes the version
// check; keep-server unflags the record and lets a full pull overwrite it.
func (e *Engine) ResolveConflict(ctx context.Context, entityType models.EntityType, localID int64, resolution Resolution) error {
	switch resolution {
	case ResolutionKeepLocal:
		return e.resolveKeepLocal(ctx, entityType, localID)
	case ResolutionKeepServer:
		if err := e.store.DeleteQueueItemFor(ctx, entityType, localID); err != nil {
			return err
		}
		if err := e.store.ClearConflict(ctx, entityType, localID); err != nil {
			return err
		}
		return e.Repull(ctx)
	}
	return fmt.Errorf("unknown resolution %q", resolution)
}

func (e *Engine) resolveKeepLocal(ctx context.Context, entityType models.EntityType, localID int64) error {
	switch entityType {
	case models.EntityProject:
		p, err := e.store.GetProject(ctx, localID)
		if err != nil {
			return err
		}
		p.SyncStatus = models.SyncStatePending
		if err := e.store.UpdateProject(ctx, p); err != nil {
			return err
		}
		return e.Enqueue(ctx, entityType, localID, models.OpUpdate, ProjectChange(p))

	case models.EntityTimeEntry:
		t, err := e.store.GetTimeEntry(ctx, localID)
		if err != nil {
			return err
		}
		t.SyncStatus = models.SyncStatePending
		if err := e.store.UpdateTimeEntry(ctx, t); err != nil {
			return err
		}
		return e.Enqueue(ctx, entityType, localID, models.OpUpdate, TimeEntryChange(t))

	case models.EntityInvoice:
		inv, err := e.store.GetInvoice(ctx, localID)
		if err != nil {
			return err
		}
		inv.SyncStatus = models.SyncStatePending
		if err := e.store.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		return e.Enqueue(ctx, entityType, localID, models.OpUpdate, InvoiceChange(inv))

	case models.EntitySettings:
		s, err := e.store.GetSettings(ctx)
		if err != nil {
			return err
		}
		s.SyncStatus = models.SyncStatePending
		if err := e.store.SaveSettings(ctx, s); err != nil {
			return err
		}
		return e.Enqueue(ctx, entityType, 1, models.OpUpdate, SettingsChange(s))
	}
	return fmt.Errorf("entity type %q is not sync-tracked", entityType)
}
