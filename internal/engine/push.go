package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trueloggs/timesync/internal/models"
)

// maxPushPasses bounds the create-then-reference chase: a child whose
// parent has no cloud id yet is deferred to the next pass, which runs
// after the parent's create has been acknowledged.
const maxPushPasses = 3

// DeleteChange is the queue payload for a delete: the last version the
// device saw, carried so the tombstone continues the version sequence.
func DeleteChange(syncVersion int64) json.RawMessage {
	b, _ := json.Marshal(struct {
		SyncVersion int64 `json:"syncVersion"`
	}{syncVersion})
	return b
}

// push drains the change queue. Items are grouped into one batch request
// per pass; per-item outcomes decide what leaves the queue.
func (e *Engine) push(ctx context.Context) error {
	userID := e.currentUser()
	for pass := 0; pass < maxPushPasses; pass++ {
		items, err := e.store.ListQueueItems(ctx)
		if err != nil {
			return fmt.Errorf("read change queue: %w", err)
		}
		if len(items) == 0 {
			return nil
		}

		req, sent := e.buildPushRequest(ctx, userID, items)
		if len(sent) == 0 {
			return nil
		}
		resp, err := e.client.Push(ctx, req)
		if err != nil {
			return err
		}
		progressed, err := e.applyPushResults(ctx, userID, sent, resp)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
	return nil
}

type sentKey struct {
	entityType models.EntityType
	localID    int64
}

// buildPushRequest turns queue items into wire items, resolving cloud ids
// from the mapping table. Items that cannot be addressed yet (a child of
// a not-yet-created parent, an update whose create is still pending) are
// left queued for the next pass.
func (e *Engine) buildPushRequest(ctx context.Context, userID string, items []models.ChangeQueueItem) (*models.PushRequest, map[sentKey]models.ChangeQueueItem) {
	req := &models.PushRequest{}
	sent := make(map[sentKey]models.ChangeQueueItem)

	for _, item := range items {
		wireItem, ok := e.buildPushItem(ctx, userID, item)
		if !ok {
			continue
		}
		switch item.EntityType {
		case models.EntityProject:
			req.Projects = append(req.Projects, wireItem)
		case models.EntityTimeEntry:
			req.TimeEntries = append(req.TimeEntries, wireItem)
		case models.EntityInvoice:
			req.Invoices = append(req.Invoices, wireItem)
		case models.EntitySettings:
			req.Settings = append(req.Settings, wireItem)
		default:
			continue
		}
		sent[sentKey{item.EntityType, item.EntityID}] = item
	}
	return req, sent
}

func (e *Engine) buildPushItem(ctx context.Context, userID string, item models.ChangeQueueItem) (models.PushItem, bool) {
	wireItem := models.PushItem{
		Operation: item.Operation,
		LocalID:   item.EntityID,
		CloudID:   item.CloudID,
		Data:      item.Payload,
	}

	if wireItem.CloudID == nil && item.EntityType != models.EntitySettings {
		if m, err := e.store.GetMappingByLocalID(ctx, item.EntityType, item.EntityID, userID); err == nil {
			wireItem.CloudID = &m.CloudID
		}
	}

	switch item.Operation {
	case models.OpCreate:
		if !e.resolveParentCloudID(ctx, userID, item, &wireItem) {
			return wireItem, false
		}
	case models.OpUpdate:
		if wireItem.CloudID == nil && item.EntityType != models.EntitySettings {
			return wireItem, false
		}
		version, state := e.localState(ctx, item)
		if state == models.SyncStateConflict {
			// Flagged records wait for an explicit resolution.
			return wireItem, false
		}
		wireItem.SyncVersion = version
	case models.OpDelete:
		if wireItem.CloudID == nil {
			return wireItem, false
		}
		var payload struct {
			SyncVersion int64 `json:"syncVersion"`
		}
		json.Unmarshal(item.Payload, &payload)
		wireItem.SyncVersion = payload.SyncVersion
	}
	return wireItem, true
}

// resolveParentCloudID fills the denormalized parent project cloud id
// into a child payload, reading the mapping table. Returns false when the
// parent has no cloud identity yet.
func (e *Engine) resolveParentCloudID(ctx context.Context, userID string, item models.ChangeQueueItem, wireItem *models.PushItem) bool {
	switch item.EntityType {
	case models.EntityTimeEntry:
		var payload models.TimeEntryPayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return false
		}
		if payload.ProjectCloudID != "" {
			return true
		}
		entry, err := e.store.GetTimeEntry(ctx, item.EntityID)
		if err != nil {
			return false
		}
		m, err := e.store.GetMappingByLocalID(ctx, models.EntityProject, entry.ProjectID, userID)
		if err != nil {
			return false
		}
		payload.ProjectCloudID = m.CloudID
		wireItem.Data, _ = json.Marshal(payload)
		return true

	case models.EntityInvoice:
		var payload models.InvoicePayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return false
		}
		if payload.ProjectCloudID != nil {
			return true
		}
		inv, err := e.store.GetInvoice(ctx, item.EntityID)
		if err != nil || inv.ProjectID == nil {
			// An invoice without a project link is still pushable.
			return err == nil
		}
		if m, err := e.store.GetMappingByLocalID(ctx, models.EntityProject, *inv.ProjectID, userID); err == nil {
			payload.ProjectCloudID = &m.CloudID
			wireItem.Data, _ = json.Marshal(payload)
		}
		return true
	}
	return true
}

func (e *Engine) localState(ctx context.Context, item models.ChangeQueueItem) (int64, models.SyncState) {
	switch item.EntityType {
	case models.EntityProject:
		if p, err := e.store.GetProject(ctx, item.EntityID); err == nil {
			return p.SyncVersion, p.SyncStatus
		}
	case models.EntityTimeEntry:
		if t, err := e.store.GetTimeEntry(ctx, item.EntityID); err == nil {
			return t.SyncVersion, t.SyncStatus
		}
	case models.EntityInvoice:
		if inv, err := e.store.GetInvoice(ctx, item.EntityID); err == nil {
			return inv.SyncVersion, inv.SyncStatus
		}
	case models.EntitySettings:
		if s, err := e.store.GetSettings(ctx); err == nil {
			return s.SyncVersion, s.SyncStatus
		}
	}
	return 0, models.SyncStatePending
}

// applyPushResults settles the queue against per-item outcomes: acked
// items leave the queue with their new identity recorded, conflicted
// items stay queued but flagged so they are not retransmitted, failed
// items stay queued with their retry state bumped.
func (e *Engine) applyPushResults(ctx context.Context, userID string, sent map[sentKey]models.ChangeQueueItem, resp *models.PushResponse) (bool, error) {
	progressed := false
	apply := func(entityType models.EntityType, results []models.PushResult) error {
		for _, res := range results {
			item, ok := sent[sentKey{entityType, res.LocalID}]
			if !ok {
				continue
			}
			switch res.Status {
			case models.PushSuccess:
				// The ack only removes the item if it is unchanged since the
				// drain: a mutation enqueued during the round trip coalesced
				// into the same row and must survive to the next pass.
				acked, err := e.store.AckQueueItem(ctx, item.ID, item.EnqueuedAt)
				if err != nil {
					return err
				}
				if item.Operation == models.OpDelete {
					if err := e.store.DeleteMapping(ctx, entityType, item.EntityID, userID); err != nil {
						return err
					}
				} else {
					if acked {
						if err := e.store.MarkSynced(ctx, entityType, item.EntityID, res.CloudID, res.SyncVersion); err != nil {
							return err
						}
					} else {
						if err := e.store.SetCloudIdentity(ctx, entityType, item.EntityID, res.CloudID, res.SyncVersion); err != nil {
							return err
						}
						if item.Operation == models.OpCreate {
							// The record now exists remotely; the surviving
							// item travels as an update.
							if err := e.store.SetQueueItemOperation(ctx, item.ID, models.OpUpdate); err != nil {
								return err
							}
						}
					}
					if entityType != models.EntitySettings {
						err := e.store.SaveMapping(ctx, &models.IDMapping{
							EntityType: entityType,
							LocalID:    item.EntityID,
							CloudID:    res.CloudID,
							UserID:     userID,
						})
						if err != nil {
							return err
						}
					}
				}
				progressed = true

			case models.PushConflict:
				// The local record stays flagged and its item stays queued,
				// holding the user's data until an explicit resolution;
				// flagged items are not retransmitted and pulls leave
				// flagged records alone.
				if err := e.store.MarkConflict(ctx, entityType, item.EntityID, res.SyncVersion); err != nil {
					return err
				}

			case models.PushError:
				if err := e.store.RecordQueueFailure(ctx, item.ID, res.Error); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := apply(models.EntityProject, resp.Projects); err != nil {
		return progressed, err
	}
	if err := apply(models.EntityTimeEntry, resp.TimeEntries); err != nil {
		return progressed, err
	}
	if err := apply(models.EntityInvoice, resp.Invoices); err != nil {
		return progressed, err
	}
	if err := apply(models.EntitySettings, resp.Settings); err != nil {
		return progressed, err
	}
	return progressed, nil
}
