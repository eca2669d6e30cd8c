package localstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trueloggs/timesync/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProjectCRUD(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	p := &models.Project{
		Name:        "Website Redesign",
		ClientName:  "Acme",
		HourlyRate:  85,
		Color:       "#ff0000",
		Status:      models.ProjectActive,
		SyncStatus:  models.SyncStatePending,
		SyncVersion: 1,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.InsertProject(ctx, p))
	require.NotZero(t, p.ID)

	got, err := store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Website Redesign", got.Name)
	assert.Equal(t, models.SyncStatePending, got.SyncStatus)
	assert.Nil(t, got.CloudID)

	got.Name = "Website Relaunch"
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpdateProject(ctx, got))

	got, err = store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Website Relaunch", got.Name)

	require.NoError(t, store.DeleteProject(ctx, p.ID))
	_, err = store.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkSyncedAssignsCloudIdentity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	p := &models.Project{Name: "P", SyncStatus: models.SyncStatePending, SyncVersion: 1,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.InsertProject(ctx, p))

	require.NoError(t, store.MarkSynced(ctx, models.EntityProject, p.ID, "cloud-123", 4))

	got, err := store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CloudID)
	assert.Equal(t, "cloud-123", *got.CloudID)
	assert.Equal(t, models.SyncStateSynced, got.SyncStatus)
	assert.Equal(t, int64(4), got.SyncVersion)
}

func TestQueueCoalescesPerRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := &models.ChangeQueueItem{
		EntityType: models.EntityProject,
		EntityID:   7,
		Operation:  models.OpCreate,
		Payload:    []byte(`{"name":"v1"}`),
		EnqueuedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertQueueItem(ctx, first))
	require.NoError(t, store.RecordQueueFailure(ctx, mustQueueID(t, store, models.EntityProject, 7), "boom"))

	// A newer mutation for the same record replaces the pending one and
	// resets the retry state.
	second := &models.ChangeQueueItem{
		EntityType: models.EntityProject,
		EntityID:   7,
		Operation:  models.OpUpdate,
		Payload:    []byte(`{"name":"v2"}`),
		EnqueuedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertQueueItem(ctx, second))

	items, err := store.ListQueueItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.OpUpdate, items[0].Operation)
	assert.JSONEq(t, `{"name":"v2"}`, string(items[0].Payload))
	assert.Zero(t, items[0].RetryCount)
	assert.Nil(t, items[0].LastError)

	// A different record queues independently.
	third := &models.ChangeQueueItem{
		EntityType: models.EntityProject,
		EntityID:   8,
		Operation:  models.OpCreate,
		Payload:    []byte(`{}`),
		EnqueuedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertQueueItem(ctx, third))
	n, err := store.CountQueueItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAckOnlyRemovesUnchangedQueueItem(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	drained := &models.ChangeQueueItem{
		EntityType: models.EntityProject,
		EntityID:   7,
		Operation:  models.OpCreate,
		Payload:    []byte(`{"name":"v1"}`),
		EnqueuedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertQueueItem(ctx, drained))
	snapshot, err := store.GetQueueItem(ctx, models.EntityProject, 7)
	require.NoError(t, err)

	// A newer mutation coalesces into the same row while the drained
	// payload is on the wire.
	replacement := &models.ChangeQueueItem{
		EntityType: models.EntityProject,
		EntityID:   7,
		Operation:  models.OpUpdate,
		Payload:    []byte(`{"name":"v2"}`),
		EnqueuedAt: snapshot.EnqueuedAt.Add(50 * time.Millisecond),
	}
	require.NoError(t, store.UpsertQueueItem(ctx, replacement))

	acked, err := store.AckQueueItem(ctx, snapshot.ID, snapshot.EnqueuedAt)
	require.NoError(t, err)
	assert.False(t, acked, "stale ack must not remove the newer mutation")

	survivor, err := store.GetQueueItem(ctx, models.EntityProject, 7)
	require.NoError(t, err)
	assert.Equal(t, snapshot.ID, survivor.ID, "coalescing reuses the row")
	assert.JSONEq(t, `{"name":"v2"}`, string(survivor.Payload))

	acked, err = store.AckQueueItem(ctx, survivor.ID, survivor.EnqueuedAt)
	require.NoError(t, err)
	assert.True(t, acked)
	_, err = store.GetQueueItem(ctx, models.EntityProject, 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func mustQueueID(t *testing.T, store *Store, entityType models.EntityType, entityID int64) int64 {
	t.Helper()
	item, err := store.GetQueueItem(context.Background(), entityType, entityID)
	require.NoError(t, err)
	return item.ID
}

func TestQueueFailureKeepsItemWithError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := &models.ChangeQueueItem{
		EntityType: models.EntityInvoice,
		EntityID:   3,
		Operation:  models.OpCreate,
		Payload:    []byte(`{}`),
		EnqueuedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertQueueItem(ctx, item))
	id := mustQueueID(t, store, models.EntityInvoice, 3)

	require.NoError(t, store.RecordQueueFailure(ctx, id, "server said no"))
	require.NoError(t, store.RecordQueueFailure(ctx, id, "still no"))

	got, err := store.GetQueueItem(ctx, models.EntityInvoice, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "still no", *got.LastError)
}

func TestMappingLookupBothDirections(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	m := &models.IDMapping{
		EntityType: models.EntityTimeEntry,
		LocalID:    42,
		CloudID:    "cloud-te-1",
		UserID:     "user-1",
	}
	require.NoError(t, store.SaveMapping(ctx, m))

	byLocal, err := store.GetMappingByLocalID(ctx, models.EntityTimeEntry, 42, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cloud-te-1", byLocal.CloudID)

	byCloud, err := store.GetMappingByCloudID(ctx, models.EntityTimeEntry, "cloud-te-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), byCloud.LocalID)

	// Scoped per user: another user's lookup misses.
	_, err = store.GetMappingByLocalID(ctx, models.EntityTimeEntry, 42, "user-2")
	assert.ErrorIs(t, err, ErrNotFound)

	// Re-saving replaces the cloud id for the same local record.
	m.CloudID = "cloud-te-2"
	require.NoError(t, store.SaveMapping(ctx, m))
	byLocal, err = store.GetMappingByLocalID(ctx, models.EntityTimeEntry, 42, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cloud-te-2", byLocal.CloudID)
}

func TestCursorPersistsPerUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	cursor, err := store.GetCursor(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, cursor)

	require.NoError(t, store.SetCursor(ctx, "user-1", "2026-08-29T10:00:00Z"))
	require.NoError(t, store.SetCursor(ctx, "user-1", "2026-08-29T11:00:00Z"))

	cursor, err = store.GetCursor(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-29T11:00:00Z", cursor)

	cursor, err = store.GetCursor(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	errBoom := errors.New("boom")
	err := store.WithTx(ctx, func(tx *Tx) error {
		p := &models.Project{Name: "doomed", SyncStatus: models.SyncStatePending, SyncVersion: 1,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
		if err := tx.InsertProject(ctx, p); err != nil {
			return err
		}
		if err := tx.SetCursor(ctx, "user-1", "2026-08-29T12:00:00Z"); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	projects, err := store.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)

	cursor, err := store.GetCursor(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, cursor, "cursor must not advance when the batch rolled back")
}

func TestSettingsDefaultsAndRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	s, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, s.WorkSettings.TargetHoursPerWeek)
	assert.Equal(t, "INV", s.InvoiceSettings.InvoicePrefix)

	s.Profile.FullName = "Jordan Freelance"
	s.WorkSettings.WorkDays = [7]bool{true, true, false, true, true, false, false}
	s.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.SaveSettings(ctx, s))

	got, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Jordan Freelance", got.Profile.FullName)
	assert.Equal(t, s.WorkSettings.WorkDays, got.WorkSettings.WorkDays)
}

func TestWipeClearsEverything(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	p := &models.Project{Name: "P", SyncStatus: models.SyncStatePending, SyncVersion: 1,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.InsertProject(ctx, p))
	require.NoError(t, store.UpsertQueueItem(ctx, &models.ChangeQueueItem{
		EntityType: models.EntityProject, EntityID: p.ID,
		Operation: models.OpCreate, Payload: []byte(`{}`), EnqueuedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SetCursor(ctx, "user-1", "2026-08-29T10:00:00Z"))

	require.NoError(t, store.Wipe(ctx))

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Total())
	n, err := store.CountQueueItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	cursor, err := store.GetCursor(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, cursor)
}
