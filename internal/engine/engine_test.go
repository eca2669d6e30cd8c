package engine

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trueloggs/timesync/internal/handlers"
	"github.com/trueloggs/timesync/internal/localstore"
	"github.com/trueloggs/timesync/internal/models"
	"github.com/trueloggs/timesync/internal/repositories"
	"github.com/trueloggs/timesync/internal/services"
)

// backend is a full sync server on in-memory repositories, plus the
// credentials of one registered user.
type backend struct {
	server *httptest.Server
	userID string
	token  string
}

func newBackend(t *testing.T) *backend {
	return newBackendWrapped(t, func(h http.Handler) http.Handler { return h })
}

// newBackendWrapped lets a test interpose on the server's requests, e.g.
// to interleave local mutations while a push is on the wire.
func newBackendWrapped(t *testing.T, wrap func(http.Handler) http.Handler) *backend {
	t.Helper()

	auth := services.NewAuthService(repositories.NewMemoryAccountRepository(), "test-secret", time.Hour)
	svc := services.NewSyncService(
		repositories.NewMemoryProjectRepository(),
		repositories.NewMemoryTimeEntryRepository(),
		repositories.NewMemoryInvoiceRepository(),
		repositories.NewMemorySettingsRepository(),
		repositories.NewMemoryRecentTaskRepository(),
		repositories.NewMemoryStatusCache(),
	)
	server := httptest.NewServer(wrap(handlers.NewRouter(auth, svc)))
	t.Cleanup(server.Close)

	ctx := context.Background()
	require.NoError(t, auth.Register(ctx, "freelancer@example.com", "correct-horse-battery"))
	login, err := auth.Login(ctx, "freelancer@example.com", "correct-horse-battery")
	require.NoError(t, err)

	return &backend{server: server, userID: login.UserID.String(), token: login.Token}
}

// newDevice simulates one device: its own local database and engine,
// signed in against the shared backend.
func (b *backend) newDevice(t *testing.T) (*Engine, *localstore.Store) {
	t.Helper()
	store, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := NewClient(b.server.Client(), b.server.URL)
	eng := New(store, client, WithLogger(log.New(io.Discard, "", 0)))
	eng.SetUser(b.userID, b.token)
	return eng, store
}

func addLocalProject(t *testing.T, store *localstore.Store, name string) *models.Project {
	t.Helper()
	now := time.Now().UTC()
	p := &models.Project{
		Name: name, HourlyRate: 100, Color: "#3b82f6", Status: models.ProjectActive,
		SyncStatus: models.SyncStatePending, SyncVersion: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.InsertProject(context.Background(), p))
	return p
}

func TestCreatePushAssignsCloudIdentity(t *testing.T) {
	b := newBackend(t)
	eng, store := b.newDevice(t)
	ctx := context.Background()

	p := addLocalProject(t, store, "Website")
	require.NoError(t, eng.Enqueue(ctx, models.EntityProject, p.ID, models.OpCreate, ProjectChange(p)))

	require.NoError(t, eng.SyncNow(ctx))

	got, err := store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, got.SyncStatus)
	require.NotNil(t, got.CloudID)
	assert.Equal(t, int64(1), got.SyncVersion)

	m, err := store.GetMappingByLocalID(ctx, models.EntityProject, p.ID, b.userID)
	require.NoError(t, err)
	assert.Equal(t, *got.CloudID, m.CloudID)

	pending, err := eng.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	cursor, err := store.GetCursor(ctx, b.userID)
	require.NoError(t, err)
	assert.NotEmpty(t, cursor, "cursor persists after a committed pull")
}

func TestSecondDeviceReceivesCreate(t *testing.T) {
	b := newBackend(t)
	engA, storeA := b.newDevice(t)
	engB, storeB := b.newDevice(t)
	ctx := context.Background()

	p := addLocalProject(t, storeA, "Shared Project")
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, p.ID, models.OpCreate, ProjectChange(p)))
	require.NoError(t, engA.SyncNow(ctx))

	require.NoError(t, engB.SyncNow(ctx))

	projects, err := storeB.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Shared Project", projects[0].Name)
	assert.Equal(t, models.SyncStateSynced, projects[0].SyncStatus)

	// Pulling again must not duplicate the record.
	require.NoError(t, engB.SyncNow(ctx))
	projects, err = storeB.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestConcurrentEditFlagsConflict(t *testing.T) {
	b := newBackend(t)
	engA, storeA := b.newDevice(t)
	engB, storeB := b.newDevice(t)
	ctx := context.Background()

	pA := addLocalProject(t, storeA, "Contested")
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, pA.ID, models.OpCreate, ProjectChange(pA)))
	require.NoError(t, engA.SyncNow(ctx))
	require.NoError(t, engB.SyncNow(ctx))

	// Device A edits and pushes first: server version 1 -> 2.
	pA, err := storeA.GetProject(ctx, pA.ID)
	require.NoError(t, err)
	pA.Name = "Renamed by A"
	require.NoError(t, storeA.UpdateProject(ctx, pA))
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, pA.ID, models.OpUpdate, ProjectChange(pA)))
	require.NoError(t, engA.SyncNow(ctx))

	// Device B edits the same record off its stale version 1.
	projectsB, err := storeB.ListProjects(ctx)
	require.NoError(t, err)
	pB := &projectsB[0]
	pB.Name = "Renamed by B"
	require.NoError(t, storeB.UpdateProject(ctx, pB))
	require.NoError(t, engB.Enqueue(ctx, models.EntityProject, pB.ID, models.OpUpdate, ProjectChange(pB)))
	require.NoError(t, engB.SyncNow(ctx))

	got, err := storeB.GetProject(ctx, pB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateConflict, got.SyncStatus)
	assert.Equal(t, "Renamed by B", got.Name, "local copy is held for the user")
	assert.Equal(t, int64(2), got.SyncVersion, "server version recorded for resolution")

	conflicts, err := engB.ConflictCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, conflicts)

	// Another pull leaves the flagged record alone.
	require.NoError(t, engB.SyncNow(ctx))
	got, err = storeB.GetProject(ctx, pB.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed by B", got.Name)
}

func TestResolveConflictKeepLocalWinsNextPush(t *testing.T) {
	b := newBackend(t)
	engA, storeA := b.newDevice(t)
	engB, storeB := b.newDevice(t)
	ctx := context.Background()

	pA := addLocalProject(t, storeA, "Contested")
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, pA.ID, models.OpCreate, ProjectChange(pA)))
	require.NoError(t, engA.SyncNow(ctx))
	require.NoError(t, engB.SyncNow(ctx))

	pA, err := storeA.GetProject(ctx, pA.ID)
	require.NoError(t, err)
	pA.Name = "A's version"
	require.NoError(t, storeA.UpdateProject(ctx, pA))
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, pA.ID, models.OpUpdate, ProjectChange(pA)))
	require.NoError(t, engA.SyncNow(ctx))

	projectsB, err := storeB.ListProjects(ctx)
	require.NoError(t, err)
	pB := &projectsB[0]
	pB.Name = "B's version"
	require.NoError(t, storeB.UpdateProject(ctx, pB))
	require.NoError(t, engB.Enqueue(ctx, models.EntityProject, pB.ID, models.OpUpdate, ProjectChange(pB)))
	require.NoError(t, engB.SyncNow(ctx))

	require.NoError(t, engB.ResolveConflict(ctx, models.EntityProject, pB.ID, ResolutionKeepLocal))
	require.NoError(t, engB.SyncNow(ctx))

	got, err := storeB.GetProject(ctx, pB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, got.SyncStatus)
	assert.Equal(t, "B's version", got.Name)
	assert.Equal(t, int64(3), got.SyncVersion)

	// Device A converges on B's copy.
	require.NoError(t, engA.SyncNow(ctx))
	gotA, err := storeA.GetProject(ctx, pA.ID)
	require.NoError(t, err)
	assert.Equal(t, "B's version", gotA.Name)
}

func TestResolveConflictKeepServerAdoptsRemote(t *testing.T) {
	b := newBackend(t)
	engA, storeA := b.newDevice(t)
	engB, storeB := b.newDevice(t)
	ctx := context.Background()

	pA := addLocalProject(t, storeA, "Contested")
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, pA.ID, models.OpCreate, ProjectChange(pA)))
	require.NoError(t, engA.SyncNow(ctx))
	require.NoError(t, engB.SyncNow(ctx))

	pA, err := storeA.GetProject(ctx, pA.ID)
	require.NoError(t, err)
	pA.Name = "A's version"
	require.NoError(t, storeA.UpdateProject(ctx, pA))
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, pA.ID, models.OpUpdate, ProjectChange(pA)))
	require.NoError(t, engA.SyncNow(ctx))

	projectsB, err := storeB.ListProjects(ctx)
	require.NoError(t, err)
	pB := &projectsB[0]
	pB.Name = "B's version"
	require.NoError(t, storeB.UpdateProject(ctx, pB))
	require.NoError(t, engB.Enqueue(ctx, models.EntityProject, pB.ID, models.OpUpdate, ProjectChange(pB)))
	require.NoError(t, engB.SyncNow(ctx))

	require.NoError(t, engB.ResolveConflict(ctx, models.EntityProject, pB.ID, ResolutionKeepServer))

	got, err := storeB.GetProject(ctx, pB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, got.SyncStatus)
	assert.Equal(t, "A's version", got.Name, "server copy replaces the local one")
	assert.Equal(t, int64(2), got.SyncVersion)

	pending, err := engB.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "the conflicted item left the queue")
}

func TestRemoteDeletePropagates(t *testing.T) {
	b := newBackend(t)
	engA, storeA := b.newDevice(t)
	engB, storeB := b.newDevice(t)
	ctx := context.Background()

	p := addLocalProject(t, storeA, "Doomed")
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, p.ID, models.OpCreate, ProjectChange(p)))
	require.NoError(t, engA.SyncNow(ctx))
	require.NoError(t, engB.SyncNow(ctx))

	// Device A deletes: the row goes immediately, the tombstone queues.
	got, err := storeA.GetProject(ctx, p.ID)
	require.NoError(t, err)
	version := got.SyncVersion
	require.NoError(t, storeA.DeleteProject(ctx, p.ID))
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, p.ID, models.OpDelete, DeleteChange(version)))
	require.NoError(t, engA.SyncNow(ctx))

	_, err = storeA.GetMappingByLocalID(ctx, models.EntityProject, p.ID, b.userID)
	assert.ErrorIs(t, err, localstore.ErrNotFound, "mapping released after acked delete")

	require.NoError(t, engB.SyncNow(ctx))
	projects, err := storeB.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestDeleteOfUnpushedCreateCancelsQueueItem(t *testing.T) {
	b := newBackend(t)
	eng, store := b.newDevice(t)
	ctx := context.Background()

	p := addLocalProject(t, store, "Never leaves")
	require.NoError(t, eng.Enqueue(ctx, models.EntityProject, p.ID, models.OpCreate, ProjectChange(p)))
	require.NoError(t, store.DeleteProject(ctx, p.ID))
	require.NoError(t, eng.Enqueue(ctx, models.EntityProject, p.ID, models.OpDelete, DeleteChange(1)))

	pending, err := eng.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "create followed by delete never reaches the server")
}

func TestEditDuringPushIsNotLost(t *testing.T) {
	var (
		mu   sync.Mutex
		edit func()
	)
	b := newBackendWrapped(t, func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/sync/push" {
				mu.Lock()
				fire := edit
				edit = nil
				mu.Unlock()
				if fire != nil {
					fire()
				}
			}
			h.ServeHTTP(w, r)
		})
	})
	eng, store := b.newDevice(t)
	engB, storeB := b.newDevice(t)
	ctx := context.Background()

	p := addLocalProject(t, store, "v1")
	require.NoError(t, eng.Enqueue(ctx, models.EntityProject, p.ID, models.OpCreate, ProjectChange(p)))

	// While the create is on the wire, the user renames the record.
	// The new mutation coalesces into the queue row the in-flight batch
	// was drained from; the ack for the old payload must not eat it.
	mu.Lock()
	edit = func() {
		fresh, err := store.GetProject(ctx, p.ID)
		if !assert.NoError(t, err) {
			return
		}
		fresh.Name = "v2"
		fresh.SyncStatus = models.SyncStatePending
		fresh.UpdatedAt = time.Now().UTC()
		assert.NoError(t, store.UpdateProject(ctx, fresh))
		assert.NoError(t, eng.Enqueue(ctx, models.EntityProject, p.ID, models.OpUpdate, ProjectChange(fresh)))
	}
	mu.Unlock()

	require.NoError(t, eng.SyncNow(ctx))

	got, err := store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Name, "the rename survives the stale ack")
	assert.Equal(t, models.SyncStateSynced, got.SyncStatus)
	assert.Equal(t, int64(2), got.SyncVersion, "the rename reached the server")

	pending, err := eng.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	// The other device sees the renamed copy, not the drained snapshot.
	require.NoError(t, engB.SyncNow(ctx))
	projects, err := storeB.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "v2", projects[0].Name)
}

func TestChildFollowsParentWithinOneCycle(t *testing.T) {
	b := newBackend(t)
	eng, store := b.newDevice(t)
	ctx := context.Background()

	p := addLocalProject(t, store, "Parent")
	now := time.Now().UTC()
	entry := &models.TimeEntry{
		ProjectID: p.ID, Date: "2026-08-28", Duration: 90, Notes: "kickoff",
		SyncStatus: models.SyncStatePending, SyncVersion: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.InsertTimeEntry(ctx, entry))

	require.NoError(t, eng.Enqueue(ctx, models.EntityProject, p.ID, models.OpCreate, ProjectChange(p)))
	require.NoError(t, eng.Enqueue(ctx, models.EntityTimeEntry, entry.ID, models.OpCreate, TimeEntryChange(entry)))

	// One cycle: the first push pass creates the project, the second
	// resolves the entry's parent cloud id and creates it.
	require.NoError(t, eng.SyncNow(ctx))

	gotEntry, err := store.GetTimeEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, gotEntry.SyncStatus)
	require.NotNil(t, gotEntry.CloudID)

	pending, err := eng.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestPullSkipsEntryWhoseParentWasDeleted(t *testing.T) {
	b := newBackend(t)
	engA, storeA := b.newDevice(t)
	ctx := context.Background()

	p := addLocalProject(t, storeA, "Short-lived")
	now := time.Now().UTC()
	entry := &models.TimeEntry{
		ProjectID: p.ID, Date: "2026-08-29", Duration: 45,
		SyncStatus: models.SyncStatePending, SyncVersion: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, storeA.InsertTimeEntry(ctx, entry))
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, p.ID, models.OpCreate, ProjectChange(p)))
	require.NoError(t, engA.Enqueue(ctx, models.EntityTimeEntry, entry.ID, models.OpCreate, TimeEntryChange(entry)))
	require.NoError(t, engA.SyncNow(ctx))

	// The project is deleted on the cloud; the entry stays behind,
	// pointing at a parent a fresh device will never materialize.
	got, err := storeA.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, storeA.DeleteProject(ctx, p.ID))
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, p.ID, models.OpDelete, DeleteChange(got.SyncVersion)))
	require.NoError(t, engA.SyncNow(ctx))

	engB, storeB := b.newDevice(t)
	require.NoError(t, engB.SyncNow(ctx), "an unresolvable entry must not fail the cycle")

	entries, err := storeB.ListTimeEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "the orphaned entry is skipped, not half-applied")

	cursor, err := storeB.GetCursor(ctx, b.userID)
	require.NoError(t, err)
	assert.NotEmpty(t, cursor, "the batch still commits")
}

func TestRepullRecoversEntrySkippedAsOrphan(t *testing.T) {
	b := newBackend(t)
	engA, storeA := b.newDevice(t)
	engB, storeB := b.newDevice(t)
	ctx := context.Background()

	p := addLocalProject(t, storeA, "Retainer")
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, p.ID, models.OpCreate, ProjectChange(p)))
	require.NoError(t, engA.SyncNow(ctx))
	require.NoError(t, engB.SyncNow(ctx))

	// Device B loses its copy of the project outside the sync path, so
	// the next incremental pull cannot resolve the entry's parent.
	projectsB, err := storeB.ListProjects(ctx)
	require.NoError(t, err)
	require.NoError(t, storeB.DeleteProject(ctx, projectsB[0].ID))
	require.NoError(t, storeB.DeleteMapping(ctx, models.EntityProject, projectsB[0].ID, b.userID))

	now := time.Now().UTC()
	entry := &models.TimeEntry{
		ProjectID: p.ID, Date: "2026-08-29", Duration: 120, Notes: "retained work",
		SyncStatus: models.SyncStatePending, SyncVersion: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, storeA.InsertTimeEntry(ctx, entry))
	require.NoError(t, engA.Enqueue(ctx, models.EntityTimeEntry, entry.ID, models.OpCreate, TimeEntryChange(entry)))
	require.NoError(t, engA.SyncNow(ctx))

	// The entry arrives, is skipped, and the cursor moves past it: a
	// further incremental cycle will not see it again.
	require.NoError(t, engB.SyncNow(ctx))
	require.NoError(t, engB.SyncNow(ctx))
	entries, err := storeB.ListTimeEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	// A full repull reapplies the project first, so the entry's parent
	// mapping exists by the time the entry is applied.
	require.NoError(t, engB.Repull(ctx))

	projectsB, err = storeB.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projectsB, 1)
	entries, err = storeB.ListTimeEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, projectsB[0].ID, entries[0].ProjectID)
	assert.Equal(t, "retained work", entries[0].Notes)
	assert.Equal(t, models.SyncStateSynced, entries[0].SyncStatus)
}

func TestOfflineQueuesAndDrainsOnReconnect(t *testing.T) {
	b := newBackend(t)
	eng, store := b.newDevice(t)
	ctx := context.Background()

	eng.SetOnline(false)
	p := addLocalProject(t, store, "Offline work")
	require.NoError(t, eng.Enqueue(ctx, models.EntityProject, p.ID, models.OpCreate, ProjectChange(p)))

	assert.ErrorIs(t, eng.SyncNow(ctx), ErrOffline)
	pending, err := eng.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	eng.SetOnline(true)
	require.NoError(t, eng.SyncNow(ctx))
	pending, err = eng.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestSyncRequiresUser(t *testing.T) {
	b := newBackend(t)
	eng, _ := b.newDevice(t)
	eng.Disable()

	assert.ErrorIs(t, eng.SyncNow(context.Background()), ErrNoUser)
}

func TestSubscribeObservesStatusChanges(t *testing.T) {
	b := newBackend(t)
	eng, _ := b.newDevice(t)

	var statuses []Status
	unsubscribe := eng.Subscribe(func(s Status) { statuses = append(statuses, s) })
	require.NotEmpty(t, statuses, "subscriber gets the current status immediately")
	assert.True(t, statuses[0].Enabled)

	eng.SetOnline(false)
	last := statuses[len(statuses)-1]
	assert.False(t, last.Online)

	unsubscribe()
	n := len(statuses)
	eng.SetOnline(true)
	assert.Len(t, statuses, n, "no notifications after unsubscribe")
}

func TestSettingsRoundTripBetweenDevices(t *testing.T) {
	b := newBackend(t)
	engA, storeA := b.newDevice(t)
	engB, storeB := b.newDevice(t)
	ctx := context.Background()

	sA, err := storeA.GetSettings(ctx)
	require.NoError(t, err)
	sA.Profile.FullName = "Jordan Freelance"
	sA.Theme = models.ThemeDark
	sA.UpdatedAt = time.Now().UTC()
	require.NoError(t, storeA.SaveSettings(ctx, sA))
	require.NoError(t, engA.Enqueue(ctx, models.EntitySettings, 1, models.OpUpdate, SettingsChange(sA)))
	require.NoError(t, engA.SyncNow(ctx))

	require.NoError(t, engB.SyncNow(ctx))
	sB, err := storeB.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Jordan Freelance", sB.Profile.FullName)
	assert.Equal(t, models.ThemeDark, sB.Theme)
	assert.Equal(t, models.SyncStateSynced, sB.SyncStatus)
}
