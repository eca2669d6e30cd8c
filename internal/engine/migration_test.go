package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trueloggs/timesync/internal/models"
)

func TestCheckMigrationReportsBothSides(t *testing.T) {
	b := newBackend(t)
	engA, storeA := b.newDevice(t)
	ctx := context.Background()

	check, err := engA.CheckMigration(ctx)
	require.NoError(t, err)
	assert.False(t, check.CloudHasData)
	assert.False(t, check.LocalHasData)
	assert.False(t, check.NeedsDecision)

	addLocalProject(t, storeA, "Local Only")
	check, err = engA.CheckMigration(ctx)
	require.NoError(t, err)
	assert.True(t, check.LocalHasData)
	assert.False(t, check.NeedsDecision, "no decision needed while the cloud is empty")

	// Seed the cloud from a second device, then both sides hold data.
	engB, storeB := b.newDevice(t)
	p := addLocalProject(t, storeB, "Cloud Seed")
	require.NoError(t, engB.Enqueue(ctx, models.EntityProject, p.ID, models.OpCreate, ProjectChange(p)))
	require.NoError(t, engB.SyncNow(ctx))

	check, err = engA.CheckMigration(ctx)
	require.NoError(t, err)
	assert.True(t, check.CloudHasData)
	assert.Equal(t, 1, check.CloudCounts.Projects)
	assert.True(t, check.NeedsDecision)
}

func TestMigrateMergeUploadsSnapshot(t *testing.T) {
	b := newBackend(t)
	eng, store := b.newDevice(t)
	ctx := context.Background()

	p := addLocalProject(t, store, "Migrated Project")
	now := time.Now().UTC()
	entry := &models.TimeEntry{
		ProjectID: p.ID, Date: "2026-08-20", Duration: 240,
		SyncStatus: models.SyncStatePending, SyncVersion: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.InsertTimeEntry(ctx, entry))

	require.NoError(t, eng.Migrate(ctx, models.MigrateMerge))

	// Every local record now carries its cloud identity.
	gotP, err := store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, gotP.SyncStatus)
	require.NotNil(t, gotP.CloudID)

	gotE, err := store.GetTimeEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, gotE.SyncStatus)

	m, err := store.GetMappingByLocalID(ctx, models.EntityProject, p.ID, b.userID)
	require.NoError(t, err)
	assert.Equal(t, *gotP.CloudID, m.CloudID)

	// A second device sees the migrated data.
	engB, storeB := b.newDevice(t)
	require.NoError(t, engB.SyncNow(ctx))
	projects, err := storeB.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Migrated Project", projects[0].Name)
	entries, err := storeB.ListTimeEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMigrateKeepCloudReplacesLocalData(t *testing.T) {
	b := newBackend(t)
	engA, storeA := b.newDevice(t)
	ctx := context.Background()

	seed := addLocalProject(t, storeA, "Cloud Project")
	require.NoError(t, engA.Enqueue(ctx, models.EntityProject, seed.ID, models.OpCreate, ProjectChange(seed)))
	require.NoError(t, engA.SyncNow(ctx))

	engB, storeB := b.newDevice(t)
	addLocalProject(t, storeB, "Local Project")

	require.NoError(t, engB.Migrate(ctx, models.MigrateKeepCloud))

	projects, err := storeB.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Cloud Project", projects[0].Name)
	assert.Equal(t, models.SyncStateSynced, projects[0].SyncStatus)

	// The discarded local project must not resurface anywhere.
	status, err := engB.CheckMigration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CloudCounts.Projects)
}

func TestMigrateCancelDisablesEngine(t *testing.T) {
	b := newBackend(t)
	eng, store := b.newDevice(t)
	ctx := context.Background()

	addLocalProject(t, store, "Guest Data")
	require.NoError(t, eng.Migrate(ctx, models.MigrateCancel))

	assert.False(t, eng.Status().Enabled)
	assert.ErrorIs(t, eng.SyncNow(ctx), ErrNoUser)

	// Local data stays usable offline.
	projects, err := store.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}
