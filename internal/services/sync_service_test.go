package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trueloggs/timesync/internal/models"
	"github.com/trueloggs/timesync/internal/repositories"
)

func newTestSyncService() *SyncService {
	return NewSyncService(
		repositories.NewMemoryProjectRepository(),
		repositories.NewMemoryTimeEntryRepository(),
		repositories.NewMemoryInvoiceRepository(),
		repositories.NewMemorySettingsRepository(),
		repositories.NewMemoryRecentTaskRepository(),
		repositories.NewMemoryStatusCache(),
	)
}

func projectData(t *testing.T, name string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(models.ProjectPayload{
		Name: name, HourlyRate: 80, Color: "#00ff00", Status: models.ProjectActive,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return b
}

func TestPushCreateAssignsIdentity(t *testing.T) {
	svc := newTestSyncService()
	ctx := context.Background()
	userID := uuid.New()

	resp, err := svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{{
			Operation: models.OpCreate, LocalID: 1, Data: projectData(t, "New Project"),
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Projects, 1)

	res := resp.Projects[0]
	assert.Equal(t, models.PushSuccess, res.Status)
	assert.Equal(t, int64(1), res.LocalID)
	assert.NotEmpty(t, res.CloudID)
	assert.Equal(t, int64(1), res.SyncVersion)
}

func TestPushUpdateVersionRule(t *testing.T) {
	svc := newTestSyncService()
	ctx := context.Background()
	userID := uuid.New()

	created, err := svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{{Operation: models.OpCreate, LocalID: 1, Data: projectData(t, "P")}},
	})
	require.NoError(t, err)
	cloudID := created.Projects[0].CloudID

	// Client version equals stored version: the write applies and the
	// version advances.
	resp, err := svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{{
			Operation: models.OpUpdate, LocalID: 1, CloudID: &cloudID,
			Data: projectData(t, "P renamed"), SyncVersion: 1,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, models.PushSuccess, resp.Projects[0].Status)
	assert.Equal(t, int64(2), resp.Projects[0].SyncVersion)

	// A stale client version is rejected with the full server record.
	resp, err = svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{{
			Operation: models.OpUpdate, LocalID: 1, CloudID: &cloudID,
			Data: projectData(t, "stale edit"), SyncVersion: 1,
		}},
	})
	require.NoError(t, err)
	res := resp.Projects[0]
	assert.Equal(t, models.PushConflict, res.Status)
	assert.Equal(t, int64(2), res.SyncVersion)

	var server models.CloudProject
	require.NoError(t, json.Unmarshal(res.ServerData, &server))
	assert.Equal(t, "P renamed", server.Name, "conflict carries the server's current record")
}

func TestPushDeleteSkipsVersionCheck(t *testing.T) {
	svc := newTestSyncService()
	ctx := context.Background()
	userID := uuid.New()

	created, err := svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{{Operation: models.OpCreate, LocalID: 1, Data: projectData(t, "P")}},
	})
	require.NoError(t, err)
	cloudID := created.Projects[0].CloudID

	// Bump the stored version past what the deleting client knows.
	_, err = svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{{
			Operation: models.OpUpdate, LocalID: 1, CloudID: &cloudID,
			Data: projectData(t, "edited elsewhere"), SyncVersion: 1,
		}},
	})
	require.NoError(t, err)

	resp, err := svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{{
			Operation: models.OpDelete, LocalID: 1, CloudID: &cloudID, SyncVersion: 1,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PushSuccess, resp.Projects[0].Status, "tombstones always win")

	// The tombstone is visible to pull.
	pull, err := svc.Pull(ctx, userID, nil, []string{"projects"})
	require.NoError(t, err)
	require.Len(t, pull.Data.Projects, 1)
	assert.NotNil(t, pull.Data.Projects[0].DeletedAt)
}

func TestPushPerItemOutcomes(t *testing.T) {
	svc := newTestSyncService()
	ctx := context.Background()
	userID := uuid.New()

	missing := "no-such-cloud-id"
	resp, err := svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{
			{Operation: models.OpCreate, LocalID: 1, Data: projectData(t, "good")},
			{Operation: models.OpUpdate, LocalID: 2, CloudID: &missing, Data: projectData(t, "bad"), SyncVersion: 1},
		},
	})
	require.NoError(t, err, "a failing item never fails the batch")
	require.Len(t, resp.Projects, 2)
	assert.Equal(t, models.PushSuccess, resp.Projects[0].Status)
	assert.Equal(t, models.PushError, resp.Projects[1].Status)
	assert.NotEmpty(t, resp.Projects[1].Error)
}

func TestPullReturnsOnlyRowsAfterCursor(t *testing.T) {
	svc := newTestSyncService()
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{{Operation: models.OpCreate, LocalID: 1, Data: projectData(t, "old")}},
	})
	require.NoError(t, err)

	cutoff := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)

	created, err := svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{{Operation: models.OpCreate, LocalID: 2, Data: projectData(t, "new")}},
	})
	require.NoError(t, err)

	resp, err := svc.Pull(ctx, userID, &cutoff, []string{"projects"})
	require.NoError(t, err)
	require.Len(t, resp.Data.Projects, 1, "only rows changed after the cursor")
	assert.Equal(t, created.Projects[0].CloudID, resp.Data.Projects[0].CloudID)
	assert.NotEmpty(t, resp.SyncedAt)
}

func TestStatusCountsAndCache(t *testing.T) {
	svc := newTestSyncService()
	ctx := context.Background()
	userID := uuid.New()

	status, err := svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.False(t, status.HasExistingData)

	_, err = svc.Push(ctx, userID, &models.PushRequest{
		Projects: []models.PushItem{{Operation: models.OpCreate, LocalID: 1, Data: projectData(t, "P")}},
	})
	require.NoError(t, err)

	// Push invalidated the cache, so the new count is visible.
	status, err = svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.True(t, status.HasExistingData)
	assert.Equal(t, 1, status.Counts.Projects)
}

func TestMigrateBulkUpload(t *testing.T) {
	svc := newTestSyncService()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	resp, err := svc.Migrate(ctx, userID, &models.MigrateRequest{
		Projects: []models.Project{
			{ID: 10, Name: "A", HourlyRate: 90, Status: models.ProjectActive, CreatedAt: now, UpdatedAt: now},
		},
		TimeEntries: []models.TimeEntry{
			{ID: 20, ProjectID: 10, Date: "2026-08-01", Duration: 120, CreatedAt: now, UpdatedAt: now},
			{ID: 21, ProjectID: 999, Date: "2026-08-02", Duration: 60, CreatedAt: now, UpdatedAt: now},
		},
		Settings: &models.SettingsPayload{Theme: models.ThemeDark},
	})
	require.NoError(t, err)

	assert.False(t, resp.Success, "the orphaned time entry is reported")
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "unknown project")

	assert.Len(t, resp.Mappings.Projects, 1)
	assert.Len(t, resp.Mappings.TimeEntries, 1)
	assert.Equal(t, 1, resp.Migrated.Projects)
	assert.Equal(t, 1, resp.Migrated.TimeEntries)

	// Children were linked through the freshly assigned project ids.
	pull, err := svc.Pull(ctx, userID, nil, nil)
	require.NoError(t, err)
	require.Len(t, pull.Data.TimeEntries, 1)
	assert.Equal(t, resp.Mappings.Projects[10], pull.Data.TimeEntries[0].ProjectCloudID)
	require.Len(t, pull.Data.Settings, 1)
	assert.Equal(t, models.ThemeDark, pull.Data.Settings[0].Theme)
}

func TestSettingsPushUpsertsSingleton(t *testing.T) {
	svc := newTestSyncService()
	ctx := context.Background()
	userID := uuid.New()

	data, err := json.Marshal(models.SettingsPayload{Theme: models.ThemeLight})
	require.NoError(t, err)

	resp, err := svc.Push(ctx, userID, &models.PushRequest{
		Settings: []models.PushItem{{Operation: models.OpUpdate, LocalID: 1, Data: data}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Settings, 1)
	assert.Equal(t, models.PushSuccess, resp.Settings[0].Status)
	assert.Equal(t, int64(1), resp.Settings[0].SyncVersion)
	assert.Equal(t, userID.String(), resp.Settings[0].CloudID)

	// Second write continues the version sequence.
	resp, err = svc.Push(ctx, userID, &models.PushRequest{
		Settings: []models.PushItem{{Operation: models.OpUpdate, LocalID: 1, Data: data, SyncVersion: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Settings[0].SyncVersion)
}
