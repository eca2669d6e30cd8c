package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trueloggs/timesync/internal/models"
	"github.com/trueloggs/timesync/internal/repositories"
	"github.com/trueloggs/timesync/internal/services"
)

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	auth := services.NewAuthService(repositories.NewMemoryAccountRepository(), "test-secret", time.Hour)
	sync := services.NewSyncService(
		repositories.NewMemoryProjectRepository(),
		repositories.NewMemoryTimeEntryRepository(),
		repositories.NewMemoryInvoiceRepository(),
		repositories.NewMemorySettingsRepository(),
		repositories.NewMemoryRecentTaskRepository(),
		repositories.NewMemoryStatusCache(),
	)
	return NewRouter(auth, sync)
}

func doJSON(t *testing.T, r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAPIFlow(t *testing.T) {
	r := setupRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/auth/register", "",
		`{"email":"dev@example.com","password":"correct-horse-battery"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, r, http.MethodPost, "/api/auth/login", "",
		`{"email":"dev@example.com","password":"correct-horse-battery"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login services.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	// Sync endpoints reject missing and bogus tokens.
	rec = doJSON(t, r, http.MethodGet, "/api/sync/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doJSON(t, r, http.MethodGet, "/api/sync/status", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/sync/status", login.Token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status models.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.HasExistingData)

	rec = doJSON(t, r, http.MethodPost, "/api/sync/push", login.Token,
		`{"projects":[{"operation":"create","localId":1,"data":{"name":"API Project","hourlyRate":75,"color":"#fff","status":"active"},"syncVersion":0}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var push models.PushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &push))
	require.Len(t, push.Projects, 1)
	assert.Equal(t, models.PushSuccess, push.Projects[0].Status)
	assert.NotEmpty(t, push.Projects[0].CloudID)

	rec = doJSON(t, r, http.MethodGet, "/api/sync/pull", login.Token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pull models.PullResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pull))
	require.Len(t, pull.Data.Projects, 1)
	assert.Equal(t, "API Project", pull.Data.Projects[0].Name)
	require.NotEmpty(t, pull.SyncedAt)

	// An incremental pull from the returned cursor is empty.
	rec = doJSON(t, r, http.MethodGet, "/api/sync/pull?lastSyncedAt="+pull.SyncedAt, login.Token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var incremental models.PullResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &incremental))
	assert.Empty(t, incremental.Data.Projects)

	rec = doJSON(t, r, http.MethodPost, "/api/sync/migrate", login.Token,
		`{"projects":[{"id":5,"name":"Bulk","hourlyRate":60,"color":"#000","status":"active"}],"timeEntries":[],"invoices":[],"recentTasks":[]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var migrate models.MigrateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &migrate))
	assert.True(t, migrate.Success)
	assert.Equal(t, 1, migrate.Migrated.Projects)
	assert.NotEmpty(t, migrate.Mappings.Projects[5])
}

func TestPullRejectsBadCursor(t *testing.T) {
	r := setupRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/auth/register", "",
		`{"email":"dev@example.com","password":"correct-horse-battery"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/api/auth/login", "",
		`{"email":"dev@example.com","password":"correct-horse-battery"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var login services.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	rec = doJSON(t, r, http.MethodGet, "/api/sync/pull?lastSyncedAt=yesterday", login.Token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	r := setupRouter(t)
	body := `{"email":"dev@example.com","password":"correct-horse-battery"}`
	rec := doJSON(t, r, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
