package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/trueloggs/timesync/internal/models"
	"github.com/trueloggs/timesync/internal/services"
)

type SyncHandler struct {
	sync *services.SyncService
}

func NewSyncHandler(sync *services.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Status reports whether the account already holds cloud data, for the
// first-enable migration decision.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp, err := h.sync.Status(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sync status")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Pull serves changed-since data. Query params: lastSyncedAt (RFC 3339
// cursor, omitted on first pull) and entityTypes (comma-separated list).
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("lastSyncedAt"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lastSyncedAt parameter")
			return
		}
		since = &t
	}
	var entityTypes []string
	if raw := r.URL.Query().Get("entityTypes"); raw != "" {
		entityTypes = strings.Split(raw, ",")
	}

	resp, err := h.sync.Pull(r.Context(), UserIDFromContext(r.Context()), since, entityTypes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to pull changes")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req models.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	resp, err := h.sync.Push(r.Context(), UserIDFromContext(r.Context()), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to push changes")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SyncHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	var req models.MigrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	resp, err := h.sync.Migrate(r.Context(), UserIDFromContext(r.Context()), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to migrate data")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
