package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trueloggs/timesync/internal/models"
	"github.com/trueloggs/timesync/internal/repositories"
)

// SyncService implements the authoritative side of the sync protocol:
// per-item push outcomes under the optimistic version rule, changed-since
// pull with tombstones, status counts, and the one-shot bulk migration.
type SyncService struct {
	projects    repositories.ProjectRepository
	timeEntries repositories.TimeEntryRepository
	invoices    repositories.InvoiceRepository
	settings    repositories.SettingsRepository
	recentTasks repositories.RecentTaskRepository
	statusCache repositories.StatusCache
}

func NewSyncService(
	projects repositories.ProjectRepository,
	timeEntries repositories.TimeEntryRepository,
	invoices repositories.InvoiceRepository,
	settings repositories.SettingsRepository,
	recentTasks repositories.RecentTaskRepository,
	statusCache repositories.StatusCache,
) *SyncService {
	return &SyncService{
		projects:    projects,
		timeEntries: timeEntries,
		invoices:    invoices,
		settings:    settings,
		recentTasks: recentTasks,
		statusCache: statusCache,
	}
}

// Status reports whether the user already has cloud data, and how much.
// Counts exclude soft-deleted rows. Served from the cache when warm.
func (s *SyncService) Status(ctx context.Context, userID uuid.UUID) (*models.StatusResponse, error) {
	if s.statusCache != nil {
		if counts, err := s.statusCache.Get(ctx, userID); err == nil && counts != nil {
			return &models.StatusResponse{
				HasExistingData: counts.Total() > 0,
				Counts:          *counts,
			}, nil
		}
	}

	projectCount, err := s.projects.CountActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	entryCount, err := s.timeEntries.CountActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	invoiceCount, err := s.invoices.CountActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	counts := models.EntityCounts{
		Projects:    projectCount,
		TimeEntries: entryCount,
		Invoices:    invoiceCount,
	}
	if s.statusCache != nil {
		_ = s.statusCache.Set(ctx, userID, counts)
	}

	return &models.StatusResponse{
		HasExistingData: counts.Total() > 0,
		Counts:          counts,
	}, nil
}

// Pull returns every row of the requested types modified after since
// (every row when since is nil), including tombstones so deletions reach
// other devices. SyncedAt is the completion timestamp clients persist as
// their next cursor.
func (s *SyncService) Pull(ctx context.Context, userID uuid.UUID, since *time.Time, entityTypes []string) (*models.PullResponse, error) {
	requested := make(map[string]bool)
	if len(entityTypes) == 0 {
		entityTypes = []string{"projects", "timeEntries", "invoices", "settings", "recentTasks"}
	}
	for _, t := range entityTypes {
		requested[t] = true
	}

	var data models.PullData
	var err error

	if requested["projects"] {
		data.Projects, err = s.projects.ListChangedSince(ctx, userID, since)
		if err != nil {
			return nil, err
		}
	}
	if requested["timeEntries"] {
		data.TimeEntries, err = s.timeEntries.ListChangedSince(ctx, userID, since)
		if err != nil {
			return nil, err
		}
	}
	if requested["invoices"] {
		data.Invoices, err = s.invoices.ListChangedSince(ctx, userID, since)
		if err != nil {
			return nil, err
		}
	}
	if requested["settings"] {
		settings, err := s.settings.Get(ctx, userID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
		if settings != nil {
			data.Settings = []models.CloudSettings{*settings}
		}
	}
	if requested["recentTasks"] {
		data.RecentTasks, err = s.recentTasks.List(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	return &models.PullResponse{
		Data:     data,
		SyncedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Push applies a batch of queued client mutations. Every item gets an
// individual outcome; a failing item never fails the batch.
func (s *SyncService) Push(ctx context.Context, userID uuid.UUID, req *models.PushRequest) (*models.PushResponse, error) {
	resp := &models.PushResponse{}

	for _, item := range req.Projects {
		resp.Projects = append(resp.Projects, s.pushProject(ctx, userID, item))
	}
	for _, item := range req.TimeEntries {
		resp.TimeEntries = append(resp.TimeEntries, s.pushTimeEntry(ctx, userID, item))
	}
	for _, item := range req.Invoices {
		resp.Invoices = append(resp.Invoices, s.pushInvoice(ctx, userID, item))
	}
	for _, item := range req.Settings {
		resp.Settings = append(resp.Settings, s.pushSettings(ctx, userID, item))
	}

	if s.statusCache != nil {
		_ = s.statusCache.Invalidate(ctx, userID)
	}
	return resp, nil
}

func (s *SyncService) pushProject(ctx context.Context, userID uuid.UUID, item models.PushItem) models.PushResult {
	switch item.Operation {
	case models.OpCreate:
		var payload models.ProjectPayload
		if err := json.Unmarshal(item.Data, &payload); err != nil {
			return errorResult(item, fmt.Sprintf("invalid project payload: %v", err))
		}
		now := time.Now().UTC()
		createdAt := payload.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		project := &models.CloudProject{
			UserID:      userID,
			LocalID:     &item.LocalID,
			Name:        payload.Name,
			ClientName:  payload.ClientName,
			HourlyRate:  payload.HourlyRate,
			Color:       payload.Color,
			Status:      payload.Status,
			SyncVersion: 1,
			CreatedAt:   createdAt,
			UpdatedAt:   now,
		}
		if project.Status == "" {
			project.Status = models.ProjectActive
		}
		if err := s.projects.Create(ctx, project); err != nil {
			return errorResult(item, err.Error())
		}
		return successResult(item.LocalID, project.CloudID, 1)

	case models.OpUpdate:
		if item.CloudID == nil {
			return errorResult(item, "update requires a cloud id")
		}
		existing, err := s.projects.GetByCloudID(ctx, userID, *item.CloudID)
		if errors.Is(err, repositories.ErrNotFound) {
			return errorResult(item, "not found")
		}
		if err != nil {
			return errorResult(item, err.Error())
		}
		// The stored version is ahead of the version the client believes
		// it is overwriting: conflict, return the full server record.
		if existing.SyncVersion > item.SyncVersion {
			return conflictResult(item, existing.SyncVersion, existing)
		}
		var payload models.ProjectPayload
		if err := json.Unmarshal(item.Data, &payload); err != nil {
			return errorResult(item, fmt.Sprintf("invalid project payload: %v", err))
		}
		existing.Name = payload.Name
		existing.ClientName = payload.ClientName
		existing.HourlyRate = payload.HourlyRate
		existing.Color = payload.Color
		existing.Status = payload.Status
		existing.SyncVersion++
		existing.UpdatedAt = time.Now().UTC()
		if err := s.projects.Update(ctx, existing); err != nil {
			return errorResult(item, err.Error())
		}
		return successResult(item.LocalID, existing.CloudID, existing.SyncVersion)

	case models.OpDelete:
		if item.CloudID == nil {
			return errorResult(item, "delete requires a cloud id")
		}
		// Deletes skip the version check deliberately: a tombstone always
		// wins, even over an update the client hasn't seen yet.
		if err := s.projects.SoftDelete(ctx, userID, *item.CloudID, item.SyncVersion+1); err != nil {
			return errorResult(item, err.Error())
		}
		return successResult(item.LocalID, *item.CloudID, item.SyncVersion+1)
	}
	return errorResult(item, "invalid operation")
}

func (s *SyncService) pushTimeEntry(ctx context.Context, userID uuid.UUID, item models.PushItem) models.PushResult {
	switch item.Operation {
	case models.OpCreate:
		var payload models.TimeEntryPayload
		if err := json.Unmarshal(item.Data, &payload); err != nil {
			return errorResult(item, fmt.Sprintf("invalid time entry payload: %v", err))
		}
		if payload.ProjectCloudID == "" {
			return errorResult(item, "time entry references no cloud project")
		}
		now := time.Now().UTC()
		createdAt := payload.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		entry := &models.CloudTimeEntry{
			UserID:         userID,
			LocalID:        &item.LocalID,
			ProjectCloudID: payload.ProjectCloudID,
			Date:           payload.Date,
			Duration:       payload.Duration,
			Notes:          payload.Notes,
			SyncVersion:    1,
			CreatedAt:      createdAt,
			UpdatedAt:      now,
		}
		if err := s.timeEntries.Create(ctx, entry); err != nil {
			return errorResult(item, err.Error())
		}
		return successResult(item.LocalID, entry.CloudID, 1)

	case models.OpUpdate:
		if item.CloudID == nil {
			return errorResult(item, "update requires a cloud id")
		}
		existing, err := s.timeEntries.GetByCloudID(ctx, userID, *item.CloudID)
		if errors.Is(err, repositories.ErrNotFound) {
			return errorResult(item, "not found")
		}
		if err != nil {
			return errorResult(item, err.Error())
		}
		if existing.SyncVersion > item.SyncVersion {
			return conflictResult(item, existing.SyncVersion, existing)
		}
		var payload models.TimeEntryPayload
		if err := json.Unmarshal(item.Data, &payload); err != nil {
			return errorResult(item, fmt.Sprintf("invalid time entry payload: %v", err))
		}
		existing.Date = payload.Date
		existing.Duration = payload.Duration
		existing.Notes = payload.Notes
		existing.SyncVersion++
		existing.UpdatedAt = time.Now().UTC()
		if err := s.timeEntries.Update(ctx, existing); err != nil {
			return errorResult(item, err.Error())
		}
		return successResult(item.LocalID, existing.CloudID, existing.SyncVersion)

	case models.OpDelete:
		if item.CloudID == nil {
			return errorResult(item, "delete requires a cloud id")
		}
		if err := s.timeEntries.SoftDelete(ctx, userID, *item.CloudID, item.SyncVersion+1); err != nil {
			return errorResult(item, err.Error())
		}
		return successResult(item.LocalID, *item.CloudID, item.SyncVersion+1)
	}
	return errorResult(item, "invalid operation")
}

func (s *SyncService) pushInvoice(ctx context.Context, userID uuid.UUID, item models.PushItem) models.PushResult {
	switch item.Operation {
	case models.OpCreate:
		var payload models.InvoicePayload
		if err := json.Unmarshal(item.Data, &payload); err != nil {
			return errorResult(item, fmt.Sprintf("invalid invoice payload: %v", err))
		}
		now := time.Now().UTC()
		createdAt := payload.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		invoice := &models.CloudInvoice{
			UserID:         userID,
			LocalID:        &item.LocalID,
			InvoiceNumber:  payload.InvoiceNumber,
			Status:         payload.Status,
			InvoiceDate:    payload.InvoiceDate,
			DueDate:        payload.DueDate,
			PaidAt:         payload.PaidAt,
			CompanyName:    payload.CompanyName,
			CompanyEmail:   payload.CompanyEmail,
			CompanyPhone:   payload.CompanyPhone,
			CompanyAddress: payload.CompanyAddress,
			ClientName:     payload.ClientName,
			ClientEmail:    payload.ClientEmail,
			ProjectName:    payload.ProjectName,
			ProjectColor:   payload.ProjectColor,
			ProjectCloudID: payload.ProjectCloudID,
			LineItems:      payload.LineItems,
			Subtotal:       payload.Subtotal,
			TaxRate:        payload.TaxRate,
			TaxAmount:      payload.TaxAmount,
			Total:          payload.Total,
			PeriodStart:    payload.PeriodStart,
			PeriodEnd:      payload.PeriodEnd,
			Notes:          payload.Notes,
			PaymentTerms:   payload.PaymentTerms,
			SyncVersion:    1,
			CreatedAt:      createdAt,
			UpdatedAt:      now,
		}
		if invoice.Status == "" {
			invoice.Status = models.InvoiceDraft
		}
		if invoice.LineItems == nil {
			invoice.LineItems = []models.InvoiceLineItem{}
		}
		if err := s.invoices.Create(ctx, invoice); err != nil {
			return errorResult(item, err.Error())
		}
		return successResult(item.LocalID, invoice.CloudID, 1)

	case models.OpUpdate:
		if item.CloudID == nil {
			return errorResult(item, "update requires a cloud id")
		}
		existing, err := s.invoices.GetByCloudID(ctx, userID, *item.CloudID)
		if errors.Is(err, repositories.ErrNotFound) {
			return errorResult(item, "not found")
		}
		if err != nil {
			return errorResult(item, err.Error())
		}
		if existing.SyncVersion > item.SyncVersion {
			return conflictResult(item, existing.SyncVersion, existing)
		}
		var payload models.InvoicePayload
		if err := json.Unmarshal(item.Data, &payload); err != nil {
			return errorResult(item, fmt.Sprintf("invalid invoice payload: %v", err))
		}
		existing.Status = payload.Status
		existing.PaidAt = payload.PaidAt
		existing.Notes = payload.Notes
		existing.SyncVersion++
		existing.UpdatedAt = time.Now().UTC()
		if err := s.invoices.Update(ctx, existing); err != nil {
			return errorResult(item, err.Error())
		}
		return successResult(item.LocalID, existing.CloudID, existing.SyncVersion)

	case models.OpDelete:
		if item.CloudID == nil {
			return errorResult(item, "delete requires a cloud id")
		}
		if err := s.invoices.SoftDelete(ctx, userID, *item.CloudID, item.SyncVersion+1); err != nil {
			return errorResult(item, err.Error())
		}
		return successResult(item.LocalID, *item.CloudID, item.SyncVersion+1)
	}
	return errorResult(item, "invalid operation")
}

// pushSettings upserts the per-user singleton under the same version rule
// as updates; the cloud id of the singleton is the user id.
func (s *SyncService) pushSettings(ctx context.Context, userID uuid.UUID, item models.PushItem) models.PushResult {
	if item.Operation == models.OpDelete {
		return errorResult(item, "settings cannot be deleted")
	}

	var payload models.SettingsPayload
	if err := json.Unmarshal(item.Data, &payload); err != nil {
		return errorResult(item, fmt.Sprintf("invalid settings payload: %v", err))
	}

	version := int64(1)
	existing, err := s.settings.Get(ctx, userID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return errorResult(item, err.Error())
	}
	if existing != nil {
		if existing.SyncVersion > item.SyncVersion {
			return conflictResult(item, existing.SyncVersion, existing)
		}
		version = existing.SyncVersion + 1
	}

	settings := &models.CloudSettings{
		UserID:          userID,
		Profile:         payload.Profile,
		WorkSettings:    payload.WorkSettings,
		InvoiceSettings: payload.InvoiceSettings,
		Theme:           payload.Theme,
		SyncVersion:     version,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return errorResult(item, err.Error())
	}
	return successResult(item.LocalID, userID.String(), version)
}

// Migrate bulk-inserts a device's full local snapshot, assigning cloud ids
// as it goes. Rows that fail are skipped and reported individually; the
// batch is never rolled back as a group.
func (s *SyncService) Migrate(ctx context.Context, userID uuid.UUID, req *models.MigrateRequest) (*models.MigrateResponse, error) {
	resp := &models.MigrateResponse{
		Mappings: models.MigrateMappings{
			Projects:    make(map[int64]string),
			TimeEntries: make(map[int64]string),
			Invoices:    make(map[int64]string),
		},
		Errors: []string{},
	}
	now := time.Now().UTC()

	for _, p := range req.Projects {
		localID := p.ID
		project := &models.CloudProject{
			UserID:      userID,
			LocalID:     &localID,
			Name:        p.Name,
			ClientName:  p.ClientName,
			HourlyRate:  p.HourlyRate,
			Color:       p.Color,
			Status:      p.Status,
			SyncVersion: 1,
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		}
		if err := s.projects.Create(ctx, project); err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("failed to migrate project %d: %v", p.ID, err))
			continue
		}
		resp.Mappings.Projects[p.ID] = project.CloudID
	}

	for _, e := range req.TimeEntries {
		projectCloudID, ok := resp.Mappings.Projects[e.ProjectID]
		if !ok {
			resp.Errors = append(resp.Errors, fmt.Sprintf("time entry %d references unknown project %d", e.ID, e.ProjectID))
			continue
		}
		localID := e.ID
		entry := &models.CloudTimeEntry{
			UserID:         userID,
			LocalID:        &localID,
			ProjectCloudID: projectCloudID,
			Date:           e.Date,
			Duration:       e.Duration,
			Notes:          e.Notes,
			SyncVersion:    1,
			CreatedAt:      e.CreatedAt,
			UpdatedAt:      e.UpdatedAt,
		}
		if err := s.timeEntries.Create(ctx, entry); err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("failed to migrate time entry %d: %v", e.ID, err))
			continue
		}
		resp.Mappings.TimeEntries[e.ID] = entry.CloudID
	}

	for _, inv := range req.Invoices {
		var projectCloudID *string
		if inv.ProjectID != nil {
			if mapped, ok := resp.Mappings.Projects[*inv.ProjectID]; ok {
				projectCloudID = &mapped
			}
		}
		localID := inv.ID
		lineItems := inv.LineItems
		if lineItems == nil {
			lineItems = []models.InvoiceLineItem{}
		}
		invoice := &models.CloudInvoice{
			UserID:         userID,
			LocalID:        &localID,
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
			ProjectCloudID: projectCloudID,
			LineItems:      lineItems,
			Subtotal:       inv.Subtotal,
			TaxRate:        inv.TaxRate,
			TaxAmount:      inv.TaxAmount,
			Total:          inv.Total,
			PeriodStart:    inv.PeriodStart,
			PeriodEnd:      inv.PeriodEnd,
			Notes:          inv.Notes,
			PaymentTerms:   inv.PaymentTerms,
			SyncVersion:    1,
			CreatedAt:      inv.CreatedAt,
			UpdatedAt:      inv.UpdatedAt,
		}
		if err := s.invoices.Create(ctx, invoice); err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("failed to migrate invoice %d: %v", inv.ID, err))
			continue
		}
		resp.Mappings.Invoices[inv.ID] = invoice.CloudID
	}

	if req.Settings != nil {
		version := int64(1)
		if existing, err := s.settings.Get(ctx, userID); err == nil && existing != nil {
			version = existing.SyncVersion + 1
		}
		settings := &models.CloudSettings{
			UserID:          userID,
			Profile:         req.Settings.Profile,
			WorkSettings:    req.Settings.WorkSettings,
			InvoiceSettings: req.Settings.InvoiceSettings,
			Theme:           req.Settings.Theme,
			SyncVersion:     version,
			UpdatedAt:       now,
		}
		if err := s.settings.Upsert(ctx, settings); err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("failed to migrate settings: %v", err))
		}
	}

	for _, t := range req.RecentTasks {
		projectCloudID, ok := resp.Mappings.Projects[t.ProjectID]
		if !ok {
			continue
		}
		localID := t.ID
		// Recent tasks are convenience data; failures are not reported.
		_ = s.recentTasks.Create(ctx, &models.CloudRecentTask{
			UserID:          userID,
			LocalID:         &localID,
			ProjectCloudID:  projectCloudID,
			TaskDescription: t.TaskDescription,
			LastUsedAt:      t.LastUsedAt,
			UsageCount:      t.UsageCount,
			SyncVersion:     1,
		})
	}

	if s.statusCache != nil {
		_ = s.statusCache.Invalidate(ctx, userID)
	}

	resp.Success = len(resp.Errors) == 0
	resp.Migrated = models.EntityCounts{
		Projects:    len(resp.Mappings.Projects),
		TimeEntries: len(resp.Mappings.TimeEntries),
		Invoices:    len(resp.Mappings.Invoices),
	}
	return resp, nil
}

func successResult(localID int64, cloudID string, version int64) models.PushResult {
	return models.PushResult{
		LocalID:     localID,
		CloudID:     cloudID,
		SyncVersion: version,
		Status:      models.PushSuccess,
	}
}

func conflictResult(item models.PushItem, serverVersion int64, serverRecord any) models.PushResult {
	serverData, _ := json.Marshal(serverRecord)
	result := models.PushResult{
		LocalID:     item.LocalID,
		SyncVersion: serverVersion,
		Status:      models.PushConflict,
		ServerData:  serverData,
	}
	if item.CloudID != nil {
		result.CloudID = *item.CloudID
	}
	return result
}

func errorResult(item models.PushItem, msg string) models.PushResult {
	result := models.PushResult{
		LocalID:     item.LocalID,
		SyncVersion: item.SyncVersion,
		Status:      models.PushError,
		Error:       msg,
	}
	if item.CloudID != nil {
		result.CloudID = *item.CloudID
	}
	return result
}
