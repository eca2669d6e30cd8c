package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trueloggs/timesync/internal/models"
)

// In-memory repositories backing tests and local development runs. They
// honor the same contracts as the Postgres implementations: soft deletes,
// changed-since listing with tombstones, server-assigned cloud ids.

type MemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]models.Account
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: map[uuid.UUID]models.Account{}}
}

func (r *MemoryAccountRepository) Create(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account.ID = uuid.New()
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt
	r.accounts[account.ID] = *account
	return nil
}

func (r *MemoryAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *MemoryAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email && a.DeletedAt == nil {
			account := a
			return &account, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryAccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	a.DeletedAt = &now
	r.accounts[id] = a
	return nil
}

type MemoryProjectRepository struct {
	mu       sync.Mutex
	projects map[string]models.CloudProject
}

func NewMemoryProjectRepository() *MemoryProjectRepository {
	return &MemoryProjectRepository{projects: map[string]models.CloudProject{}}
}

func (r *MemoryProjectRepository) GetByCloudID(ctx context.Context, userID uuid.UUID, cloudID string) (*models.CloudProject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[cloudID]
	if !ok || p.UserID != userID || p.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryProjectRepository) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]models.CloudProject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CloudProject
	for _, p := range r.projects {
		if p.UserID == userID && (since == nil || p.UpdatedAt.After(*since)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryProjectRepository) Create(ctx context.Context, project *models.CloudProject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	project.CloudID = uuid.NewString()
	r.projects[project.CloudID] = *project
	return nil
}

func (r *MemoryProjectRepository) Update(ctx context.Context, project *models.CloudProject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.projects[project.CloudID]
	if !ok || existing.UserID != project.UserID || existing.DeletedAt != nil {
		return ErrNotFound
	}
	r.projects[project.CloudID] = *project
	return nil
}

func (r *MemoryProjectRepository) SoftDelete(ctx context.Context, userID uuid.UUID, cloudID string, syncVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[cloudID]
	if !ok || p.UserID != userID {
		return ErrNotFound
	}
	now := time.Now().UTC()
	p.DeletedAt = &now
	p.UpdatedAt = now
	p.SyncVersion = syncVersion
	r.projects[cloudID] = p
	return nil
}

func (r *MemoryProjectRepository) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.projects {
		if p.UserID == userID && p.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

type MemoryTimeEntryRepository struct {
	mu      sync.Mutex
	entries map[string]models.CloudTimeEntry
}

func NewMemoryTimeEntryRepository() *MemoryTimeEntryRepository {
	return &MemoryTimeEntryRepository{entries: map[string]models.CloudTimeEntry{}}
}

func (r *MemoryTimeEntryRepository) GetByCloudID(ctx context.Context, userID uuid.UUID, cloudID string) (*models.CloudTimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cloudID]
	if !ok || e.UserID != userID || e.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (r *MemoryTimeEntryRepository) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]models.CloudTimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CloudTimeEntry
	for _, e := range r.entries {
		if e.UserID == userID && (since == nil || e.UpdatedAt.After(*since)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryTimeEntryRepository) Create(ctx context.Context, entry *models.CloudTimeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.CloudID = uuid.NewString()
	r.entries[entry.CloudID] = *entry
	return nil
}

func (r *MemoryTimeEntryRepository) Update(ctx context.Context, entry *models.CloudTimeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.entries[entry.CloudID]
	if !ok || existing.UserID != entry.UserID || existing.DeletedAt != nil {
		return ErrNotFound
	}
	r.entries[entry.CloudID] = *entry
	return nil
}

func (r *MemoryTimeEntryRepository) SoftDelete(ctx context.Context, userID uuid.UUID, cloudID string, syncVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cloudID]
	if !ok || e.UserID != userID {
		return ErrNotFound
	}
	now := time.Now().UTC()
	e.DeletedAt = &now
	e.UpdatedAt = now
	e.SyncVersion = syncVersion
	r.entries[cloudID] = e
	return nil
}

func (r *MemoryTimeEntryRepository) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.UserID == userID && e.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

type MemoryInvoiceRepository struct {
	mu       sync.Mutex
	invoices map[string]models.CloudInvoice
}

func NewMemoryInvoiceRepository() *MemoryInvoiceRepository {
	return &MemoryInvoiceRepository{invoices: map[string]models.CloudInvoice{}}
}

func (r *MemoryInvoiceRepository) GetByCloudID(ctx context.Context, userID uuid.UUID, cloudID string) (*models.CloudInvoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[cloudID]
	if !ok || inv.UserID != userID || inv.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (r *MemoryInvoiceRepository) ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]models.CloudInvoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CloudInvoice
	for _, inv := range r.invoices {
		if inv.UserID == userID && (since == nil || inv.UpdatedAt.After(*since)) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *MemoryInvoiceRepository) Create(ctx context.Context, invoice *models.CloudInvoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice.CloudID = uuid.NewString()
	r.invoices[invoice.CloudID] = *invoice
	return nil
}

func (r *MemoryInvoiceRepository) Update(ctx context.Context, invoice *models.CloudInvoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.invoices[invoice.CloudID]
	if !ok || existing.UserID != invoice.UserID || existing.DeletedAt != nil {
		return ErrNotFound
	}
	r.invoices[invoice.CloudID] = *invoice
	return nil
}

func (r *MemoryInvoiceRepository) SoftDelete(ctx context.Context, userID uuid.UUID, cloudID string, syncVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[cloudID]
	if !ok || inv.UserID != userID {
		return ErrNotFound
	}
	now := time.Now().UTC()
	inv.DeletedAt = &now
	inv.UpdatedAt = now
	inv.SyncVersion = syncVersion
	r.invoices[cloudID] = inv
	return nil
}

func (r *MemoryInvoiceRepository) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inv := range r.invoices {
		if inv.UserID == userID && inv.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

type MemorySettingsRepository struct {
	mu       sync.Mutex
	settings map[uuid.UUID]models.CloudSettings
}

func NewMemorySettingsRepository() *MemorySettingsRepository {
	return &MemorySettingsRepository{settings: map[uuid.UUID]models.CloudSettings{}}
}

func (r *MemorySettingsRepository) Get(ctx context.Context, userID uuid.UUID) (*models.CloudSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *MemorySettingsRepository) Upsert(ctx context.Context, settings *models.CloudSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[settings.UserID] = *settings
	return nil
}

type MemoryRecentTaskRepository struct {
	mu    sync.Mutex
	tasks map[string]models.CloudRecentTask
}

func NewMemoryRecentTaskRepository() *MemoryRecentTaskRepository {
	return &MemoryRecentTaskRepository{tasks: map[string]models.CloudRecentTask{}}
}

func (r *MemoryRecentTaskRepository) List(ctx context.Context, userID uuid.UUID) ([]models.CloudRecentTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CloudRecentTask
	for _, t := range r.tasks {
		if t.UserID == userID && t.DeletedAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *MemoryRecentTaskRepository) Create(ctx context.Context, task *models.CloudRecentTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task.CloudID = uuid.NewString()
	r.tasks[task.CloudID] = *task
	return nil
}

type MemoryStatusCache struct {
	mu     sync.Mutex
	counts map[uuid.UUID]models.EntityCounts
}

func NewMemoryStatusCache() *MemoryStatusCache {
	return &MemoryStatusCache{counts: map[uuid.UUID]models.EntityCounts{}}
}

func (c *MemoryStatusCache) Get(ctx context.Context, userID uuid.UUID) (*models.EntityCounts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts, ok := c.counts[userID]
	if !ok {
		return nil, nil
	}
	return &counts, nil
}

func (c *MemoryStatusCache) Set(ctx context.Context, userID uuid.UUID, counts models.EntityCounts) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[userID] = counts
	return nil
}

func (c *MemoryStatusCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, userID)
	return nil
}
