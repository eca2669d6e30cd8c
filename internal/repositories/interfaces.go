package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/trueloggs/timesync/internal/models"
)

var ErrNotFound = errors.New("not found")

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProjectRepository is the cloud-side project table. ListChangedSince
// returns rows modified after since (all rows when since is nil),
// tombstones included so deletions reach other devices. The optimistic
// version compare lives in the sync service, not here: the service needs
// the full server record to hand back on conflict.
type ProjectRepository interface {
	GetByCloudID(ctx context.Context, userID uuid.UUID, cloudID string) (*models.CloudProject, error)
	ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]models.CloudProject, error)
	Create(ctx context.Context, project *models.CloudProject) error
	Update(ctx context.Context, project *models.CloudProject) error
	SoftDelete(ctx context.Context, userID uuid.UUID, cloudID string, syncVersion int64) error
	CountActive(ctx context.Context, userID uuid.UUID) (int, error)
}

type TimeEntryRepository interface {
	GetByCloudID(ctx context.Context, userID uuid.UUID, cloudID string) (*models.CloudTimeEntry, error)
	ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]models.CloudTimeEntry, error)
	Create(ctx context.Context, entry *models.CloudTimeEntry) error
	Update(ctx context.Context, entry *models.CloudTimeEntry) error
	SoftDelete(ctx context.Context, userID uuid.UUID, cloudID string, syncVersion int64) error
	CountActive(ctx context.Context, userID uuid.UUID) (int, error)
}

type InvoiceRepository interface {
	GetByCloudID(ctx context.Context, userID uuid.UUID, cloudID string) (*models.CloudInvoice, error)
	ListChangedSince(ctx context.Context, userID uuid.UUID, since *time.Time) ([]models.CloudInvoice, error)
	Create(ctx context.Context, invoice *models.CloudInvoice) error
	Update(ctx context.Context, invoice *models.CloudInvoice) error
	SoftDelete(ctx context.Context, userID uuid.UUID, cloudID string, syncVersion int64) error
	CountActive(ctx context.Context, userID uuid.UUID) (int, error)
}

// SettingsRepository stores the per-user singleton.
type SettingsRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.CloudSettings, error)
	Upsert(ctx context.Context, settings *models.CloudSettings) error
}

type RecentTaskRepository interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.CloudRecentTask, error)
	Create(ctx context.Context, task *models.CloudRecentTask) error
}

// StatusCache caches the per-user record counts served by the status
// endpoint. A miss returns (nil, nil).
type StatusCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.EntityCounts, error)
	Set(ctx context.Context, userID uuid.UUID, counts models.EntityCounts) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}
