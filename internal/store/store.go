package store

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	ModelStore
	ConfigStore

	CreateDiagnosis(ctx context.Context, d *models.Diagnosis) error
	GetDiagnosis(ctx context.Context, id uuid.UUID) (*models.Diagnosis, error)
	ListDiagnoses(ctx context.Context, filter DiagnosisFilter) ([]*models.Diagnosis, int, error)
}

// ModelStore is the model-registry collection. A model's backend is fixed at
// creation; only the active flag can change afterwards.
type ModelStore interface {
	ListModels(ctx context.Context) ([]*models.ModelRecord, error)
	FilterModels(ctx context.Context, filter ModelFilter) ([]*models.ModelRecord, error)
	GetModel(ctx context.Context, id string) (*models.ModelRecord, error)
	CreateModel(ctx context.Context, m *models.ModelRecord) error
	SetModelActive(ctx context.Context, id string, active bool) error
}

// ConfigStore is the system-configuration collection. There is normally a
// single record; callers use the first one listed.
type ConfigStore interface {
	ListSystemConfigurations(ctx context.Context) ([]*models.SystemConfiguration, error)
	CreateSystemConfiguration(ctx context.Context, cfg *models.SystemConfiguration) error
	UpdateSystemConfiguration(ctx context.Context, id string, opts ...ConfigUpdateOption) error
}

// ModelFilter narrows FilterModels. Nil fields match everything.
type ModelFilter struct {
	Active         *bool
	Infrastructure models.Infrastructure
	ModelTypes     []string
}

// Matches reports whether m satisfies the filter.
func (f ModelFilter) Matches(m *models.ModelRecord) bool {
	if f.Active != nil && m.IsActive != *f.Active {
		return false
	}
	if f.Infrastructure != "" && m.Infrastructure() != f.Infrastructure {
		return false
	}
	if len(f.ModelTypes) > 0 {
		for _, t := range f.ModelTypes {
			if t == m.ModelType {
				return true
			}
		}
		return false
	}
	return true
}

type DiagnosisFilter struct {
	PatientID string
	DoctorID  uuid.UUID
	Page      int
	Limit     int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage keeps (page-1)*maxPageSize within int.
	maxPage = math.MaxInt/maxPageSize + 1
)

// Window clamps the filter's paging to 1..100 rows per page and returns the
// page size and row offset.
func (f DiagnosisFilter) Window() (limit, offset int) {
	limit, page := f.Limit, f.Page
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	return limit, (page - 1) * limit
}

// ConfigUpdate holds the fields a configuration update touches.
type ConfigUpdate struct {
	ActiveModelType *models.Infrastructure
	Pointers        map[configPointer]*string
}

type configPointer struct {
	infra    models.Infrastructure
	category models.Category
}

type ConfigUpdateOption func(*ConfigUpdate)

func WithActiveModelType(t models.Infrastructure) ConfigUpdateOption {
	return func(u *ConfigUpdate) {
		u.ActiveModelType = &t
	}
}

// WithModelPointer sets the pinned model for (infra, category). A nil id
// clears the pointer.
func WithModelPointer(infra models.Infrastructure, category models.Category, id *string) ConfigUpdateOption {
	return func(u *ConfigUpdate) {
		if u.Pointers == nil {
			u.Pointers = make(map[configPointer]*string)
		}
		u.Pointers[configPointer{infra: infra, category: category}] = id
	}
}

// BuildConfigUpdate applies opts to an empty update.
func BuildConfigUpdate(opts ...ConfigUpdateOption) ConfigUpdate {
	var u ConfigUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

// Apply writes the update onto cfg in place.
func (u ConfigUpdate) Apply(cfg *models.SystemConfiguration) {
	if u.ActiveModelType != nil {
		cfg.ActiveModelType = *u.ActiveModelType
	}
	for p, id := range u.Pointers {
		if _, ok := pointerColumns[p]; !ok {
			continue
		}
		*pointerField(cfg, p) = id
	}
}

// pointerColumns maps each pointer to its database column.
var pointerColumns = map[configPointer]string{
	{models.InfraLocal, models.CategoryHeartDisease}:   "active_local_heart_disease_model_id",
	{models.InfraRemote, models.CategoryHeartDisease}:  "active_remote_heart_disease_model_id",
	{models.InfraLocal, models.CategoryImageAnalysis}:  "active_local_image_analysis_model_id",
	{models.InfraRemote, models.CategoryImageAnalysis}: "active_remote_image_analysis_model_id",
}

func pointerField(cfg *models.SystemConfiguration, p configPointer) **string {
	switch p {
	case configPointer{models.InfraLocal, models.CategoryHeartDisease}:
		return &cfg.ActiveLocalHeartDiseaseModelID
	case configPointer{models.InfraRemote, models.CategoryHeartDisease}:
		return &cfg.ActiveRemoteHeartDiseaseModelID
	case configPointer{models.InfraLocal, models.CategoryImageAnalysis}:
		return &cfg.ActiveLocalImageAnalysisModelID
	default:
		return &cfg.ActiveRemoteImageAnalysisModelID
	}
}
