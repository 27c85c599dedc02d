// Package memory is an in-process implementation of store.Store. It backs
// unit tests and the STORE_DRIVER=memory development mode; data is lost on
// restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Store is safe for concurrent use. Records are copied on the way in and out
// so callers never share memory with the store.
type Store struct {
	mu        sync.RWMutex
	keys      map[uuid.UUID]*models.APIKey
	models    map[string]*models.ModelRecord
	order     []string
	configs   []*models.SystemConfiguration
	diagnoses []*models.Diagnosis

	// Err, when set, is returned by every call. Tests use it to simulate an
	// unavailable database.
	Err error
}

func New() *Store {
	return &Store{
		keys:   make(map[uuid.UUID]*models.APIKey),
		models: make(map[string]*models.ModelRecord),
	}
}

func (s *Store) Ping(_ context.Context) error { return s.Err }

// --- API Keys ---

func (s *Store) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.LastUsedAt = &now
	k.UpdatedAt = now
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.ID]; exists {
		return store.ErrDuplicateKey
	}
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *Store) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.APIKey
	for _, k := range s.keys {
		if k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}

// --- Models ---

// ListModels returns models newest first, ties broken by insertion order.
func (s *Store) ListModels(ctx context.Context) ([]*models.ModelRecord, error) {
	return s.FilterModels(ctx, store.ModelFilter{})
}

func (s *Store) FilterModels(_ context.Context, filter store.ModelFilter) ([]*models.ModelRecord, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ModelRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		m := s.models[s.order[i]]
		if filter.Matches(m) {
			out = append(out, copyModel(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetModel(_ context.Context, id string) (*models.ModelRecord, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.models[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyModel(m), nil
}

func (s *Store) CreateModel(_ context.Context, m *models.ModelRecord) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[m.ID]; exists {
		return store.ErrDuplicateKey
	}
	s.models[m.ID] = copyModel(m)
	s.order = append(s.order, m.ID)
	return nil
}

func (s *Store) SetModelActive(_ context.Context, id string, active bool) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.models[id]
	if !ok {
		return store.ErrNotFound
	}
	m.IsActive = active
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func copyModel(m *models.ModelRecord) *models.ModelRecord {
	cp := *m
	if m.PerformanceMetrics != nil {
		pm := *m.PerformanceMetrics
		cp.PerformanceMetrics = &pm
	}
	if m.MockPredictionOutput != nil {
		cp.MockPredictionOutput = make(models.Prediction, len(m.MockPredictionOutput))
		for k, v := range m.MockPredictionOutput {
			cp.MockPredictionOutput[k] = v
		}
	}
	return &cp
}

// --- System Configuration ---

func (s *Store) ListSystemConfigurations(_ context.Context) ([]*models.SystemConfiguration, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.SystemConfiguration, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, copyConfig(c))
	}
	return out, nil
}

func (s *Store) CreateSystemConfiguration(_ context.Context, cfg *models.SystemConfiguration) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.configs {
		if c.ID == cfg.ID {
			return store.ErrDuplicateKey
		}
	}
	s.configs = append(s.configs, copyConfig(cfg))
	return nil
}

func (s *Store) UpdateSystemConfiguration(_ context.Context, id string, opts ...store.ConfigUpdateOption) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.configs {
		if c.ID == id {
			store.BuildConfigUpdate(opts...).Apply(c)
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return store.ErrNotFound
}

func copyConfig(c *models.SystemConfiguration) *models.SystemConfiguration {
	cp := *c
	cp.ActiveLocalHeartDiseaseModelID = copyString(c.ActiveLocalHeartDiseaseModelID)
	cp.ActiveRemoteHeartDiseaseModelID = copyString(c.ActiveRemoteHeartDiseaseModelID)
	cp.ActiveLocalImageAnalysisModelID = copyString(c.ActiveLocalImageAnalysisModelID)
	cp.ActiveRemoteImageAnalysisModelID = copyString(c.ActiveRemoteImageAnalysisModelID)
	return &cp
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// --- Diagnoses ---

func (s *Store) CreateDiagnosis(_ context.Context, d *models.Diagnosis) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.diagnoses {
		if existing.ID == d.ID {
			return store.ErrDuplicateKey
		}
	}
	cp := *d
	s.diagnoses = append(s.diagnoses, &cp)
	return nil
}

func (s *Store) GetDiagnosis(_ context.Context, id uuid.UUID) (*models.Diagnosis, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.diagnoses {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListDiagnoses(_ context.Context, filter store.DiagnosisFilter) ([]*models.Diagnosis, int, error) {
	if s.Err != nil {
		return nil, 0, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Diagnosis
	for i := len(s.diagnoses) - 1; i >= 0; i-- {
		d := s.diagnoses[i]
		if filter.PatientID != "" && d.PatientID != filter.PatientID {
			continue
		}
		if filter.DoctorID != uuid.Nil && d.DoctorID != filter.DoctorID {
			continue
		}
		cp := *d
		matched = append(matched, &cp)
	}

	limit, start := filter.Window()
	if start >= len(matched) {
		return []*models.Diagnosis{}, len(matched), nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

var _ store.Store = (*Store)(nil)
