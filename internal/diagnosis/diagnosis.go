// Package diagnosis persists reviewed clinical assessments. Each record
// carries a content hash over its clinical fields and a signature binding
// that hash to the record and the signing doctor, so later edits outside
// the service are detectable.
package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardiotriage/internal/cache"
	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

var ErrInvalidDiagnosis = errors.New("invalid diagnosis")

const (
	defaultLimit = 20
	maxLimit     = 100
	// maxPage keeps the row offset and the has-next product within int.
	maxPage = math.MaxInt / maxLimit
)

// Store is the persistence the service needs.
type Store interface {
	CreateDiagnosis(ctx context.Context, d *models.Diagnosis) error
	GetDiagnosis(ctx context.Context, id uuid.UUID) (*models.Diagnosis, error)
	ListDiagnoses(ctx context.Context, filter store.DiagnosisFilter) ([]*models.Diagnosis, int, error)
}

// Cache holds serialized records. Diagnoses never change after creation.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// CreateParams is a diagnosis as submitted by a doctor.
type CreateParams struct {
	PatientID            string
	DoctorID             uuid.UUID
	AnalysisType         string
	Symptoms             json.RawMessage
	VitalSigns           json.RawMessage
	ClinicalObservations string
	AIPrediction         models.Prediction
	TreatmentPlan        string
	DiagnosisNotes       string
}

// Verification is the result of re-checking a stored diagnosis.
type Verification struct {
	DiagnosisID    uuid.UUID `json:"diagnosis_id"`
	Valid          bool      `json:"valid"`
	HashMatches    bool      `json:"hash_matches"`
	SignatureValid bool      `json:"signature_valid"`
	Reason         string    `json:"reason,omitempty"`
}

// ListResult is one page of diagnoses.
type ListResult struct {
	Items []*models.Diagnosis
	Total int
	Page  int
	Limit int
}

type Service struct {
	store    Store
	signer   *Signer
	cache    Cache
	cacheTTL time.Duration
	now      func() time.Time
}

type Option func(*Service)

// WithCache enables read-through caching of Get.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func NewService(st Store, signingKey []byte, opts ...Option) *Service {
	s := &Service{
		store:  st,
		signer: NewSigner(signingKey),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create hashes, signs and stores a diagnosis with status completed.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Diagnosis, error) {
	if strings.TrimSpace(p.PatientID) == "" {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidDiagnosis)
	}
	if p.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrInvalidDiagnosis)
	}
	for name, raw := range map[string]json.RawMessage{"symptoms": p.Symptoms, "vital_signs": p.VitalSigns} {
		if len(raw) > 0 && !json.Valid(raw) {
			return nil, fmt.Errorf("%w: %s must be valid JSON", ErrInvalidDiagnosis, name)
		}
	}
	analysisType := p.AnalysisType
	if analysisType == "" {
		analysisType = models.TypeHeartDisease
	}

	now := s.now()
	d := &models.Diagnosis{
		ID:                   uuid.New(),
		PatientID:            strings.TrimSpace(p.PatientID),
		DoctorID:             p.DoctorID,
		AnalysisType:         analysisType,
		Symptoms:             p.Symptoms,
		VitalSigns:           p.VitalSigns,
		ClinicalObservations: p.ClinicalObservations,
		AIPrediction:         p.AIPrediction,
		TreatmentPlan:        p.TreatmentPlan,
		DiagnosisNotes:       p.DiagnosisNotes,
		Status:               models.DiagnosisStatusCompleted,
		CreatedAt:            now,
	}

	hash, err := ContentHash(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDiagnosis, err)
	}
	d.ContentHash = hash
	if d.Signature, err = s.signer.Sign(d, now); err != nil {
		return nil, err
	}

	if err := s.store.CreateDiagnosis(ctx, d); err != nil {
		return nil, fmt.Errorf("creating diagnosis: %w", err)
	}
	slog.Info("diagnosis recorded", "diagnosis_id", d.ID, "patient_id", d.PatientID, "analysis_type", d.AnalysisType)
	return d, nil
}

// Get returns a diagnosis by id, consulting the cache first when one is
// configured. Cache failures fall through to the store.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Diagnosis, error) {
	key := cache.DiagnosisKey(id)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			slog.Warn("diagnosis cache read failed", "diagnosis_id", id, "error", err)
		case ok:
			var d models.Diagnosis
			if err := json.Unmarshal(raw, &d); err == nil {
				return &d, nil
			}
			slog.Warn("discarding undecodable cached diagnosis", "diagnosis_id", id)
		}
	}

	d, err := s.store.GetDiagnosis(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting diagnosis: %w", err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(d); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
				slog.Warn("diagnosis cache write failed", "diagnosis_id", id, "error", err)
			}
		}
	}
	return d, nil
}

// List pages through diagnoses, optionally for one patient.
func (s *Service) List(ctx context.Context, patientID string, page, limit int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	items, total, err := s.store.ListDiagnoses(ctx, store.DiagnosisFilter{PatientID: patientID, Page: page, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("listing diagnoses: %w", err)
	}
	return &ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Verify recomputes the content hash of the stored record and checks the
// signature against it. The store is read directly; a cached copy could
// mask tampering.
func (s *Service) Verify(ctx context.Context, id uuid.UUID) (*Verification, error) {
	d, err := s.store.GetDiagnosis(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting diagnosis: %w", err)
	}
	return s.verify(d), nil
}

func (s *Service) verify(d *models.Diagnosis) *Verification {
	v := &Verification{DiagnosisID: d.ID}

	hash, err := ContentHash(d)
	if err != nil {
		v.Reason = "stored content is not hashable: " + err.Error()
		return v
	}
	v.HashMatches = hash == d.ContentHash

	claims, err := s.signer.Parse(d.Signature)
	switch {
	case err != nil:
		v.Reason = "signature rejected: " + err.Error()
	case claims.DiagnosisID != d.ID.String() || claims.DoctorID != d.DoctorID.String():
		v.Reason = "signature belongs to a different record"
	case claims.ContentHash != d.ContentHash:
		v.Reason = "signature does not cover the stored hash"
	default:
		v.SignatureValid = true
	}

	if v.SignatureValid && !v.HashMatches {
		v.Reason = "content changed after signing"
	}
	v.Valid = v.HashMatches && v.SignatureValid
	return v
}
