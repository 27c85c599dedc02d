package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Models ---

const modelColumns = `id, model_name, version, description, model_type, is_active,
	model_file_url, api_endpoint, api_key, accuracy, performance_metrics,
	mock_prediction_output, created_at, updated_at`

func scanModel(row pgx.Row) (*models.ModelRecord, error) {
	var (
		m                         models.ModelRecord
		fileURL, endpoint, apiKey *string
	)
	if err := row.Scan(&m.ID, &m.ModelName, &m.Version, &m.Description, &m.ModelType, &m.IsActive,
		&fileURL, &endpoint, &apiKey, &m.Accuracy, &m.PerformanceMetrics,
		&m.MockPredictionOutput, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if fileURL != nil && *fileURL != "" {
		m.Backend = models.LocalBackend{FileURL: *fileURL}
	} else {
		rb := models.RemoteBackend{}
		if endpoint != nil {
			rb.Endpoint = *endpoint
		}
		if apiKey != nil {
			rb.APIKey = *apiKey
		}
		m.Backend = rb
	}
	return &m, nil
}

func (s *PostgresStore) queryModels(ctx context.Context, query string, args ...any) ([]*models.ModelRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ModelRecord
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListModels returns every model, newest first.
func (s *PostgresStore) ListModels(ctx context.Context) ([]*models.ModelRecord, error) {
	out, err := s.queryModels(ctx,
		`SELECT `+modelColumns+` FROM ml_models ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FilterModels(ctx context.Context, filter ModelFilter) ([]*models.ModelRecord, error) {
	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *filter.Active)
		argIdx++
	}
	switch filter.Infrastructure {
	case models.InfraLocal:
		conditions = append(conditions, "COALESCE(model_file_url, '') <> ''")
	case models.InfraRemote:
		conditions = append(conditions, "COALESCE(model_file_url, '') = ''")
	}
	if len(filter.ModelTypes) > 0 {
		conditions = append(conditions, fmt.Sprintf("model_type = ANY($%d)", argIdx))
		args = append(args, filter.ModelTypes)
		argIdx++
	}

	out, err := s.queryModels(ctx,
		`SELECT `+modelColumns+` FROM ml_models WHERE `+strings.Join(conditions, " AND ")+
			` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("filter models: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetModel(ctx context.Context, id string) (*models.ModelRecord, error) {
	m, err := scanModel(s.pool.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM ml_models WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) CreateModel(ctx context.Context, m *models.ModelRecord) error {
	var fileURL, endpoint, apiKey *string
	switch b := m.Backend.(type) {
	case models.LocalBackend:
		fileURL = &b.FileURL
	case models.RemoteBackend:
		endpoint = nullable(b.Endpoint)
		apiKey = nullable(b.APIKey)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ml_models (`+modelColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ID, m.ModelName, m.Version, m.Description, m.ModelType, m.IsActive,
		fileURL, endpoint, apiKey, m.Accuracy, m.PerformanceMetrics,
		m.MockPredictionOutput, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create model: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetModelActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ml_models SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set model active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- System Configuration ---

func (s *PostgresStore) ListSystemConfigurations(ctx context.Context) ([]*models.SystemConfiguration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, active_model_type, active_local_heart_disease_model_id, active_remote_heart_disease_model_id,
		        active_local_image_analysis_model_id, active_remote_image_analysis_model_id, created_at, updated_at
		 FROM system_configurations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list system configurations: %w", err)
	}
	defer rows.Close()

	var out []*models.SystemConfiguration
	for rows.Next() {
		var (
			c     models.SystemConfiguration
			infra string
		)
		if err := rows.Scan(&c.ID, &infra, &c.ActiveLocalHeartDiseaseModelID, &c.ActiveRemoteHeartDiseaseModelID,
			&c.ActiveLocalImageAnalysisModelID, &c.ActiveRemoteImageAnalysisModelID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan system configuration: %w", err)
		}
		if parsed, ok := models.ParseInfrastructure(infra); ok {
			c.ActiveModelType = parsed
		} else {
			c.ActiveModelType = models.InfraRemote
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateSystemConfiguration(ctx context.Context, cfg *models.SystemConfiguration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO system_configurations (id, active_model_type, active_local_heart_disease_model_id,
		   active_remote_heart_disease_model_id, active_local_image_analysis_model_id,
		   active_remote_image_analysis_model_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cfg.ID, string(cfg.ActiveModelType), cfg.ActiveLocalHeartDiseaseModelID, cfg.ActiveRemoteHeartDiseaseModelID,
		cfg.ActiveLocalImageAnalysisModelID, cfg.ActiveRemoteImageAnalysisModelID, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create system configuration: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSystemConfiguration(ctx context.Context, id string, opts ...ConfigUpdateOption) error {
	u := BuildConfigUpdate(opts...)

	query := `UPDATE system_configurations SET updated_at = $2`
	args := []any{id, time.Now().UTC()}
	argIdx := 3

	if u.ActiveModelType != nil {
		query += fmt.Sprintf(", active_model_type = $%d", argIdx)
		args = append(args, string(*u.ActiveModelType))
		argIdx++
	}

	// Deterministic column order keeps the statement stable for the same update.
	cols := make([]string, 0, len(u.Pointers))
	values := make(map[string]*string, len(u.Pointers))
	for p, v := range u.Pointers {
		col, ok := pointerColumns[p]
		if !ok {
			continue
		}
		cols = append(cols, col)
		values[col] = v
	}
	sort.Strings(cols)
	for _, col := range cols {
		query += fmt.Sprintf(", %s = $%d", col, argIdx)
		args = append(args, values[col])
		argIdx++
	}

	query += " WHERE id = $1"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update system configuration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Diagnoses ---

const diagnosisColumns = `id, patient_id, doctor_id, analysis_type, symptoms, vital_signs,
	clinical_observations, ai_prediction, treatment_plan, diagnosis_notes, status,
	content_hash, signature, created_at`

func scanDiagnosis(row pgx.Row) (*models.Diagnosis, error) {
	var d models.Diagnosis
	err := row.Scan(&d.ID, &d.PatientID, &d.DoctorID, &d.AnalysisType, &d.Symptoms, &d.VitalSigns,
		&d.ClinicalObservations, &d.AIPrediction, &d.TreatmentPlan, &d.DiagnosisNotes, &d.Status,
		&d.ContentHash, &d.Signature, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) CreateDiagnosis(ctx context.Context, d *models.Diagnosis) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO diagnoses (`+diagnosisColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.PatientID, d.DoctorID, d.AnalysisType, d.Symptoms, d.VitalSigns,
		d.ClinicalObservations, d.AIPrediction, d.TreatmentPlan, d.DiagnosisNotes, d.Status,
		d.ContentHash, d.Signature, d.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create diagnosis: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDiagnosis(ctx context.Context, id uuid.UUID) (*models.Diagnosis, error) {
	d, err := scanDiagnosis(s.pool.QueryRow(ctx,
		`SELECT `+diagnosisColumns+` FROM diagnoses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get diagnosis: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDiagnoses(ctx context.Context, filter DiagnosisFilter) ([]*models.Diagnosis, int, error) {
	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if filter.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", argIdx))
		args = append(args, filter.PatientID)
		argIdx++
	}
	if filter.DoctorID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("doctor_id = $%d", argIdx))
		args = append(args, filter.DoctorID)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM diagnoses WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count diagnoses: %w", err)
	}

	limit, offset := filter.Window()

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM diagnoses WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		diagnosisColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list diagnoses: %w", err)
	}
	defer rows.Close()

	var out []*models.Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan diagnosis: %w", err)
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
