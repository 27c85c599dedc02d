package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardiotriage/internal/api/response"
	"github.com/kiranshivaraju/cardiotriage/internal/diagnosis"
	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

type DiagnosisService interface {
	Create(ctx context.Context, p diagnosis.CreateParams) (*models.Diagnosis, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Diagnosis, error)
	List(ctx context.Context, patientID string, page, limit int) (*diagnosis.ListResult, error)
	Verify(ctx context.Context, id uuid.UUID) (*diagnosis.Verification, error)
}

type createDiagnosisRequest struct {
	PatientID            string            `json:"patient_id"`
	AnalysisType         string            `json:"analysis_type"`
	Symptoms             json.RawMessage   `json:"symptoms"`
	VitalSigns           json.RawMessage   `json:"vital_signs"`
	ClinicalObservations string            `json:"clinical_observations"`
	AIPrediction         models.Prediction `json:"ai_prediction"`
	TreatmentPlan        string            `json:"treatment_plan"`
	DiagnosisNotes       string            `json:"diagnosis_notes"`
}

// DiagnosisHandlers serves /api/v1/diagnoses. The authenticated key is
// recorded as the signing doctor.
type DiagnosisHandlers struct {
	svc DiagnosisService
}

func NewDiagnosisHandlers(svc DiagnosisService) *DiagnosisHandlers {
	return &DiagnosisHandlers{svc: svc}
}

func (h *DiagnosisHandlers) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req createDiagnosisRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := h.svc.Create(r.Context(), diagnosis.CreateParams{
		PatientID:            req.PatientID,
		DoctorID:             id.KeyID,
		AnalysisType:         req.AnalysisType,
		Symptoms:             req.Symptoms,
		VitalSigns:           req.VitalSigns,
		ClinicalObservations: req.ClinicalObservations,
		AIPrediction:         req.AIPrediction,
		TreatmentPlan:        req.TreatmentPlan,
		DiagnosisNotes:       req.DiagnosisNotes,
	})
	if err != nil {
		writeDiagnosisError(w, err)
		return
	}
	response.Created(w, d)
}

func (h *DiagnosisHandlers) List(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.List(r.Context(), r.URL.Query().Get("patient_id"), intQuery(r, "page", 1), intQuery(r, "limit", 0))
	if err != nil {
		writeDiagnosisError(w, err)
		return
	}
	items := res.Items
	if items == nil {
		items = []*models.Diagnosis{}
	}
	response.Collection(w, items, response.NewPaginationMeta(res.Page, res.Limit, res.Total))
}

func (h *DiagnosisHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "diagnosisID", "INVALID_DIAGNOSIS_ID")
	if !ok {
		return
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeDiagnosisError(w, err)
		return
	}
	response.JSON(w, d)
}

func (h *DiagnosisHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "diagnosisID", "INVALID_DIAGNOSIS_ID")
	if !ok {
		return
	}
	v, err := h.svc.Verify(r.Context(), id)
	if err != nil {
		writeDiagnosisError(w, err)
		return
	}
	response.JSON(w, v)
}

func writeDiagnosisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, diagnosis.ErrInvalidDiagnosis):
		response.Error(w, http.StatusBadRequest, "INVALID_DIAGNOSIS", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "DIAGNOSIS_NOT_FOUND", "Diagnosis not found", nil)
	default:
		slog.Error("diagnosis request failed", "error", err)
		internalError(w)
	}
}
