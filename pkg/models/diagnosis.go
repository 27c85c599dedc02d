package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const DiagnosisStatusCompleted = "completed"

// Diagnosis is a reviewed, signed clinical assessment.
// ContentHash covers the clinical fields; Signature is a JWT over the hash.
type Diagnosis struct {
	ID                   uuid.UUID       `db:"id"                    json:"id"`
	PatientID            string          `db:"patient_id"            json:"patient_id"`
	DoctorID             uuid.UUID       `db:"doctor_id"             json:"doctor_id"`
	AnalysisType         string          `db:"analysis_type"         json:"analysis_type"`
	Symptoms             json.RawMessage `db:"symptoms"              json:"symptoms,omitempty"`
	VitalSigns           json.RawMessage `db:"vital_signs"           json:"vital_signs,omitempty"`
	ClinicalObservations string          `db:"clinical_observations" json:"clinical_observations"`
	AIPrediction         Prediction      `db:"ai_prediction"         json:"ai_prediction,omitempty"`
	TreatmentPlan        string          `db:"treatment_plan"        json:"treatment_plan"`
	DiagnosisNotes       string          `db:"diagnosis_notes"       json:"diagnosis_notes"`
	Status               string          `db:"status"                json:"status"`
	ContentHash          string          `db:"content_hash"          json:"content_hash"`
	Signature            string          `db:"signature"             json:"signature"`
	CreatedAt            time.Time       `db:"created_at"            json:"created_at"`
}
