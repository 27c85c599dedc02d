package diagnosis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

const issuer = "cardiotriage"

// Claims bind a signature to one diagnosis and its content hash.
type Claims struct {
	DiagnosisID string `json:"diagnosis_id"`
	ContentHash string `json:"content_hash"`
	DoctorID    string `json:"doctor_id"`
	jwt.RegisteredClaims
}

// Signer issues and checks HS256 diagnosis signatures.
type Signer struct {
	key []byte
}

func NewSigner(key []byte) *Signer {
	return &Signer{key: key}
}

func (s *Signer) Sign(d *models.Diagnosis, issuedAt time.Time) (string, error) {
	claims := Claims{
		DiagnosisID: d.ID.String(),
		ContentHash: d.ContentHash,
		DoctorID:    d.DoctorID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  d.PatientID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing diagnosis: %w", err)
	}
	return signed, nil
}

// Parse validates the token signature and returns its claims. It does not
// compare the claims against a record.
func (s *Signer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ContentHash is the hex SHA-256 of the canonical JSON of the clinical
// fields. JSON sub-documents are re-encoded with sorted keys so the hash
// survives a round trip through jsonb.
func ContentHash(d *models.Diagnosis) (string, error) {
	symptoms, err := canonical(d.Symptoms)
	if err != nil {
		return "", fmt.Errorf("symptoms: %w", err)
	}
	vitals, err := canonical(d.VitalSigns)
	if err != nil {
		return "", fmt.Errorf("vital_signs: %w", err)
	}
	var prediction any
	if len(d.AIPrediction) > 0 {
		raw, err := json.Marshal(d.AIPrediction)
		if err != nil {
			return "", fmt.Errorf("ai_prediction: %w", err)
		}
		if prediction, err = canonical(raw); err != nil {
			return "", fmt.Errorf("ai_prediction: %w", err)
		}
	}

	doc, err := json.Marshal(map[string]any{
		"patient_id":            d.PatientID,
		"doctor_id":             d.DoctorID.String(),
		"analysis_type":         d.AnalysisType,
		"symptoms":              symptoms,
		"vital_signs":           vitals,
		"clinical_observations": d.ClinicalObservations,
		"ai_prediction":         prediction,
		"treatment_plan":        d.TreatmentPlan,
		"diagnosis_notes":       d.DiagnosisNotes,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:]), nil
}

// canonical decodes raw into generic values; encoding/json sorts map keys
// when they are marshaled again.
func canonical(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.New("not valid JSON")
	}
	return v, nil
}
