package inference

import "github.com/kiranshivaraju/cardiotriage/pkg/models"

const (
	noHeartModelMessage   = "No active heart disease or symptom analysis model found. Please activate a compatible model in ML Model Management."
	noImageModelMessage   = "No active image analysis model found. OCR extraction completed successfully, but AI analysis requires an active model."
	noGenericModelMessage = "No active model found for the requested analysis."
)

// NoModelActive builds the sentinel returned when no model can serve
// analysisType. Image requests that expect a document analysis get every
// section of that schema filled with an explanatory stub, since OCR output is
// still shown to the user.
func NoModelActive(analysisType string, schema map[string]any) models.Prediction {
	switch {
	case analysisType == models.TypeHeartDisease:
		return models.Prediction{
			"no_model_active": true,
			"message":         noHeartModelMessage,
			"model_type":      analysisType,
		}
	case analysisType == models.TypeImageClassification && wantsDocumentAnalysis(schema):
		return models.Prediction{
			"no_model_active": true,
			"message":         noImageModelMessage,
			"model_type":      analysisType,
			"document_analysis": map[string]any{
				"document_type":         "No Model Active",
				"key_findings":          []any{"OCR extraction completed successfully"},
				"abnormal_values":       []any{},
				"clinical_significance": "No active image analysis model found. Please activate a model in ML Model Management to perform AI analysis.",
			},
			"patient_correlation": map[string]any{
				"symptom_correlation":   []any{},
				"historical_comparison": "Analysis unavailable - no active model",
				"risk_progression":      "unknown",
			},
			"clinical_recommendations": map[string]any{
				"immediate_actions":       []any{"Activate an image analysis model", "Review extracted information manually"},
				"follow_up_tests":         []any{},
				"medication_adjustments":  []any{},
				"lifestyle_modifications": []any{},
			},
			"risk_assessment": map[string]any{
				"overall_risk":       "unknown",
				"confidence":         float64(0),
				"risk_factors":       []any{"No active model for analysis"},
				"protective_factors": []any{},
			},
		}
	default:
		return models.Prediction{
			"no_model_active": true,
			"message":         noGenericModelMessage,
			"model_type":      analysisType,
		}
	}
}

// IsNoModelActive reports whether p is the sentinel.
func IsNoModelActive(p models.Prediction) bool {
	v, _ := p["no_model_active"].(bool)
	return v
}
