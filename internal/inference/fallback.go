package inference

import "github.com/kiranshivaraju/cardiotriage/pkg/models"

// FallbackFlag marks a prediction produced by DefaultFallback so the
// reviewing doctor can tell it apart from a model result.
const FallbackFlag = "System fallback prediction - clinical assessment required"

// DefaultFallback is returned when a local model fails and has no mock
// output. Heart-disease requests get a conservative moderate-risk object;
// every other analysis type gets a short unavailability notice.
func DefaultFallback(analysisType string) models.Prediction {
	if analysisType == models.TypeHeartDisease {
		return models.Prediction{
			"risk_level": "moderate",
			"risk_score": float64(65),
			"confidence": float64(75),
			"predicted_conditions": []any{
				map[string]any{
					"condition": "Cardiovascular risk assessment unavailable",
					"severity":  "moderate",
				},
			},
			"recommendations": map[string]any{
				"lifestyle": []any{
					"Maintain regular physical activity",
					"Follow heart-healthy diet",
				},
				"medications": []any{"Consult with physician"},
				"follow_up":   "Schedule follow-up assessment",
				"referrals":   []any{},
			},
			"urgent_warning_signs":   []any{},
			"guideline_references":   []any{},
			"decision_support_flags": []any{FallbackFlag},
		}
	}
	return models.Prediction{
		"error":   "Model prediction unavailable",
		"message": "Please use clinical judgment",
	}
}
