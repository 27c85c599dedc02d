package models

// Analysis and model types known to the router. The set is open: models may
// carry other type strings.
const (
	TypeHeartDisease        = "heart_disease"
	TypeSymptomAnalysis     = "symptom_analysis"
	TypeImageClassification = "image_classification"
)

// Category is an activation bucket. At most one model per (infrastructure,
// category) pair is active at a time.
type Category string

const (
	CategoryHeartDisease  Category = "heart_disease"
	CategoryImageAnalysis Category = "image_classification"
)

var compatibleModelTypes = map[string][]string{
	TypeHeartDisease:        {TypeHeartDisease, TypeSymptomAnalysis},
	TypeImageClassification: {TypeImageClassification},
}

// CompatibleModelTypes returns the model types that may serve analysisType.
// Unknown analysis types are served only by models of the same type.
func CompatibleModelTypes(analysisType string) []string {
	if types, ok := compatibleModelTypes[analysisType]; ok {
		return types
	}
	return []string{analysisType}
}

// IsCompatible reports whether modelType is listed for analysisType.
func IsCompatible(analysisType, modelType string) bool {
	for _, t := range CompatibleModelTypes(analysisType) {
		if t == modelType {
			return true
		}
	}
	return false
}

// CategoryOf returns the activation bucket of a model type. Types outside the
// table have no bucket.
func CategoryOf(modelType string) (Category, bool) {
	switch modelType {
	case TypeHeartDisease, TypeSymptomAnalysis:
		return CategoryHeartDisease, true
	case TypeImageClassification:
		return CategoryImageAnalysis, true
	default:
		return "", false
	}
}

// CategoryForAnalysis maps an analysis type to the configuration pointer it
// reads. Only heart_disease and image_classification have pointers.
func CategoryForAnalysis(analysisType string) (Category, bool) {
	switch analysisType {
	case TypeHeartDisease:
		return CategoryHeartDisease, true
	case TypeImageClassification:
		return CategoryImageAnalysis, true
	default:
		return "", false
	}
}
