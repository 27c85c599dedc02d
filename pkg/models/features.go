package models

// FeatureVector is the fixed 13-feature input of the local heart-disease
// models. Every field is always populated.
type FeatureVector struct {
	Age      float64 `json:"age"`
	Sex      float64 `json:"sex"`      // 1 male, 0 female
	CP       float64 `json:"cp"`       // chest pain type
	Trestbps float64 `json:"trestbps"` // resting systolic blood pressure
	Chol     float64 `json:"chol"`
	FBS      float64 `json:"fbs"` // fasting blood sugar > 120 mg/dl
	RestECG  float64 `json:"restecg"`
	Thalach  float64 `json:"thalach"` // max heart rate
	Exang    float64 `json:"exang"`   // exercise induced angina
	Oldpeak  float64 `json:"oldpeak"` // ST depression
	Slope    float64 `json:"slope"`
	CA       float64 `json:"ca"` // major vessels coloured by fluoroscopy
	Thal     float64 `json:"thal"`
}
