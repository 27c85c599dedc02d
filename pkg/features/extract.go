// Package features maps clinical input onto the fixed feature vector used by
// the local heart-disease models.
package features

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Defaults fills every feature the input does not provide.
var Defaults = models.FeatureVector{
	Age:      50,
	Sex:      1,
	CP:       0,
	Trestbps: 120,
	Chol:     200,
	FBS:      0,
	RestECG:  0,
	Thalach:  150,
	Exang:    0,
	Oldpeak:  1.0,
	Slope:    1,
	CA:       0,
	Thal:     2,
}

var (
	bpPattern = regexp.MustCompile(`(\d+)/(\d+)`)

	promptAge  = regexp.MustCompile(`(?i)age[:\s]*(\d+)`)
	promptBP   = regexp.MustCompile(`(?i)blood[_\s]pressure[:\s]*(\d+)/(\d+)`)
	promptHR   = regexp.MustCompile(`(?i)heart[_\s]rate[:\s]*(\d+)`)
	promptChol = regexp.MustCompile(`(?i)cholesterol[:\s]*(\d+)`)
)

// partial records which features were found before defaults are applied.
type partial map[string]float64

// Extract builds a feature vector. Structured input wins when it yields at
// least one feature; otherwise the prompt text is scanned. Anything still
// missing takes its default. The result is always fully populated.
func Extract(structured map[string]any, prompt string) models.FeatureVector {
	found := fromStructured(structured)
	if len(found) == 0 && prompt != "" {
		found = fromPrompt(prompt)
	}
	return merge(found)
}

func fromStructured(data map[string]any) partial {
	found := partial{}
	if data == nil {
		return found
	}

	if age, ok := number(data["age"]); ok && age != 0 {
		found["age"] = age
	}
	if gender, ok := data["gender"].(string); ok && gender != "" {
		if strings.EqualFold(gender, "male") {
			found["sex"] = 1
		} else {
			found["sex"] = 0
		}
	}

	vitals, _ := data["vital_signs"].(map[string]any)
	if vitals == nil {
		return found
	}
	if bp, ok := vitals["blood_pressure"].(string); ok {
		if m := bpPattern.FindStringSubmatch(bp); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				found["trestbps"] = float64(v)
			}
		}
	}
	if hr, ok := number(vitals["heart_rate"]); ok && hr != 0 {
		found["thalach"] = hr
	}
	if chol, ok := number(vitals["cholesterol"]); ok && chol != 0 {
		found["chol"] = chol
	}
	return found
}

func fromPrompt(prompt string) partial {
	found := partial{}

	if v, ok := firstInt(promptAge, prompt); ok {
		found["age"] = v
	}
	if v, ok := firstInt(promptBP, prompt); ok {
		found["trestbps"] = v
	}
	if v, ok := firstInt(promptHR, prompt); ok {
		found["thalach"] = v
	}
	if v, ok := firstInt(promptChol, prompt); ok {
		found["chol"] = v
	}

	lower := strings.ToLower(prompt)
	// "female" contains "male", so the male check must exclude it.
	switch {
	case strings.Contains(lower, "male") && !strings.Contains(lower, "female"):
		found["sex"] = 1
	case strings.Contains(lower, "female"):
		found["sex"] = 0
	}
	if strings.Contains(lower, "chest pain") {
		found["cp"] = 1
	}
	return found
}

func merge(found partial) models.FeatureVector {
	fv := Defaults
	for key, v := range found {
		switch key {
		case "age":
			fv.Age = v
		case "sex":
			fv.Sex = v
		case "cp":
			fv.CP = v
		case "trestbps":
			fv.Trestbps = v
		case "chol":
			fv.Chol = v
		case "thalach":
			fv.Thalach = v
		}
	}
	return fv
}

func firstInt(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return float64(v), true
}

// number accepts JSON numbers and numeric strings.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	// ParseFloat accepts "Inf" and "NaN"; neither encodes as JSON.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
