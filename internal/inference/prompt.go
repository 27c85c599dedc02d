package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// wantsDocumentAnalysis reports whether the response schema declares a
// top-level document_analysis property. Such callers get an LLM-synthesized
// answer instead of the raw local prediction.
func wantsDocumentAnalysis(schema map[string]any) bool {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = props["document_analysis"]
	return ok
}

type promptVariant int

const (
	livePrediction promptVariant = iota
	mockPrediction
)

// synthesisPrompt embeds the OCR input and the risk fields of a local (or
// mock) prediction in a prompt for the generative backend.
func synthesisPrompt(variant promptVariant, ocr map[string]any, p models.Prediction) (string, error) {
	ocrJSON, err := json.MarshalIndent(ocr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding OCR data: %w", err)
	}

	var b strings.Builder
	switch variant {
	case mockPrediction:
		b.WriteString("As a clinical AI specialist, generate a comprehensive analysis based on the provided OCR data and this mock prediction output from our trusted ML model.\n\n")
	default:
		b.WriteString("As a clinical AI specialist, generate a comprehensive analysis based on the provided OCR data and the output from our internal, trusted ML model.\n\n")
	}

	b.WriteString("**OCR Data from Medical Document:**\n")
	b.Write(ocrJSON)
	b.WriteString("\n\n")

	if variant == mockPrediction {
		b.WriteString("**Mock ML Model Prediction (simulated output):**\n")
	} else {
		b.WriteString("**Internal ML Model Prediction:**\n")
	}
	fmt.Fprintf(&b, "- Risk Level: %s\n", field(p, "risk_level"))
	fmt.Fprintf(&b, "- Risk Score: %s\n", field(p, "risk_score"))
	fmt.Fprintf(&b, "- Confidence: %s%%\n", field(p, "confidence"))
	fmt.Fprintf(&b, "- Key Findings: %s\n\n", keyFindings(p))

	b.WriteString("**Your Task:**\n")
	b.WriteString("Using ALL the information above, generate a complete, context-aware clinical analysis that fills out the required JSON schema. ")
	if variant == mockPrediction {
		b.WriteString("Note that this is using simulated model output due to execution issues.\n")
	} else {
		b.WriteString("Correlate the OCR findings with the patient's history and expand upon the local model's prediction.\n")
	}
	return b.String(), nil
}

func field(p models.Prediction, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return "unknown"
	}
	return fmt.Sprint(v)
}

// keyFindings joins predicted condition names. Entries may be plain strings
// or {condition, severity} objects.
func keyFindings(p models.Prediction) string {
	conds, ok := p["predicted_conditions"].([]any)
	if !ok {
		return "None"
	}
	names := make([]string, 0, len(conds))
	for _, c := range conds {
		switch v := c.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			if name, ok := v["condition"].(string); ok {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, ", ")
}
