package models

import "time"

// SystemConfiguration is the singleton record naming the active
// infrastructure and, per infrastructure and category, the pinned model id.
type SystemConfiguration struct {
	ID                               string         `json:"id"`
	ActiveModelType                  Infrastructure `json:"active_model_type"`
	ActiveLocalHeartDiseaseModelID   *string        `json:"active_local_heart_disease_model_id"`
	ActiveRemoteHeartDiseaseModelID  *string        `json:"active_remote_heart_disease_model_id"`
	ActiveLocalImageAnalysisModelID  *string        `json:"active_local_image_analysis_model_id"`
	ActiveRemoteImageAnalysisModelID *string        `json:"active_remote_image_analysis_model_id"`
	CreatedAt                        time.Time      `json:"created_at"`
	UpdatedAt                        time.Time      `json:"updated_at"`
}

// IsLocal reports whether local infrastructure is active.
func (c *SystemConfiguration) IsLocal() bool {
	return c.ActiveModelType == InfraLocal
}

// PointerFor returns the pinned model id for (infra, category), or "" if unset.
func (c *SystemConfiguration) PointerFor(infra Infrastructure, category Category) string {
	var p *string
	switch {
	case infra == InfraLocal && category == CategoryHeartDisease:
		p = c.ActiveLocalHeartDiseaseModelID
	case infra == InfraLocal && category == CategoryImageAnalysis:
		p = c.ActiveLocalImageAnalysisModelID
	case infra == InfraRemote && category == CategoryHeartDisease:
		p = c.ActiveRemoteHeartDiseaseModelID
	case infra == InfraRemote && category == CategoryImageAnalysis:
		p = c.ActiveRemoteImageAnalysisModelID
	}
	if p == nil {
		return ""
	}
	return *p
}

// Pointers returns every non-empty pinned model id for infra.
func (c *SystemConfiguration) Pointers(infra Infrastructure) []string {
	var ids []string
	for _, cat := range []Category{CategoryHeartDisease, CategoryImageAnalysis} {
		if id := c.PointerFor(infra, cat); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
