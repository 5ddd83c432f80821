// Package enhance implements the five document-enhancement stages:
// upload confirmation, analysis, planning, generation, and composition.
// Stage handlers talk to the enhancement provider and the asset store;
// intermediate artifacts are persisted as blobs so a retried attempt on
// another worker can resume from durable state.
package enhance

import (
	"encoding/json"
	"fmt"

	"docforge/internal/services"
)

// Settings is the enhancement settings record attached to a job. Keys
// outside the known schema are preserved in Raw and forwarded to the
// provider untouched.
type Settings struct {
	Style            string `json:"style,omitempty"`
	ColorScheme      string `json:"colorScheme,omitempty"`
	VisualComplexity string `json:"visualComplexity,omitempty"`
	IncludeGraphics  bool   `json:"includeGraphics,omitempty"`
	IncludeCharts    bool   `json:"includeCharts,omitempty"`
	TargetAudience   string `json:"targetAudience,omitempty"`
	GradeLevel       int    `json:"gradeLevel,omitempty"`

	// Raw is the full settings document including unknown keys.
	Raw map[string]any `json:"-"`
}

// ParseSettings decodes a settings JSON document. An empty document
// yields zero-value settings.
func ParseSettings(data string) (Settings, error) {
	var settings Settings
	if data == "" {
		return settings, nil
	}
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return Settings{}, services.Wrap(services.ErrValidation, "", "enhance",
			fmt.Sprintf("settings document is not valid JSON: %v", err), err)
	}
	if err := json.Unmarshal([]byte(data), &settings.Raw); err != nil {
		return Settings{}, services.Wrap(services.ErrValidation, "", "enhance",
			"settings document must be a JSON object", err)
	}
	return settings, nil
}
