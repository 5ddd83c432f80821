package enhance

import (
	"encoding/json"
	"fmt"
)

// Result is the terminal payload recorded on a completed job.
type Result struct {
	EnhancedURL           string   `json:"enhancedUrl"`
	ThumbnailURL          string   `json:"thumbnailUrl,omitempty"`
	Improvements          []string `json:"improvements,omitempty"`
	QualityScoreBefore    float64  `json:"qualityScoreBefore"`
	QualityScoreAfter     float64  `json:"qualityScoreAfter"`
	ProcessingTimeSeconds float64  `json:"processingTimeSeconds"`
}

// Encode serializes the result for queue persistence.
func (r Result) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}

// DecodeResult parses a persisted result payload.
func DecodeResult(data string) (Result, error) {
	var result Result
	if data == "" {
		return result, nil
	}
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}
