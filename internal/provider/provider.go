// Package provider abstracts the external AI document-enhancement
// service. Each pipeline stage maps to one provider operation; the HTTP
// implementation talks to a real endpoint and the stub produces
// deterministic output for tests and offline runs.
package provider

import "context"

// Request identifies the document being enhanced and carries the raw
// settings record. Settings keys outside the known schema are forwarded
// untouched so newer providers can use them.
type Request struct {
	JobID      string         `json:"job_id"`
	DocumentID string         `json:"document_id"`
	SourceURL  string         `json:"source_url"`
	Settings   map[string]any `json:"settings,omitempty"`
}

// Analysis describes the source document's structure and quality.
type Analysis struct {
	DocumentType string   `json:"document_type"`
	SectionCount int      `json:"section_count"`
	WordCount    int      `json:"word_count"`
	QualityScore float64  `json:"quality_score"`
	Issues       []string `json:"issues,omitempty"`
}

// Action is one planned enhancement step.
type Action struct {
	Kind        string `json:"kind"`
	Target      string `json:"target"`
	Description string `json:"description"`
}

// Plan is the ordered enhancement plan derived from an analysis.
type Plan struct {
	Actions              []Action `json:"actions"`
	EstimatedImprovement float64  `json:"estimated_improvement"`
}

// Section is one generated block of enhanced content.
type Section struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Graphic bool   `json:"graphic,omitempty"`
}

// Generation holds the content produced for every planned action.
type Generation struct {
	Sections []Section `json:"sections"`
}

// Composition is the final assembled document.
type Composition struct {
	Document     []byte   `json:"document"`
	Thumbnail    []byte   `json:"thumbnail,omitempty"`
	Improvements []string `json:"improvements"`
	QualityScore float64  `json:"quality_score"`
}

// Provider is the enhancement service contract. Every call must respect
// the context deadline; the pipeline applies per-stage timeouts.
type Provider interface {
	Analyze(ctx context.Context, req Request) (*Analysis, error)
	Plan(ctx context.Context, req Request, analysis *Analysis) (*Plan, error)
	Generate(ctx context.Context, req Request, plan *Plan) (*Generation, error)
	Compose(ctx context.Context, req Request, generation *Generation) (*Composition, error)
	Name() string
}
