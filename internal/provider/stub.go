package provider

import (
	"context"
	"fmt"
	"hash/fnv"
)

// Stub is a deterministic in-process provider. Output depends only on
// the document ID so tests can assert exact results. An optional Fail
// hook lets tests inject errors per operation.
type Stub struct {
	// Fail, when set, is consulted before every operation with the
	// operation name ("analyze", "plan", "generate", "compose").
	Fail func(op string, req Request) error
}

// NewStub returns a provider with purely deterministic behavior.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Name() string { return "stub" }

func (s *Stub) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	if err := s.check(ctx, "analyze", req); err != nil {
		return nil, err
	}
	seed := hashID(req.DocumentID)
	return &Analysis{
		DocumentType: "report",
		SectionCount: int(seed%7) + 2,
		WordCount:    int(seed%4000) + 500,
		QualityScore: 40 + float64(seed%30),
		Issues:       []string{"inconsistent headings", "dense paragraphs"},
	}, nil
}

func (s *Stub) Plan(ctx context.Context, req Request, analysis *Analysis) (*Plan, error) {
	if err := s.check(ctx, "plan", req); err != nil {
		return nil, err
	}
	actions := make([]Action, 0, analysis.SectionCount)
	for i := 0; i < analysis.SectionCount; i++ {
		actions = append(actions, Action{
			Kind:        "rewrite",
			Target:      fmt.Sprintf("section-%d", i+1),
			Description: "restructure for clarity",
		})
	}
	return &Plan{Actions: actions, EstimatedImprovement: 25}, nil
}

func (s *Stub) Generate(ctx context.Context, req Request, plan *Plan) (*Generation, error) {
	if err := s.check(ctx, "generate", req); err != nil {
		return nil, err
	}
	sections := make([]Section, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		sections = append(sections, Section{
			Name:    action.Target,
			Content: fmt.Sprintf("enhanced %s of %s", action.Target, req.DocumentID),
		})
	}
	return &Generation{Sections: sections}, nil
}

func (s *Stub) Compose(ctx context.Context, req Request, generation *Generation) (*Composition, error) {
	if err := s.check(ctx, "compose", req); err != nil {
		return nil, err
	}
	var body []byte
	for _, section := range generation.Sections {
		body = append(body, section.Content...)
		body = append(body, '\n')
	}
	return &Composition{
		Document:     body,
		Thumbnail:    []byte("thumbnail:" + req.DocumentID),
		Improvements: []string{"restructured sections", "improved readability"},
		QualityScore: 40 + float64(hashID(req.DocumentID)%30) + 25,
	}, nil
}

func (s *Stub) check(ctx context.Context, op string, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Fail != nil {
		return s.Fail(op, req)
	}
	return nil
}

func hashID(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32()
}
