package pipeline

import (
	"log/slog"
	"time"

	"docforge/internal/assets"
	"docforge/internal/config"
	"docforge/internal/enhance"
	"docforge/internal/provider"
	"docforge/internal/stage"
)

// Stage names in execution order.
const (
	StageUploadConfirm = "upload-confirm"
	StageAnalysis      = "analysis"
	StagePlanning      = "planning"
	StageGeneration    = "generation"
	StageComposition   = "composition"
)

// Definition binds one ordered stage to its handler and progress weight.
// Weights sum to 100 so stage progress maps directly onto overall
// percent.
type Definition struct {
	Name    string
	Weight  float64
	Handler stage.Handler
}

// DefaultDefinitions builds the standard five-stage pipeline.
func DefaultDefinitions(client provider.Provider, blobs assets.Store, logger *slog.Logger) []Definition {
	return []Definition{
		{Name: StageUploadConfirm, Weight: 10, Handler: enhance.NewUploadConfirm(client, blobs, logger)},
		{Name: StageAnalysis, Weight: 20, Handler: enhance.NewAnalyzer(client, blobs, logger)},
		{Name: StagePlanning, Weight: 10, Handler: enhance.NewPlanner(client, blobs, logger)},
		{Name: StageGeneration, Weight: 40, Handler: enhance.NewGenerator(client, blobs, logger)},
		{Name: StageComposition, Weight: 20, Handler: enhance.NewComposer(client, blobs, logger)},
	}
}

// StageNames returns the canonical stage order.
func StageNames() []string {
	return []string{StageUploadConfirm, StageAnalysis, StagePlanning, StageGeneration, StageComposition}
}

// stageIndex resolves a persisted stage name to its position. Unknown or
// empty names restart the pipeline from the beginning.
func stageIndex(defs []Definition, name string) int {
	for i, def := range defs {
		if def.Name == name {
			return i
		}
	}
	return 0
}

// weightBefore sums the weights of all stages ahead of index.
func weightBefore(defs []Definition, index int) float64 {
	total := 0.0
	for i := 0; i < index && i < len(defs); i++ {
		total += defs[i].Weight
	}
	return total
}

// overallPercent maps intra-stage progress onto the job-wide scale.
func overallPercent(completedWeight, stageWeight, stagePercent float64) float64 {
	if stagePercent < 0 {
		stagePercent = 0
	}
	if stagePercent > 100 {
		stagePercent = 100
	}
	return completedWeight + stageWeight*stagePercent/100
}

// stageTimeout returns the execution budget for a stage.
func stageTimeout(cfg *config.Config, name string) time.Duration {
	seconds := 0
	switch name {
	case StageUploadConfirm:
		seconds = cfg.Stages.UploadConfirmTimeout
	case StageAnalysis:
		seconds = cfg.Stages.AnalysisTimeout
	case StagePlanning:
		seconds = cfg.Stages.PlanningTimeout
	case StageGeneration:
		seconds = cfg.Stages.GenerationTimeout
	case StageComposition:
		seconds = cfg.Stages.CompositionTimeout
	}
	if seconds <= 0 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}
