package ports

import (
	"context"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
)

// InferenceClient is a black-box text completion capability. Implementations
// wrap every failure in domain.ErrInferenceUnavailable and never retry.
type InferenceClient interface {
	Infer(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// AnalysisPipeline turns track metadata into a complete analysis result.
// Run has no error return: stage failures become safe defaults.
type AnalysisPipeline interface {
	Run(ctx context.Context, md domain.AudioMetadata) domain.AnalysisResult
}
