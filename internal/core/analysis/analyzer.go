// Package analysis runs the attribute analysis pipeline: five analyzers that
// ask the inference service about a track's metadata and turn the free-text
// answers into typed values.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/ewilliams-labs/widdle/internal/core/ports"
	"go.uber.org/zap"
)

const (
	genreSystemPrompt         = "You are an expert music genre classifier. Analyze the given audio metadata and suggest possible genres."
	moodSystemPrompt          = "You are an expert in music mood analysis. Analyze the given audio metadata and suggest possible moods."
	tempoSystemPrompt         = "You are an expert in music tempo analysis. Analyze the given audio metadata and suggest the tempo in BPM."
	keySystemPrompt           = "You are an expert in music key analysis. Analyze the given audio metadata and suggest the musical key."
	timeSignatureSystemPrompt = "You are an expert in music time signature analysis. Analyze the given audio metadata and suggest the time signature."
)

// StagePolicy bounds one analyzer stage. Attempts counts inference calls, so
// 1 means no retry. A zero Timeout disables the stage deadline.
type StagePolicy struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

// DefaultStagePolicy is a single attempt bounded at thirty seconds.
var DefaultStagePolicy = StagePolicy{
	Timeout:  30 * time.Second,
	Attempts: 1,
	Backoff:  500 * time.Millisecond,
}

// Analyzer produces one attribute from metadata. Analyze never fails: on any
// inference or parse error it logs and returns the attribute's safe default.
type Analyzer[T any] struct {
	attribute    domain.Attribute
	systemPrompt string
	task         string
	parse        func(string) (T, error)
	fallback     func() T

	client ports.InferenceClient
	policy StagePolicy
	log    *zap.Logger
}

func newAnalyzer[T any](
	attribute domain.Attribute,
	systemPrompt, task string,
	parse func(string) (T, error),
	fallback func() T,
	client ports.InferenceClient,
	policy StagePolicy,
	log *zap.Logger,
) *Analyzer[T] {
	return &Analyzer[T]{
		attribute:    attribute,
		systemPrompt: systemPrompt,
		task:         task,
		parse:        parse,
		fallback:     fallback,
		client:       client,
		policy:       policy,
		log:          log.With(zap.String("attribute", string(attribute))),
	}
}

func NewGenreAnalyzer(client ports.InferenceClient, policy StagePolicy, log *zap.Logger) *Analyzer[[]string] {
	return newAnalyzer(domain.AttributeGenre, genreSystemPrompt, "suggest possible genres",
		parseLabels, emptyLabels, client, policy, log)
}

func NewMoodAnalyzer(client ports.InferenceClient, policy StagePolicy, log *zap.Logger) *Analyzer[[]string] {
	return newAnalyzer(domain.AttributeMood, moodSystemPrompt, "suggest possible moods",
		parseLabels, emptyLabels, client, policy, log)
}

func NewTempoAnalyzer(client ports.InferenceClient, policy StagePolicy, log *zap.Logger) *Analyzer[int] {
	return newAnalyzer(domain.AttributeTempo, tempoSystemPrompt, "suggest the tempo in BPM",
		parseTempo, func() int { return 0 }, client, policy, log)
}

func NewKeyAnalyzer(client ports.InferenceClient, policy StagePolicy, log *zap.Logger) *Analyzer[string] {
	return newAnalyzer(domain.AttributeKey, keySystemPrompt, "suggest the musical key",
		parseText, func() string { return "" }, client, policy, log)
}

func NewTimeSignatureAnalyzer(client ports.InferenceClient, policy StagePolicy, log *zap.Logger) *Analyzer[string] {
	return newAnalyzer(domain.AttributeTimeSignature, timeSignatureSystemPrompt, "suggest the time signature",
		parseText, func() string { return "" }, client, policy, log)
}

func emptyLabels() []string { return []string{} }

// Attribute reports which attribute the analyzer produces.
func (a *Analyzer[T]) Attribute() domain.Attribute {
	return a.attribute
}

// Analyze asks the inference service about md and parses the answer.
func (a *Analyzer[T]) Analyze(ctx context.Context, md domain.AudioMetadata) T {
	userPrompt, err := a.userPrompt(md)
	if err != nil {
		a.log.Warn("analysis: could not serialize metadata, using safe default", zap.Error(err))
		return a.fallback()
	}

	if a.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.policy.Timeout)
		defer cancel()
	}

	text, err := a.infer(ctx, userPrompt)
	if err != nil {
		a.log.Warn("analysis: inference failed, using safe default", zap.Error(err))
		return a.fallback()
	}

	value, err := a.parse(text)
	if err != nil {
		a.log.Warn("analysis: unparseable response, using safe default",
			zap.String("response", truncate(text, 200)),
			zap.Error(err),
		)
		return a.fallback()
	}
	return value
}

func (a *Analyzer[T]) userPrompt(md domain.AudioMetadata) (string, error) {
	raw, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("analysis: marshal metadata: %w", err)
	}
	return fmt.Sprintf("Analyze this audio metadata and %s: %s", a.task, raw), nil
}
