package analysis

import (
	"context"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/ewilliams-labs/widdle/internal/core/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pipeline sequences the five analyzers and aggregates their values. Stages
// are independent: each receives the original metadata.
type Pipeline struct {
	genre         *Analyzer[[]string]
	mood          *Analyzer[[]string]
	tempo         *Analyzer[int]
	key           *Analyzer[string]
	timeSignature *Analyzer[string]

	concurrent bool
	log        *zap.Logger
}

type pipelineOptions struct {
	policy     StagePolicy
	concurrent bool
}

type Option func(*pipelineOptions)

// WithStagePolicy sets the timeout and retry policy applied to every stage.
func WithStagePolicy(p StagePolicy) Option {
	return func(o *pipelineOptions) { o.policy = p }
}

// WithConcurrentStages runs the stages in parallel instead of in order.
func WithConcurrentStages(enabled bool) Option {
	return func(o *pipelineOptions) { o.concurrent = enabled }
}

// NewPipeline builds the five analyzers around one inference client.
func NewPipeline(client ports.InferenceClient, log *zap.Logger, opts ...Option) *Pipeline {
	o := pipelineOptions{policy: DefaultStagePolicy}
	for _, opt := range opts {
		opt(&o)
	}
	return &Pipeline{
		genre:         NewGenreAnalyzer(client, o.policy, log),
		mood:          NewMoodAnalyzer(client, o.policy, log),
		tempo:         NewTempoAnalyzer(client, o.policy, log),
		key:           NewKeyAnalyzer(client, o.policy, log),
		timeSignature: NewTimeSignatureAnalyzer(client, o.policy, log),
		concurrent:    o.concurrent,
		log:           log,
	}
}

type stage struct {
	attribute domain.Attribute
	run       func(ctx context.Context, md domain.AudioMetadata, r *domain.AnalysisResult)
}

// stages lists the analyzers in pipeline order. Each stage writes only its
// own field of the result.
func (p *Pipeline) stages() []stage {
	return []stage{
		{p.genre.Attribute(), func(ctx context.Context, md domain.AudioMetadata, r *domain.AnalysisResult) {
			r.Genres = p.genre.Analyze(ctx, md)
		}},
		{p.mood.Attribute(), func(ctx context.Context, md domain.AudioMetadata, r *domain.AnalysisResult) {
			r.Moods = p.mood.Analyze(ctx, md)
		}},
		{p.tempo.Attribute(), func(ctx context.Context, md domain.AudioMetadata, r *domain.AnalysisResult) {
			r.Tempo = p.tempo.Analyze(ctx, md)
		}},
		{p.key.Attribute(), func(ctx context.Context, md domain.AudioMetadata, r *domain.AnalysisResult) {
			r.Key = p.key.Analyze(ctx, md)
		}},
		{p.timeSignature.Attribute(), func(ctx context.Context, md domain.AudioMetadata, r *domain.AnalysisResult) {
			r.TimeSignature = p.timeSignature.Analyze(ctx, md)
		}},
	}
}

// Run executes every stage and returns a complete result. It has no error
// return because analyzers absorb their own failures.
func (p *Pipeline) Run(ctx context.Context, md domain.AudioMetadata) domain.AnalysisResult {
	start := time.Now()
	result := domain.NewAnalysisResult()
	stages := p.stages()

	if p.concurrent {
		var g errgroup.Group
		for _, s := range stages {
			s := s
			g.Go(func() error {
				p.runStage(ctx, s, md, &result)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, s := range stages {
			p.runStage(ctx, s, md, &result)
		}
	}

	p.log.Debug("analysis: pipeline finished",
		zap.Bool("concurrent", p.concurrent),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result.Normalize()
}

func (p *Pipeline) runStage(ctx context.Context, s stage, md domain.AudioMetadata, r *domain.AnalysisResult) {
	start := time.Now()
	s.run(ctx, md, r)
	p.log.Debug("analysis: stage finished",
		zap.String("attribute", string(s.attribute)),
		zap.Duration("elapsed", time.Since(start)),
	)
}
