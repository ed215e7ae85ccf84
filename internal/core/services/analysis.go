// Package services holds the application use cases. Each service coordinates
// ports and keeps transport concerns out of the domain.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/ewilliams-labs/widdle/internal/core/ports"
	"go.uber.org/zap"
)

// AnalysisService runs the attribute pipeline for a stored track and
// persists the result.
type AnalysisService struct {
	repo     ports.Repository
	loader   ports.MetadataLoader
	pipeline ports.AnalysisPipeline
	locks    *keyedMutex
	log      *zap.Logger
}

// NewAnalysisService constructs an AnalysisService.
func NewAnalysisService(repo ports.Repository, loader ports.MetadataLoader, pipeline ports.AnalysisPipeline, log *zap.Logger) *AnalysisService {
	return &AnalysisService{
		repo:     repo,
		loader:   loader,
		pipeline: pipeline,
		locks:    newKeyedMutex(),
		log:      log,
	}
}

// AnalyzeTrack loads the metadata of filename, analyzes it and upserts the
// analysis of trackID. A failed run persists nothing.
func (s *AnalysisService) AnalyzeTrack(ctx context.Context, trackID, filename string) (domain.AudioAnalysis, error) {
	trackID = strings.TrimSpace(trackID)
	filename = strings.TrimSpace(filename)
	if trackID == "" || filename == "" {
		return domain.AudioAnalysis{}, fmt.Errorf("%w: trackId and filename are required", domain.ErrInvalidArgument)
	}

	// 1. The track must exist before any analyzer work happens
	if _, err := s.repo.GetTrack(ctx, trackID); err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("service: failed to load track: %w", err)
	}

	// 2. Serialize runs for the same track
	unlock, err := s.locks.Lock(ctx, trackID)
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("service: waiting for track %s: %w", trackID, err)
	}
	defer unlock()

	// 3. Read the file's metadata
	md, err := s.loader.Load(ctx, filename)
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("service: failed to load metadata: %w", err)
	}

	// 4. Run the pipeline; stage failures are already absorbed
	start := time.Now()
	result := s.pipeline.Run(ctx, md)

	// 5. Persist the complete result
	saved, err := s.repo.SaveAnalysis(ctx, trackID, result)
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("service: failed to save analysis: %w", err)
	}

	s.log.Info("analysis saved",
		zap.String("track_id", trackID),
		zap.String("analysis_id", saved.ID),
		zap.Strings("genres", result.Genres),
		zap.Int("tempo", result.Tempo),
		zap.Duration("elapsed", time.Since(start)),
	)
	return saved, nil
}
