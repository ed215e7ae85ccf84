package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/ewilliams-labs/widdle/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TrackService handles uploads and read access to tracks and their analyses.
type TrackService struct {
	repo   ports.Repository
	files  ports.FileStore
	loader ports.MetadataLoader
	log    *zap.Logger
	newID  func() string
}

func NewTrackService(repo ports.Repository, files ports.FileStore, loader ports.MetadataLoader, log *zap.Logger) *TrackService {
	return &TrackService{
		repo:   repo,
		files:  files,
		loader: loader,
		log:    log,
		newID:  uuid.NewString,
	}
}

// Upload stores the file, reads its metadata and records a new track. The
// stored file is removed again if the track cannot be created.
func (s *TrackService) Upload(ctx context.Context, originalName string, data []byte) (domain.Track, error) {
	if len(data) == 0 {
		return domain.Track{}, fmt.Errorf("%w: empty upload", domain.ErrInvalidArgument)
	}

	filename, err := s.files.Store(ctx, originalName, data)
	if err != nil {
		return domain.Track{}, fmt.Errorf("service: failed to store upload: %w", err)
	}

	track, err := s.createTrack(ctx, filename)
	if err != nil {
		if rmErr := s.files.Remove(ctx, filename); rmErr != nil {
			s.log.Warn("failed to remove rejected upload", zap.String("filename", filename), zap.Error(rmErr))
		}
		return domain.Track{}, err
	}

	s.log.Info("track uploaded", zap.String("track_id", track.ID), zap.String("filename", filename))
	return track, nil
}

func (s *TrackService) createTrack(ctx context.Context, filename string) (domain.Track, error) {
	md, err := s.loader.Load(ctx, filename)
	if err != nil {
		return domain.Track{}, fmt.Errorf("service: failed to load metadata: %w", err)
	}
	track, err := domain.NewTrack(s.newID(), filename, md)
	if err != nil {
		return domain.Track{}, fmt.Errorf("service: domain rule violation: %w", err)
	}
	if err := s.repo.CreateTrack(ctx, track); err != nil {
		return domain.Track{}, fmt.Errorf("service: failed to save track: %w", err)
	}
	return track, nil
}

func (s *TrackService) List(ctx context.Context) ([]domain.Track, error) {
	tracks, err := s.repo.ListTracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list tracks: %w", err)
	}
	return tracks, nil
}

func (s *TrackService) Get(ctx context.Context, id string) (domain.Track, error) {
	track, err := s.repo.GetTrack(ctx, id)
	if err != nil {
		return domain.Track{}, fmt.Errorf("service: failed to load track: %w", err)
	}
	return track, nil
}

// GetAnalysis returns ErrTrackNotFound for unknown tracks and
// ErrAnalysisNotFound for known tracks that were never analyzed.
func (s *TrackService) GetAnalysis(ctx context.Context, trackID string) (domain.AudioAnalysis, error) {
	if _, err := s.repo.GetTrack(ctx, trackID); err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("service: failed to load track: %w", err)
	}
	analysis, err := s.repo.GetAnalysis(ctx, trackID)
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("service: failed to load analysis: %w", err)
	}
	return analysis, nil
}

// analysisOrNil loads an analysis, treating a missing one as absent.
func analysisOrNil(ctx context.Context, repo ports.AnalysisRepository, trackID string) (*domain.AnalysisResult, error) {
	a, err := repo.GetAnalysis(ctx, trackID)
	if errors.Is(err, domain.ErrAnalysisNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := a.Result()
	return &r, nil
}
