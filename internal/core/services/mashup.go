package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/ewilliams-labs/widdle/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const mashupSystemPrompt = "You are a creative music producer describing AI-generated audio mashups."

// MashupResult is the outcome of a rendered mashup.
type MashupResult struct {
	Track       domain.Track `json:"track"`
	Description string       `json:"description"`
}

// MashupService renders several stored tracks into a new one.
type MashupService struct {
	repo      ports.Repository
	files     ports.FileStore
	loader    ports.MetadataLoader
	encoder   ports.MashupEncoder
	inference ports.InferenceClient
	log       *zap.Logger
	newID     func() string
}

func NewMashupService(
	repo ports.Repository,
	files ports.FileStore,
	loader ports.MetadataLoader,
	encoder ports.MashupEncoder,
	inference ports.InferenceClient,
	log *zap.Logger,
) *MashupService {
	return &MashupService{
		repo:      repo,
		files:     files,
		loader:    loader,
		encoder:   encoder,
		inference: inference,
		log:       log,
		newID:     uuid.NewString,
	}
}

// Create concatenates the tracks in order, records the output as a new track
// and asks the inference service for a description. A failed description is
// logged and left empty.
func (s *MashupService) Create(ctx context.Context, trackIDs []string) (MashupResult, error) {
	// 1. Build and validate the mashup from stored tracks
	if len(trackIDs) < domain.MinMashupTracks {
		return MashupResult{}, fmt.Errorf("service: domain rule violation: %w", domain.ErrTooFewTracks)
	}
	mashup, err := domain.NewMashup(s.newID())
	if err != nil {
		return MashupResult{}, err
	}
	for _, id := range trackIDs {
		track, err := s.repo.GetTrack(ctx, strings.TrimSpace(id))
		if err != nil {
			return MashupResult{}, fmt.Errorf("service: failed to load track: %w", err)
		}
		if err := mashup.AddTrack(track); err != nil {
			return MashupResult{}, fmt.Errorf("service: domain rule violation: %w", err)
		}
	}
	if err := mashup.Validate(); err != nil {
		return MashupResult{}, fmt.Errorf("service: domain rule violation: %w", err)
	}

	// 2. Render the audio
	output := mashup.ID + ".mp3"
	if err := s.encoder.Encode(ctx, mashup.Filenames(), output); err != nil {
		return MashupResult{}, fmt.Errorf("service: failed to encode mashup: %w", err)
	}

	// 3. Record the output as a track
	md, err := s.loader.Load(ctx, output)
	if err != nil {
		s.log.Warn("mashup metadata unreadable, using summed duration", zap.String("filename", output), zap.Error(err))
		md = domain.AudioMetadata{DurationSeconds: mashup.Duration()}
	}
	track, err := domain.NewTrack(mashup.ID, output, md)
	if err != nil {
		s.discard(output)
		return MashupResult{}, fmt.Errorf("service: domain rule violation: %w", err)
	}
	track.Title = domain.MashupTitle
	track.Artist = domain.MashupArtist
	if err := s.repo.CreateTrack(ctx, track); err != nil {
		s.discard(output)
		return MashupResult{}, fmt.Errorf("service: failed to save mashup track: %w", err)
	}

	// 4. Describe it
	description := s.describe(ctx, mashup)

	s.log.Info("mashup created",
		zap.String("track_id", track.ID),
		zap.Int("sources", len(mashup.Tracks)),
		zap.Float64("duration", track.Duration),
	)
	return MashupResult{Track: track, Description: description}, nil
}

// discard removes a rendered file that never became a track. It runs on a
// fresh context so a canceled request still cleans up.
func (s *MashupService) discard(filename string) {
	if err := s.files.Remove(context.Background(), filename); err != nil {
		s.log.Warn("failed to remove orphaned mashup", zap.String("filename", filename), zap.Error(err))
	}
}

type mashupSource struct {
	Title    string                 `json:"title"`
	Artist   string                 `json:"artist"`
	Analysis *domain.AnalysisResult `json:"analysis,omitempty"`
}

func (s *MashupService) describe(ctx context.Context, m *domain.Mashup) string {
	sources := make([]mashupSource, 0, len(m.Tracks))
	var results []domain.AnalysisResult
	for _, t := range m.Tracks {
		r, err := analysisOrNil(ctx, s.repo, t.ID)
		if err != nil {
			s.log.Warn("mashup source analysis unavailable", zap.String("track_id", t.ID), zap.Error(err))
		}
		if r != nil {
			results = append(results, *r)
		}
		sources = append(sources, mashupSource{Title: t.Title, Artist: t.Artist, Analysis: r})
	}

	raw, err := json.Marshal(map[string]any{
		"sources":      sources,
		"averageTempo": domain.AverageTempo(results),
	})
	if err != nil {
		s.log.Warn("mashup description skipped", zap.Error(err))
		return ""
	}

	prompt := fmt.Sprintf("Based on the analysis: %s, create a description for an AI-generated audio mashup. "+
		"Include details about the potential genre, mood, tempo, and overall feel of the mashup.", raw)
	text, err := s.inference.Infer(ctx, mashupSystemPrompt, prompt)
	if err != nil {
		s.log.Warn("mashup description failed", zap.String("track_id", m.ID), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}
