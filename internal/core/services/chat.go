package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/ewilliams-labs/widdle/internal/core/ports"
	"go.uber.org/zap"
)

const chatSystemPrompt = "You are a helpful music assistant. Answer questions about the user's tracks using only the provided context."

// maxContextTracks bounds how many tracks are described in one prompt.
const maxContextTracks = 20

// ChatService answers free-form questions about stored tracks.
type ChatService struct {
	repo      ports.Repository
	inference ports.InferenceClient
	log       *zap.Logger
}

func NewChatService(repo ports.Repository, inference ports.InferenceClient, log *zap.Logger) *ChatService {
	return &ChatService{repo: repo, inference: inference, log: log}
}

// Query answers query using one track as context, or the most recent tracks
// when trackID is empty. Inference failures are returned, not absorbed.
func (s *ChatService) Query(ctx context.Context, query, trackID string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: query is required", domain.ErrInvalidArgument)
	}

	var tracks []domain.Track
	if trackID = strings.TrimSpace(trackID); trackID != "" {
		t, err := s.repo.GetTrack(ctx, trackID)
		if err != nil {
			return "", fmt.Errorf("service: failed to load track: %w", err)
		}
		tracks = []domain.Track{t}
	} else {
		all, err := s.repo.ListTracks(ctx)
		if err != nil {
			return "", fmt.Errorf("service: failed to list tracks: %w", err)
		}
		tracks = all
		if len(tracks) > maxContextTracks {
			tracks = tracks[:maxContextTracks]
		}
	}

	var b strings.Builder
	for _, t := range tracks {
		fmt.Fprintf(&b, "- %q by %s (%.0fs)", t.Title, t.Artist, t.Duration)
		r, err := analysisOrNil(ctx, s.repo, t.ID)
		if err != nil {
			return "", fmt.Errorf("service: failed to load analysis: %w", err)
		}
		if r != nil {
			fmt.Fprintf(&b, ": genres %s; moods %s; tempo %d BPM; key %s; time signature %s",
				strings.Join(r.Genres, ", "), strings.Join(r.Moods, ", "), r.Tempo, r.Key, r.TimeSignature)
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		b.WriteString("No tracks have been uploaded yet.\n")
	}

	prompt := fmt.Sprintf("Context: %s\nQuestion: %s\n\nAnswer:", b.String(), query)
	answer, err := s.inference.Infer(ctx, chatSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("service: failed to answer query: %w", err)
	}

	s.log.Debug("query answered", zap.String("track_id", trackID), zap.Int("context_tracks", len(tracks)))
	return strings.TrimSpace(answer), nil
}
