package ports

import (
	"context"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
)

type TrackRepository interface {
	CreateTrack(ctx context.Context, t domain.Track) error
	// GetTrack returns domain.ErrTrackNotFound when no track has the id.
	GetTrack(ctx context.Context, id string) (domain.Track, error)
	ListTracks(ctx context.Context) ([]domain.Track, error)
}

type AnalysisRepository interface {
	// SaveAnalysis upserts the analysis of a track in one transaction. It
	// returns domain.ErrTrackNotFound for unknown tracks and wraps store
	// failures in domain.ErrPersistence.
	SaveAnalysis(ctx context.Context, trackID string, result domain.AnalysisResult) (domain.AudioAnalysis, error)
	// GetAnalysis returns domain.ErrAnalysisNotFound when the track has not been analyzed.
	GetAnalysis(ctx context.Context, trackID string) (domain.AudioAnalysis, error)
}

// Repository is the full storage port implemented by the sqlite and postgres adapters.
type Repository interface {
	TrackRepository
	AnalysisRepository
	Ping(ctx context.Context) error
	Close() error
}
