package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestAnalysisService_AnalyzeTrack verifies AnalyzeTrack behavior.
func TestAnalysisService_AnalyzeTrack(t *testing.T) {
	tests := []struct {
		name         string
		trackID      string
		filename     string
		loaderErr    error
		saveErr      error
		wantErr      error
		wantLoads    int32
		wantRuns     int32
		wantSaveCall bool
	}{
		{
			name:         "Happy Path",
			trackID:      "t1",
			filename:     "song.mp3",
			wantLoads:    1,
			wantRuns:     1,
			wantSaveCall: true,
		},
		{
			name:     "Missing filename",
			trackID:  "t1",
			filename: " ",
			wantErr:  domain.ErrInvalidArgument,
		},
		{
			name:     "Missing track id",
			filename: "song.mp3",
			wantErr:  domain.ErrInvalidArgument,
		},
		{
			name:     "Unknown track fails before any work",
			trackID:  "nope",
			filename: "song.mp3",
			wantErr:  domain.ErrTrackNotFound,
		},
		{
			name:      "Missing file",
			trackID:   "t1",
			filename:  "song.mp3",
			loaderErr: fmt.Errorf("%w: song.mp3", domain.ErrFileNotFound),
			wantErr:   domain.ErrFileNotFound,
			wantLoads: 1,
		},
		{
			name:      "Unsupported format",
			trackID:   "t1",
			filename:  "song.txt",
			loaderErr: domain.ErrUnsupportedFormat,
			wantErr:   domain.ErrUnsupportedFormat,
			wantLoads: 1,
		},
		{
			name:         "Persistence failure",
			trackID:      "t1",
			filename:     "song.mp3",
			saveErr:      fmt.Errorf("sqlite: commit: %w: %w", domain.ErrPersistence, errors.New("disk I/O error")),
			wantErr:      domain.ErrPersistence,
			wantLoads:    1,
			wantRuns:     1,
			wantSaveCall: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockRepo(sampleTrack("t1"))
			repo.saveErr = tc.saveErr
			loader := &mockLoader{md: domain.AudioMetadata{Title: domain.StringPtr("Song")}, err: tc.loaderErr}
			pipeline := &mockPipeline{result: sampleResult()}
			svc := NewAnalysisService(repo, loader, pipeline, zap.NewNop())

			got, err := svc.AnalyzeTrack(context.Background(), tc.trackID, tc.filename)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				_, getErr := repo.GetAnalysis(context.Background(), "t1")
				assert.ErrorIs(t, getErr, domain.ErrAnalysisNotFound, "no partial record")
			} else {
				require.NoError(t, err)
				assert.Equal(t, "t1", got.TrackID)
				assert.Equal(t, sampleResult(), got.Result())
			}
			assert.Equal(t, tc.wantLoads, loader.calls.Load())
			assert.Equal(t, tc.wantRuns, pipeline.runs.Load())
			assert.Equal(t, tc.wantSaveCall, repo.saveCount() > 0)
		})
	}
}

func TestAnalysisService_AllDefaultsStillPersisted(t *testing.T) {
	repo := newMockRepo(sampleTrack("t1"))
	pipeline := &mockPipeline{result: domain.NewAnalysisResult()}
	svc := NewAnalysisService(repo, &mockLoader{}, pipeline, zap.NewNop())

	got, err := svc.AnalyzeTrack(context.Background(), "t1", "song.mp3")
	require.NoError(t, err)
	assert.Equal(t, domain.NewAnalysisResult(), got.Result())
}

func TestAnalysisService_RerunReplacesValues(t *testing.T) {
	repo := newMockRepo(sampleTrack("t1"))
	pipeline := &mockPipeline{result: sampleResult()}
	svc := NewAnalysisService(repo, &mockLoader{}, pipeline, zap.NewNop())
	ctx := context.Background()

	first, err := svc.AnalyzeTrack(ctx, "t1", "song.mp3")
	require.NoError(t, err)

	pipeline.result = domain.AnalysisResult{Genres: []string{"Jazz"}, Moods: []string{}, Tempo: 90, Key: "D minor", TimeSignature: "3/4"}
	second, err := svc.AnalyzeTrack(ctx, "t1", "song.mp3")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, pipeline.result, second.Result())
}

func TestAnalysisService_SameTrackRunsSerialize(t *testing.T) {
	repo := newMockRepo(sampleTrack("t1"))
	pipeline := &mockPipeline{result: sampleResult(), delay: 10 * time.Millisecond}
	svc := NewAnalysisService(repo, &mockLoader{}, pipeline, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AnalyzeTrack(context.Background(), "t1", "song.mp3")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), pipeline.runs.Load())
	assert.Equal(t, int32(1), pipeline.maxSeen.Load())
	assert.Equal(t, 0, svc.locks.size())
}

func TestAnalysisService_DifferentTracksRunInParallel(t *testing.T) {
	repo := newMockRepo(sampleTrack("t1"), sampleTrack("t2"))
	pipeline := &mockPipeline{result: sampleResult(), delay: 50 * time.Millisecond}
	svc := NewAnalysisService(repo, &mockLoader{}, pipeline, zap.NewNop())

	var wg sync.WaitGroup
	for _, id := range []string{"t1", "t2"} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AnalyzeTrack(context.Background(), id, "song.mp3")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), pipeline.maxSeen.Load())
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlockB, err := k.Lock(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 2, k.size())

	unlockA()
	unlockB()
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutex_WaiterGivesUpOnCancel(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "t1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "t1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, k.size(), "the holder keeps its entry")

	unlock()
	assert.Equal(t, 0, k.size())

	// The key is usable again once released.
	unlock, err = k.Lock(context.Background(), "t1")
	require.NoError(t, err)
	unlock()
}

func TestAnalysisService_AnalyzeTrack_CanceledWhileWaiting(t *testing.T) {
	repo := newMockRepo(sampleTrack("t1"))
	pipeline := &mockPipeline{result: sampleResult()}
	svc := NewAnalysisService(repo, &mockLoader{}, pipeline, zap.NewNop())

	// Hold the track's lock as a slow run would.
	unlock, err := svc.locks.Lock(context.Background(), "t1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = svc.AnalyzeTrack(ctx, "t1", "a.mp3")

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(0), pipeline.runs.Load())
	assert.Equal(t, 0, repo.saves)
}
