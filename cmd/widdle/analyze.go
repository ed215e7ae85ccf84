package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ewilliams-labs/widdle/internal/config"
	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/ewilliams-labs/widdle/internal/core/ports"
	"github.com/ewilliams-labs/widdle/internal/core/services"
	"github.com/ewilliams-labs/widdle/internal/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type analyzeDeps struct {
	fx.In

	Config   config.Config
	Repo     ports.Repository
	Analysis *services.AnalysisService
	Log      *zap.Logger
}

func runAnalyze(ctx context.Context, trackIDs []string, workers, queue int) error {
	var deps analyzeDeps
	app := fx.New(coreModule(), fx.Populate(&deps))
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	tracks, err := selectTracks(ctx, deps.Repo, trackIDs)
	if err != nil {
		return err
	}

	// One pipeline run can take five stage timeouts.
	jobTimeout := 5*deps.Config.StageTimeout + time.Minute
	pool := worker.NewPool(deps.Analysis, deps.Log, queue, jobTimeout)
	pool.Start(ctx, workers)
	for _, t := range tracks {
		if err := pool.SubmitWait(ctx, worker.Job{TrackID: t.ID, Filename: t.Filename}); err != nil {
			break
		}
	}
	stats := pool.Stop()

	deps.Log.Info("analyze finished",
		zap.Int("tracks", len(tracks)),
		zap.Int64("succeeded", stats.Succeeded),
		zap.Int64("failed", stats.Failed),
		zap.Int64("dropped", stats.Dropped),
	)
	if stats.Failed+stats.Dropped > 0 {
		return fmt.Errorf("analyze: %d of %d tracks not analyzed", stats.Failed+stats.Dropped, len(tracks))
	}
	return nil
}

func selectTracks(ctx context.Context, repo ports.TrackRepository, ids []string) ([]domain.Track, error) {
	if len(ids) == 0 {
		return repo.ListTracks(ctx)
	}
	tracks := make([]domain.Track, 0, len(ids))
	for _, id := range ids {
		t, err := repo.GetTrack(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", id, err)
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}
