package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ewilliams-labs/widdle/internal/adapters/ffmpeg"
	"github.com/ewilliams-labs/widdle/internal/adapters/metadata"
	"github.com/ewilliams-labs/widdle/internal/adapters/ollama"
	"github.com/ewilliams-labs/widdle/internal/adapters/postgres"
	"github.com/ewilliams-labs/widdle/internal/adapters/sqlite"
	"github.com/ewilliams-labs/widdle/internal/config"
	"github.com/ewilliams-labs/widdle/internal/core/analysis"
	"github.com/ewilliams-labs/widdle/internal/core/ports"
	"github.com/ewilliams-labs/widdle/internal/core/services"
	"github.com/ewilliams-labs/widdle/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// coreModule wires configuration, storage, inference and the use cases.
// Every command builds on it.
func coreModule() fx.Option {
	return fx.Options(
		fx.Provide(
			config.Load,
			newLogger,
			newRepository,
			newOllamaClient,
			func(c *ollama.Client) ports.InferenceClient { return c },
			newPipeline,
			newMetadataLoader,
			newFileStore,
			newEncoder,

			services.NewAnalysisService,
			services.NewTrackService,
			services.NewMashupService,
			services.NewChatService,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logger.New(cfg.LogLevel)
}

// newRepository opens the store named by STORAGE_DRIVER. Both adapters
// migrate on open.
func newRepository(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (ports.Repository, error) {
	var (
		repo ports.Repository
		err  error
	)
	switch cfg.StorageDriver {
	case "sqlite":
		repo, err = sqlite.NewAdapter(cfg.SQLitePath)
	case "postgres":
		repo, err = postgres.NewAdapter(context.Background(), cfg.DatabaseURL, log)
	default:
		err = fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}
	if err != nil {
		return nil, err
	}

	log.Info("storage ready", zap.String("driver", cfg.StorageDriver))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return repo.Close()
		},
	})
	return repo, nil
}

func newOllamaClient(cfg config.Config, log *zap.Logger) *ollama.Client {
	if !cfg.OAuthEnabled() {
		return ollama.NewClient(cfg.OllamaBaseURL, cfg.OllamaModel, nil)
	}
	log.Info("inference: using client credentials", zap.String("token_url", cfg.OllamaTokenURL))
	httpClient := ollama.NewOAuthHTTPClient(context.Background(), ollama.OAuthConfig{
		TokenURL:     cfg.OllamaTokenURL,
		ClientID:     cfg.OllamaClientID,
		ClientSecret: cfg.OllamaClientSecret,
	}, cfg.OllamaTimeout)
	return ollama.NewClient(cfg.OllamaBaseURL, cfg.OllamaModel, httpClient)
}

func newPipeline(cfg config.Config, client ports.InferenceClient, log *zap.Logger) ports.AnalysisPipeline {
	return analysis.NewPipeline(client, log,
		analysis.WithStagePolicy(analysis.StagePolicy{
			Timeout:  cfg.StageTimeout,
			Attempts: cfg.StageAttempts,
			Backoff:  cfg.StageBackoff,
		}),
		analysis.WithConcurrentStages(cfg.ConcurrentStages),
	)
}

func newMetadataLoader(cfg config.Config, log *zap.Logger) ports.MetadataLoader {
	return metadata.NewLoader(cfg.UploadsDir, log)
}

func newFileStore(cfg config.Config) (ports.FileStore, error) {
	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("uploads dir: %w", err)
	}
	return metadata.NewFileStore(cfg.UploadsDir), nil
}

func newEncoder(cfg config.Config, log *zap.Logger) ports.MashupEncoder {
	enc := ffmpeg.NewEncoder(cfg.FFmpegPath, cfg.UploadsDir, log)
	if err := enc.Available(); err != nil {
		log.Warn("mashups disabled until ffmpeg is installed", zap.Error(err))
	}
	return enc
}
