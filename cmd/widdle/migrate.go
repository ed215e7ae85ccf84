package main

import (
	"context"
	"time"

	"github.com/ewilliams-labs/widdle/internal/config"
	"github.com/ewilliams-labs/widdle/internal/core/ports"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runMigrate opens the configured store, which applies the schema, and exits.
func runMigrate(ctx context.Context) error {
	var (
		cfg config.Config
		log *zap.Logger
	)
	app := fx.New(
		coreModule(),
		fx.Invoke(func(ports.Repository) {}),
		fx.Populate(&cfg, &log),
	)
	if err := app.Start(ctx); err != nil {
		return err
	}
	log.Info("schema up to date", zap.String("driver", cfg.StorageDriver))

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Stop(stopCtx)
}
