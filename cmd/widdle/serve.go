package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ewilliams-labs/widdle/internal/adapters/ollama"
	"github.com/ewilliams-labs/widdle/internal/adapters/rest"
	"github.com/ewilliams-labs/widdle/internal/config"
	"github.com/ewilliams-labs/widdle/internal/core/ports"
	"github.com/ewilliams-labs/widdle/internal/core/services"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func runServe() error {
	app := fx.New(
		coreModule(),
		fx.Provide(newHandler, newHTTPServer),
		fx.Invoke(func(*http.Server) {}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

type handlerParams struct {
	fx.In

	Analysis *services.AnalysisService
	Tracks   *services.TrackService
	Mashups  *services.MashupService
	Chat     *services.ChatService
	Repo     ports.Repository
	Ollama   *ollama.Client
	Log      *zap.Logger
}

func newHandler(p handlerParams) *rest.Handler {
	return rest.NewHandler(
		rest.Services{
			Analysis: p.Analysis,
			Tracks:   p.Tracks,
			Mashups:  p.Mashups,
			Chat:     p.Chat,
		},
		map[string]rest.Pinger{
			"database":  p.Repo,
			"inference": p.Ollama,
		},
		p.Log,
	)
}

func newHTTPServer(lc fx.Lifecycle, cfg config.Config, handler *rest.Handler, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("Widdle API is running", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
