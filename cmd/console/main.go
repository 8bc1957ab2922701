package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tair/product-console/internal/console"
	"github.com/tair/product-console/internal/console/config"
	"github.com/tair/product-console/pkg/logger"
	"github.com/tair/product-console/pkg/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Init("product-console", true)
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	logger.Init(cfg.ServiceName, cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)

	logger.Logger.Info().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("log_level", cfg.LogLevel).
		Str("backend_url", cfg.Backend.URL).
		Str("push_transport", cfg.Push.Transport).
		Msg("Starting product console")

	// Initialize tracer
	tp, err := tracing.InitTracer(tracing.Config{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(ctx, tp); err != nil {
				logger.Logger.Error().Err(err).Msg("Failed to shutdown tracer")
			}
		}()
	}

	// Initialize console with Wire DI
	app, err := console.InitializeConsole(cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to initialize console")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go app.Hub.Run(ctx)
	go app.Sessions.Run(ctx, time.Minute)

	if app.Listener != nil {
		if err := app.Listener.Start(ctx); err != nil {
			logger.Logger.Fatal().
				Err(err).
				Str("transport", app.Listener.Name()).
				Msg("Failed to start push listener")
		}
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Logger.Info().
			Str("addr", addr).
			Str("metrics_endpoint", "/metrics").
			Msg("HTTP server started")

		if err := app.App.Listen(addr); err != nil {
			logger.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Logger.Info().Msg("Shutting down product console...")

	if err := app.App.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := app.Close(); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to release console resources")
	}

	logger.Logger.Info().Msg("Product console stopped")
}
