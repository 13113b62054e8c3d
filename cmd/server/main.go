// Command server serves flood probabilities for catalog stations from the
// latest trained artifacts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/flood-risk-ensemble/internal/adapter/http"
	"github.com/couchcryptid/flood-risk-ensemble/internal/adapter/openmeteo"
	"github.com/couchcryptid/flood-risk-ensemble/internal/artifact"
	"github.com/couchcryptid/flood-risk-ensemble/internal/config"
	"github.com/couchcryptid/flood-risk-ensemble/internal/ensemble"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
	"github.com/couchcryptid/flood-risk-ensemble/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	artifacts, err := artifact.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open artifact store", "error", err)
		os.Exit(1)
	}

	registry := model.NewRegistry(logger, metrics)
	if err := registry.Load(ctx, artifacts); err != nil {
		logger.Warn("some artifacts could not be loaded", "error", err)
	}
	if !registry.AllTrained() {
		logger.Warn("serving with untrained models, run the train command")
	}

	fusion, err := ensemble.ParseFusion(cfg.FusionMode)
	if err != nil {
		logger.Error("invalid fusion mode", "error", err)
		os.Exit(1)
	}

	client := openmeteo.NewClient(cfg.WeatherBaseURL, cfg.WeatherTimeout, logger, metrics)
	weather := openmeteo.NewCachedSource(client, cfg.WeatherCacheSize, cfg.WeatherCacheTTL, clockwork.NewRealClock(), metrics)
	stations := store.NewStationRepo(db)
	predictor := ensemble.NewPredictor(registry, stations, weather, store.NewHistoryRepo(db), fusion, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Predictor:    predictor,
		Stations:     stations,
		Registry:     registry,
		Artifacts:    artifacts,
		Ready:        readiness{db, artifacts},
		HistoryLimit: cfg.HistoryLimit,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

// readiness is ready when every dependency is.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("dependency not ready: %w", err)
		}
	}
	return nil
}
