// Command train reconciles the raw data, trains the three models, evaluates
// the ensemble, and writes the artifacts the server loads.
//
// Usage:
//
//	go run ./cmd/train -reconcile -sample-limit 100000
//
// The run is resumable: a model whose stored artifact was trained on the
// same split is skipped unless -force is given.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/flood-risk-ensemble/internal/adapter/kafka"
	"github.com/couchcryptid/flood-risk-ensemble/internal/artifact"
	"github.com/couchcryptid/flood-risk-ensemble/internal/config"
	"github.com/couchcryptid/flood-risk-ensemble/internal/ensemble"
	"github.com/couchcryptid/flood-risk-ensemble/internal/evaluate"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
	"github.com/couchcryptid/flood-risk-ensemble/internal/pipeline"
	"github.com/couchcryptid/flood-risk-ensemble/internal/reconcile"
	"github.com/couchcryptid/flood-risk-ensemble/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	reconcileFlag := flag.Bool("reconcile", false, "re-read the raw files even if observations are stored")
	sampleLimit := flag.Int("sample-limit", cfg.TrainSampleLimit, "cap on rows used for training and evaluation (0 = all)")
	dataDir := flag.String("data-dir", cfg.DataDir, "directory holding inmet/, ana_inundacao.csv and the station catalog")
	force := flag.Bool("force", false, "retrain models even when their artifact matches the split")
	failFast := flag.Bool("fail-fast", cfg.TrainFailFast, "abort on the first trainer failure")
	flag.Parse()

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer db.Close()

	artifacts, err := artifact.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open artifact store", "error", err)
		return 1
	}

	fusion, err := ensemble.ParseFusion(cfg.FusionMode)
	if err != nil {
		logger.Error("invalid fusion mode", "error", err)
		return 1
	}

	registry := model.NewRegistry(logger, metrics)
	deps := pipeline.Deps{
		Reconciler:   reconcile.New(reconcile.JoinPolicy(cfg.LabelJoin), logger, metrics),
		Sources:      func() (reconcile.Sources, error) { return reconcile.DefaultSources(*dataDir) },
		Observations: store.NewObservationRepo(db),
		Stations:     store.NewStationRepo(db),
		Trainers:     model.DefaultTrainers(logger),
		Registry:     registry,
		Artifacts:    artifacts,
		Evaluator:    evaluate.New(registry, fusion, artifacts, logger, metrics),
		Fusion:       string(fusion),
	}
	if cfg.KafkaEnabled {
		writer := kafka.NewWriter(cfg, logger)
		defer writer.Close()
		deps.Publisher = writer
	}

	summary, err := pipeline.New(deps, logger, metrics).Run(ctx, pipeline.Options{
		Reconcile:    *reconcileFlag,
		SampleLimit:  *sampleLimit,
		MinRows:      cfg.TrainMinRows,
		TestFraction: cfg.TrainTestFraction,
		Force:        *force,
		FailFast:     *failFast,
	})
	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			logger.Error("failed to write summary", "error", err)
		}
	}
	if err != nil {
		logger.Error("training run failed", "error", err)
		return 1
	}
	if len(summary.Failed) > 0 {
		return 1
	}
	return 0
}
