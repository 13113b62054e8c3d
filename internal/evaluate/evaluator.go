package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/flood-risk-ensemble/internal/artifact"
	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/ensemble"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
)

const (
	// SnapshotName is the artifact holding the latest metrics record.
	SnapshotName = "metrics.json"

	// EnsembleName keys the fused scores in a MetricsRecord.
	EnsembleName = "Ensemble"
)

// Evaluator scores the registry's models on a held-out split.
type Evaluator struct {
	registry *model.Registry
	fusion   ensemble.Fusion
	store    artifact.Store
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates an Evaluator. Snapshots are written to store.
func New(registry *model.Registry, fusion ensemble.Fusion, store artifact.Store, logger *slog.Logger, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{
		registry: registry,
		fusion:   fusion,
		store:    store,
		logger:   logger,
		metrics:  metrics,
	}
}

// Evaluate scores every model and the fused ensemble on test, then
// overwrites the snapshot. It returns an empty record without writing
// anything when any slot is untrained.
func (e *Evaluator) Evaluate(ctx context.Context, test model.Dataset) (domain.MetricsRecord, error) {
	if !e.registry.AllTrained() {
		e.logger.Info("evaluation skipped, not every model is trained")
		return domain.MetricsRecord{}, nil
	}
	if test.Len() == 0 {
		return nil, fmt.Errorf("evaluate: %w", model.ErrEmptyDataset)
	}

	record := make(domain.MetricsRecord, len(model.Kinds)+1)
	columns := make([][]float64, 0, len(model.Kinds))
	for _, kind := range model.Kinds {
		c, ok := e.registry.Get(kind)
		if !ok {
			e.logger.Info("evaluation skipped, model unloaded mid-run", "model", kind)
			return domain.MetricsRecord{}, nil
		}
		probs, err := c.PredictProba(test.X)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", kind, err)
		}
		record[kind.DisplayName()] = Score(test.Y, probs)
		columns = append(columns, probs)
	}
	record[EnsembleName] = Score(test.Y, e.fusion.FuseColumns(columns))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.observe(record)
	if err := Save(ctx, e.store, record); err != nil {
		return record, err
	}

	ens := record[EnsembleName]
	e.logger.Info("evaluation complete",
		"rows", test.Len(),
		"fusion", e.fusion,
		"ensemble_accuracy", ens.Accuracy,
		"ensemble_f1", ens.F1,
		"ensemble_auc", ens.AUCROC,
	)
	return record, nil
}

func (e *Evaluator) observe(record domain.MetricsRecord) {
	for name, m := range record {
		for metric, v := range map[string]float64{
			"accuracy":  m.Accuracy,
			"precision": m.Precision,
			"recall":    m.Recall,
			"f1":        m.F1,
			"mcc":       m.MCC,
			"auc_roc":   m.AUCROC,
		} {
			e.metrics.EvaluationScore.WithLabelValues(name, metric).Set(v)
		}
	}
}

// Save overwrites the metrics snapshot.
func Save(ctx context.Context, store artifact.Store, record domain.MetricsRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	if err := store.Put(ctx, SnapshotName, data); err != nil {
		return fmt.Errorf("%w: save %s: %w", domain.ErrPersistence, SnapshotName, err)
	}
	return nil
}

// Load reads the latest snapshot. It returns an error wrapping
// artifact.ErrNotFound when no evaluation has been persisted yet.
func Load(ctx context.Context, store artifact.Store) (domain.MetricsRecord, error) {
	data, err := store.Get(ctx, SnapshotName)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", domain.ErrPersistence, SnapshotName, err)
	}
	var record domain.MetricsRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", domain.ErrPersistence, SnapshotName, err)
	}
	return record, nil
}
