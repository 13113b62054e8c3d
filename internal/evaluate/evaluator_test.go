package evaluate

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-risk-ensemble/internal/artifact"
	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/ensemble"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
)

// fixedClassifier returns a canned probability per row.
type fixedClassifier []float64

func (f fixedClassifier) PredictProba(X [][]float64) ([]float64, error) {
	return append([]float64(nil), f[:len(X)]...), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testSplit = model.Dataset{
	Columns: domain.FeatureColumns,
	X:       [][]float64{{1, 2, 3, 4}, {1, 2, 3, 4}, {1, 2, 3, 4}, {1, 2, 3, 4}},
	Y:       []int{1, 0, 1, 0},
}

func trainedRegistry(metrics *observability.Metrics) *model.Registry {
	r := model.NewRegistry(discardLogger(), metrics)
	r.Install(model.KindForest, fixedClassifier{0.9, 0.1, 0.8, 0.2}, model.Info{})
	r.Install(model.KindBoost, fixedClassifier{0.6, 0.4, 0.3, 0.7}, model.Info{})
	r.Install(model.KindLSTM, fixedClassifier{0.7, 0.2, 0.45, 0.1}, model.Info{})
	return r
}

func newStore(t *testing.T) *artifact.FSStore {
	t.Helper()
	s, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestEvaluate_MeanFusion(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetricsForTesting()
	store := newStore(t)
	e := New(trainedRegistry(metrics), ensemble.FusionMean, store, discardLogger(), metrics)

	record, err := e.Evaluate(ctx, testSplit)
	require.NoError(t, err)

	require.Len(t, record, 4)
	for _, name := range []string{"Random_Forest", "XGBoost", "LSTM", EnsembleName} {
		assert.Contains(t, record, name)
	}
	assert.InDelta(t, 1.0, record["Random_Forest"].Accuracy, 1e-12)
	assert.InDelta(t, 0.5, record["XGBoost"].Accuracy, 1e-12)
	assert.InDelta(t, 1.0, record[EnsembleName].Accuracy, 1e-12)

	saved, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, record, saved)
}

func TestEvaluate_VoteFusion(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	e := New(trainedRegistry(metrics), ensemble.FusionVote, newStore(t), discardLogger(), metrics)

	record, err := e.Evaluate(context.Background(), testSplit)
	require.NoError(t, err)

	ens := record[EnsembleName]
	assert.InDelta(t, 0.75, ens.Accuracy, 1e-12)
	assert.InDelta(t, 0.5, ens.Recall, 1e-12)
	assert.InDelta(t, 1.0, ens.Precision, 1e-12)
}

func TestEvaluate_SkippedWhenUntrained(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetricsForTesting()
	store := newStore(t)
	r := model.NewRegistry(discardLogger(), metrics)
	r.Install(model.KindForest, fixedClassifier{0.9, 0.1, 0.8, 0.2}, model.Info{})

	record, err := New(r, ensemble.FusionMean, store, discardLogger(), metrics).Evaluate(ctx, testSplit)
	require.NoError(t, err)
	assert.NotNil(t, record)
	assert.Empty(t, record)

	_, err = Load(ctx, store)
	require.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestEvaluate_EmptySplit(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	e := New(trainedRegistry(metrics), ensemble.FusionMean, newStore(t), discardLogger(), metrics)

	_, err := e.Evaluate(context.Background(), model.Dataset{Columns: domain.FeatureColumns})
	require.ErrorIs(t, err, model.ErrEmptyDataset)
}

func TestLoad_CorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Put(ctx, SnapshotName, []byte("{not json")))

	_, err := Load(ctx, store)
	require.ErrorIs(t, err, domain.ErrPersistence)
}
