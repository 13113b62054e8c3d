package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-risk-ensemble/internal/artifact"
	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/ensemble"
	"github.com/couchcryptid/flood-risk-ensemble/internal/evaluate"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
	"github.com/couchcryptid/flood-risk-ensemble/internal/pipeline"
	"github.com/couchcryptid/flood-risk-ensemble/internal/reconcile"
)

// --- mocks ---

type mockReconciler struct {
	mu      sync.Mutex
	calls   int
	result  *reconcile.Result
	err     error
	started chan struct{}
	release chan struct{}
}

func (m *mockReconciler) Reconcile(ctx context.Context, _ reconcile.Sources) (*reconcile.Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.started != nil {
		close(m.started)
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.result, m.err
}

type memObservations struct {
	rows []domain.LabeledRow
}

func (m *memObservations) Replace(_ context.Context, rows []domain.LabeledRow) error {
	m.rows = append([]domain.LabeledRow(nil), rows...)
	return nil
}

func (m *memObservations) Count(context.Context) (int, error) { return len(m.rows), nil }

func (m *memObservations) All(context.Context) ([]domain.LabeledRow, error) { return m.rows, nil }

type memStations struct {
	stations []domain.Station
}

func (m *memStations) Replace(_ context.Context, stations []domain.Station) error {
	m.stations = stations
	return nil
}

type mockPublisher struct {
	events []domain.EvaluationEvent
	err    error
}

func (m *mockPublisher) PublishEvaluation(_ context.Context, e domain.EvaluationEvent) error {
	m.events = append(m.events, e)
	return m.err
}

type failingTrainer struct {
	kind model.Kind
}

func (f failingTrainer) Kind() model.Kind { return f.kind }

func (f failingTrainer) Train(context.Context, model.Dataset) (model.Classifier, error) {
	return nil, errors.New("out of memory")
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func labeledRows(n int) []domain.LabeledRow {
	rng := rand.New(rand.NewPCG(9, 4))
	rows := make([]domain.LabeledRow, n)
	for i := range rows {
		precip := rng.Float64() * 50
		label := 0
		if precip > 25 {
			label = 1
		}
		rows[i] = domain.LabeledRow{
			StationID:     fmt.Sprintf("A%03d", i%4),
			Date:          "2019-01-01",
			Hour:          fmt.Sprintf("%04d", i),
			Municipality:  "RIO DE JANEIRO",
			Temperature:   20 + rng.Float64()*10,
			Humidity:      50 + rng.Float64()*50,
			WindSpeed:     rng.Float64() * 5,
			Precipitation: precip,
			FloodLabel:    label,
		}
	}
	return rows
}

func fastTrainers() []model.Trainer {
	return []model.Trainer{
		model.ForestTrainer{Params: model.ForestParams{NumTrees: 3, MinSamplesSplit: 2}},
		model.BoostTrainer{Params: model.BoostParams{Rounds: 3, LearningRate: 0.3, MaxDepth: 3, Lambda: 1, MinChildWeight: 1, BaseScore: 0.5}},
		model.SequenceTrainer{Params: model.LSTMParams{Hidden: 3, Epochs: 2, LearningRate: 0.01, ChunkSize: 64}},
	}
}

type fixture struct {
	reconciler   *mockReconciler
	observations *memObservations
	stations     *memStations
	publisher    *mockPublisher
	store        *artifact.FSStore
	registry     *model.Registry
	deps         pipeline.Deps
	metrics      *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	registry := model.NewRegistry(discardLogger(), metrics)

	f := &fixture{
		reconciler: &mockReconciler{result: &reconcile.Result{
			Rows:     labeledRows(60),
			Stations: []domain.Station{{ID: "A000", Name: "Rio de Janeiro"}},
			Report:   reconcile.Report{FilesProcessed: 1, FilesSkipped: 1},
		}},
		observations: &memObservations{},
		stations:     &memStations{},
		publisher:    &mockPublisher{},
		store:        store,
		registry:     registry,
		metrics:      metrics,
	}
	f.deps = pipeline.Deps{
		Reconciler:   f.reconciler,
		Sources:      func() (reconcile.Sources, error) { return reconcile.Sources{}, nil },
		Observations: f.observations,
		Stations:     f.stations,
		Trainers:     fastTrainers(),
		Registry:     registry,
		Artifacts:    store,
		Evaluator:    evaluate.New(registry, ensemble.FusionMean, store, discardLogger(), metrics),
		Publisher:    f.publisher,
		Fusion:       string(ensemble.FusionMean),
	}
	return f
}

func (f *fixture) pipeline() *pipeline.Pipeline {
	return pipeline.New(f.deps, discardLogger(), f.metrics)
}

func defaultOptions() pipeline.Options {
	return pipeline.Options{MinRows: 20, TestFraction: 0.2}
}

// --- tests ---

func TestRun_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	summary, err := f.pipeline().Run(ctx, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, f.reconciler.calls)
	assert.Len(t, f.observations.rows, 60)
	assert.Len(t, f.stations.stations, 1)
	require.NotNil(t, summary.Report)
	assert.Equal(t, 1, summary.Report.FilesSkipped)

	assert.Equal(t, 60, summary.Rows)
	assert.Equal(t, 12, summary.TestRows)
	assert.Equal(t, 48, summary.TrainRows)
	assert.True(t, summary.Stratified)
	assert.Equal(t, model.Kinds, summary.Trained)
	assert.Empty(t, summary.Failed)
	assert.Len(t, summary.Metrics, 4)
	assert.True(t, f.registry.AllTrained())

	saved, err := evaluate.Load(ctx, f.store)
	require.NoError(t, err)
	assert.Equal(t, summary.Metrics, saved)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, summary.RunID, event.RunID)
	assert.Equal(t, summary.Fingerprint, event.Fingerprint)
	assert.Equal(t, []string{"forest", "boost", "lstm"}, event.Trained)
	assert.Equal(t, "mean", event.Fusion)
}

func TestRun_ResumesFromMatchingArtifacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.pipeline()

	first, err := p.Run(ctx, defaultOptions())
	require.NoError(t, err)

	second, err := p.Run(ctx, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, f.reconciler.calls, "stored observations are reused")
	assert.Nil(t, second.Report)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Empty(t, second.Trained)
	assert.Equal(t, model.Kinds, second.Skipped)
	assert.Len(t, second.Metrics, 4, "skipped models are still evaluated")

	opts := defaultOptions()
	opts.Force = true
	third, err := p.Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, model.Kinds, third.Trained)
}

func TestRun_ReconcileFlagRereadsSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.pipeline()

	_, err := p.Run(ctx, defaultOptions())
	require.NoError(t, err)

	opts := defaultOptions()
	opts.Reconcile = true
	_, err = p.Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, f.reconciler.calls)
}

func TestRun_TrainerFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	trainers := fastTrainers()
	trainers[0] = failingTrainer{kind: model.KindForest}
	f.deps.Trainers = trainers

	summary, err := f.pipeline().Run(context.Background(), defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []model.Kind{model.KindForest}, summary.Failed)
	assert.Equal(t, []model.Kind{model.KindBoost, model.KindLSTM}, summary.Trained)
	assert.NotNil(t, summary.Metrics)
	assert.Empty(t, summary.Metrics, "evaluation is skipped while a slot is untrained")

	_, err = evaluate.Load(context.Background(), f.store)
	require.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestRun_FailedRetrainDoesNotEvaluateStaleArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.pipeline().Run(ctx, defaultOptions())
	require.NoError(t, err)
	require.Len(t, first.Metrics, 4)

	f.observations.rows = labeledRows(50)
	trainers := fastTrainers()
	trainers[0] = failingTrainer{kind: model.KindForest}
	f.deps.Trainers = trainers

	second, err := f.pipeline().Run(ctx, defaultOptions())
	require.NoError(t, err)
	require.NotEqual(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, []model.Kind{model.KindForest}, second.Failed)
	assert.Equal(t, []model.Kind{model.KindBoost, model.KindLSTM}, second.Trained)
	assert.NotNil(t, second.Metrics)
	assert.Empty(t, second.Metrics)

	info, ok := f.registry.Info(model.KindForest)
	require.True(t, ok, "the previous artifact stays loaded for serving")
	assert.Equal(t, first.Fingerprint, info.Fingerprint)

	saved, err := evaluate.Load(ctx, f.store)
	require.NoError(t, err)
	assert.Equal(t, first.Metrics, saved, "the earlier snapshot is left in place")

	require.Len(t, f.publisher.events, 2)
	assert.Empty(t, f.publisher.events[1].Metrics)
}

func TestRun_FailFast(t *testing.T) {
	f := newFixture(t)
	trainers := fastTrainers()
	trainers[1] = failingTrainer{kind: model.KindBoost}
	f.deps.Trainers = trainers

	opts := defaultOptions()
	opts.FailFast = true
	summary, err := f.pipeline().Run(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train boost")
	assert.Contains(t, summary.Failed, model.KindBoost)
	assert.Empty(t, f.publisher.events)
}

func TestRun_TooFewRows(t *testing.T) {
	f := newFixture(t)
	opts := defaultOptions()
	opts.SampleLimit = 10

	_, err := f.pipeline().Run(context.Background(), opts)
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestRun_SampleLimit(t *testing.T) {
	f := newFixture(t)
	opts := defaultOptions()
	opts.SampleLimit = 30

	a, err := f.pipeline().Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 30, a.Rows)

	b, err := f.pipeline().Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint, "sampling is deterministic")
}

func TestRun_ReconcileErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.reconciler.result = nil
	f.reconciler.err = fmt.Errorf("%w: 0 in common", domain.ErrReconciliationEmpty)

	_, err := f.pipeline().Run(context.Background(), defaultOptions())
	require.ErrorIs(t, err, domain.ErrReconciliationEmpty)
	assert.Empty(t, f.observations.rows)
}

func TestRun_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	_, err := f.pipeline().Run(context.Background(), defaultOptions())
	require.NoError(t, err)
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	f := newFixture(t)
	f.reconciler.started = make(chan struct{})
	f.reconciler.release = make(chan struct{})
	p := f.pipeline()

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), defaultOptions())
		done <- err
	}()

	<-f.reconciler.started
	assert.True(t, p.Running())
	_, err := p.Run(context.Background(), defaultOptions())
	require.ErrorIs(t, err, pipeline.ErrAlreadyRunning)

	close(f.reconciler.release)
	require.NoError(t, <-done)
	assert.False(t, p.Running())
}
