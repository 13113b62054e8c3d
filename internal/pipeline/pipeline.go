// Package pipeline runs one training cycle: reconcile the raw files, split,
// train the three models concurrently, evaluate, and announce the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flood-risk-ensemble/internal/artifact"
	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/evaluate"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
	"github.com/couchcryptid/flood-risk-ensemble/internal/reconcile"
)

// ErrAlreadyRunning means another Run is in progress on this Pipeline.
var ErrAlreadyRunning = errors.New("training pipeline already running")

// Reconciler turns the raw sources into a labeled table.
type Reconciler interface {
	Reconcile(ctx context.Context, src reconcile.Sources) (*reconcile.Result, error)
}

// ObservationStore persists the labeled table between runs.
type ObservationStore interface {
	Replace(ctx context.Context, rows []domain.LabeledRow) error
	Count(ctx context.Context) (int, error)
	All(ctx context.Context) ([]domain.LabeledRow, error)
}

// StationStore persists the station catalog.
type StationStore interface {
	Replace(ctx context.Context, stations []domain.Station) error
}

// Publisher announces a finished run. It is optional.
type Publisher interface {
	PublishEvaluation(ctx context.Context, event domain.EvaluationEvent) error
}

// Options tune one Run.
type Options struct {
	// Reconcile forces re-reading the raw files even when the
	// observations table is populated.
	Reconcile bool
	// SampleLimit caps the rows used for training and evaluation. Zero
	// uses every row.
	SampleLimit  int
	MinRows      int
	TestFraction float64
	// Force retrains models whose artifact already matches the
	// training split.
	Force bool
	// FailFast aborts the run on the first trainer failure.
	FailFast bool
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Reconciler   Reconciler
	Sources      func() (reconcile.Sources, error)
	Observations ObservationStore
	Stations     StationStore
	Trainers     []model.Trainer
	Registry     *model.Registry
	Artifacts    artifact.Store
	Evaluator    *evaluate.Evaluator
	Publisher    Publisher
	Fusion       string
}

// Summary describes a finished run.
type Summary struct {
	RunID       string               `json:"run_id"`
	Fingerprint string               `json:"dataset_fingerprint"`
	Rows        int                  `json:"rows"`
	TrainRows   int                  `json:"train_rows"`
	TestRows    int                  `json:"test_rows"`
	Stratified  bool                 `json:"stratified"`
	Trained     []model.Kind         `json:"trained"`
	Skipped     []model.Kind         `json:"skipped,omitempty"`
	Failed      []model.Kind         `json:"failed,omitempty"`
	Metrics     domain.MetricsRecord `json:"metrics"`
	Report      *reconcile.Report    `json:"reconcile,omitempty"`
}

// Pipeline orchestrates a training cycle.
type Pipeline struct {
	deps    Deps
	logger  *slog.Logger
	metrics *observability.Metrics
	running atomic.Bool
}

// New creates a Pipeline.
func New(deps Deps, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{deps: deps, logger: logger, metrics: metrics}
}

// Running reports whether a Run is in progress.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Run executes one cycle. Reconciliation and data errors abort it; trainer
// failures are isolated unless opts.FailFast is set. A run whose training
// split matches the stored artifacts retrains nothing unless opts.Force.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer p.running.Store(false)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	summary := &Summary{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", summary.RunID)
	logger.Info("training run started",
		"reconcile", opts.Reconcile,
		"sample_limit", opts.SampleLimit,
		"force", opts.Force,
		"fail_fast", opts.FailFast,
	)

	report, err := p.ensureObservations(ctx, opts.Reconcile, logger)
	if err != nil {
		return nil, err
	}
	summary.Report = report

	train, test, err := p.prepare(ctx, opts, summary, logger)
	if err != nil {
		return nil, err
	}

	if err := p.deps.Registry.Load(ctx, p.deps.Artifacts); err != nil {
		logger.Warn("some stored artifacts could not be read, retraining them", "error", err)
	}
	if err := p.trainAll(ctx, train, opts, summary, logger); err != nil {
		return summary, err
	}

	record := domain.MetricsRecord{}
	if stale := p.staleKinds(summary.Fingerprint); len(stale) > 0 {
		logger.Warn("evaluation skipped, models were trained on a different split",
			"models", stale, "fingerprint", summary.Fingerprint)
	} else {
		record, err = p.deps.Evaluator.Evaluate(ctx, test)
		if err != nil {
			return summary, fmt.Errorf("evaluate: %w", err)
		}
	}
	summary.Metrics = record

	p.publish(ctx, summary, logger)
	logger.Info("training run complete",
		"trained", summary.Trained,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"evaluated", len(record) > 0,
	)
	return summary, nil
}

// ensureObservations reconciles the raw files when asked to or when the
// table is empty.
func (p *Pipeline) ensureObservations(ctx context.Context, force bool, logger *slog.Logger) (*reconcile.Report, error) {
	n, err := p.deps.Observations.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 && !force {
		logger.Info("using stored observations", "rows", n)
		return nil, nil
	}

	src, err := p.deps.Sources()
	if err != nil {
		return nil, err
	}
	res, err := p.deps.Reconciler.Reconcile(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := p.deps.Stations.Replace(ctx, res.Stations); err != nil {
		return nil, err
	}
	if err := p.deps.Observations.Replace(ctx, res.Rows); err != nil {
		return nil, err
	}
	p.metrics.ReconcileFilesSkipped.Add(float64(res.Report.FilesSkipped))
	return &res.Report, nil
}

// prepare samples the stored rows and splits them.
func (p *Pipeline) prepare(ctx context.Context, opts Options, summary *Summary, logger *slog.Logger) (model.Dataset, model.Dataset, error) {
	rows, err := p.deps.Observations.All(ctx)
	if err != nil {
		return model.Dataset{}, model.Dataset{}, err
	}
	rows = model.Sample(rows, opts.SampleLimit)
	if len(rows) < opts.MinRows || len(rows) == 0 {
		return model.Dataset{}, model.Dataset{}, fmt.Errorf("%w: %d labeled rows, need at least %d",
			domain.ErrDataUnavailable, len(rows), max(opts.MinRows, 1))
	}

	ds := model.FromRows(rows)
	split, err := model.StratifiedSplit(ds.Y, opts.TestFraction)
	if err != nil {
		return model.Dataset{}, model.Dataset{}, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
	}
	if !split.Stratified {
		logger.Warn("split is not stratified, a class is missing or too small",
			"rows", ds.Len(), "positives", ds.Positives())
	}

	train, test := ds.Subset(split.Train), ds.Subset(split.Test)
	summary.Rows = ds.Len()
	summary.TrainRows = train.Len()
	summary.TestRows = test.Len()
	summary.Stratified = split.Stratified
	summary.Fingerprint = train.Fingerprint()
	return train, test, nil
}

type trainOutcome int

const (
	outcomeTrained trainOutcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o trainOutcome) String() string {
	switch o {
	case outcomeTrained:
		return "success"
	case outcomeSkipped:
		return "skipped"
	default:
		return "error"
	}
}

// trainAll runs every trainer concurrently on the shared, read-only split.
func (p *Pipeline) trainAll(ctx context.Context, train model.Dataset, opts Options, summary *Summary, logger *slog.Logger) error {
	outcomes := make([]trainOutcome, len(p.deps.Trainers))
	g, gctx := errgroup.WithContext(ctx)
	for i, tr := range p.deps.Trainers {
		g.Go(func() error {
			outcome, err := p.trainOne(gctx, tr, train, summary.Fingerprint, opts.Force, logger)
			outcomes[i] = outcome
			if err != nil && opts.FailFast {
				return fmt.Errorf("train %s: %w", tr.Kind(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	for i, tr := range p.deps.Trainers {
		switch outcomes[i] {
		case outcomeTrained:
			summary.Trained = append(summary.Trained, tr.Kind())
		case outcomeSkipped:
			summary.Skipped = append(summary.Skipped, tr.Kind())
		default:
			summary.Failed = append(summary.Failed, tr.Kind())
		}
	}
	return err
}

func (p *Pipeline) trainOne(ctx context.Context, tr model.Trainer, train model.Dataset, fingerprint string, force bool, logger *slog.Logger) (trainOutcome, error) {
	kind := tr.Kind()
	logger = logger.With("model", kind)
	if info, ok := p.deps.Registry.Info(kind); ok && !force && info.Fingerprint == fingerprint {
		logger.Info("artifact matches training split, skipping")
		p.metrics.TrainingRuns.WithLabelValues(string(kind), outcomeSkipped.String()).Inc()
		return outcomeSkipped, nil
	}

	start := time.Now()
	c, err := tr.Train(ctx, train)
	if err == nil {
		info := model.Info{Fingerprint: fingerprint, TrainedAt: domain.Now(), Columns: train.Columns}
		err = p.deps.Registry.Save(ctx, p.deps.Artifacts, c, info)
	}
	p.metrics.TrainingDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Warn("trainer failed", "error", err)
		p.metrics.TrainingRuns.WithLabelValues(string(kind), outcomeFailed.String()).Inc()
		return outcomeFailed, err
	}
	logger.Info("model trained", "duration", time.Since(start))
	p.metrics.TrainingRuns.WithLabelValues(string(kind), outcomeTrained.String()).Inc()
	return outcomeTrained, nil
}

// staleKinds lists loaded models whose artifact was trained on a split
// other than fingerprint. A failed retrain leaves the previous artifact in
// its slot, and scoring it against this run's test split would leak rows it
// may have trained on.
func (p *Pipeline) staleKinds(fingerprint string) []model.Kind {
	var stale []model.Kind
	for _, kind := range model.Kinds {
		if info, ok := p.deps.Registry.Info(kind); ok && info.Fingerprint != fingerprint {
			stale = append(stale, kind)
		}
	}
	return stale
}

func (p *Pipeline) publish(ctx context.Context, summary *Summary, logger *slog.Logger) {
	if p.deps.Publisher == nil {
		return
	}
	event := domain.EvaluationEvent{
		RunID:       summary.RunID,
		Fingerprint: summary.Fingerprint,
		Fusion:      p.deps.Fusion,
		TrainRows:   summary.TrainRows,
		TestRows:    summary.TestRows,
		Trained:     kindNames(summary.Trained),
		Skipped:     kindNames(summary.Skipped),
		Failed:      kindNames(summary.Failed),
		Metrics:     summary.Metrics,
		CompletedAt: domain.Now(),
	}
	if err := p.deps.Publisher.PublishEvaluation(ctx, event); err != nil {
		logger.Warn("publish evaluation event failed", "error", err)
	}
}

func kindNames(kinds []model.Kind) []string {
	if len(kinds) == 0 {
		return nil
	}
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
