package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/evaluate"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
)

// TestRioDeJaneiroEndToEnd reconciles the raw files, trains and evaluates
// the ensemble, then serves one prediction for the station.
func TestRioDeJaneiroEndToEnd(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 2, 10, 15, 5, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	dataDir := t.TempDir()
	writeRioDataset(t, dataDir)
	s := newStack(t, dataDir, nil)

	summary, err := s.pipeline.Run(ctx, rioOptions())
	require.NoError(t, err)
	require.NotNil(t, summary.Report)
	assert.Equal(t, 3, summary.Report.LabeledRows)
	assert.Equal(t, 3, summary.Report.PositiveRows)
	assert.Equal(t, 3, summary.Rows)
	assert.Equal(t, 1, summary.TestRows)
	assert.False(t, summary.Stratified, "a single class cannot be stratified")
	assert.Equal(t, model.Kinds, summary.Trained)
	assert.Len(t, summary.Metrics, 4)

	saved, err := evaluate.Load(ctx, s.artifacts)
	require.NoError(t, err)
	assert.Contains(t, saved, evaluate.EnsembleName)

	res, err := s.predictor.Predict(ctx, domain.Location{StationID: "001"})
	require.NoError(t, err)
	assert.Greater(t, res.Probability, 0.0)
	assert.Less(t, res.Probability, 1.0)
	assert.InDelta(t, res.Probability*100, res.Percent, 1e-9)
	assert.Empty(t, res.Fallbacks)
	assert.Equal(t, "3304557", res.Station.Geocode)

	history, err := s.history.Query(ctx, "001", 0, false)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.InDelta(t, res.Probability, history[0].Probability, 1e-12)
	assert.True(t, history[0].Timestamp.Equal(now))
}

// TestRestartServesStoredArtifacts checks that a fresh registry loads what
// the pipeline persisted, and that a second run retrains nothing.
func TestRestartServesStoredArtifacts(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	writeRioDataset(t, dataDir)
	s := newStack(t, dataDir, nil)

	_, err := s.pipeline.Run(ctx, rioOptions())
	require.NoError(t, err)

	fresh := model.NewRegistry(discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, fresh.Load(ctx, s.artifacts))
	assert.True(t, fresh.AllTrained())

	again, err := s.pipeline.Run(ctx, rioOptions())
	require.NoError(t, err)
	assert.Nil(t, again.Report, "stored observations are reused")
	assert.Equal(t, model.Kinds, again.Skipped)
}

func TestCatalogIsLoadedByFirstRun(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	writeRioDataset(t, dataDir)
	s := newStack(t, dataDir, nil)

	_, err := s.predictor.Predict(ctx, domain.Location{StationID: "001"})
	require.ErrorIs(t, err, domain.ErrStationNotFound, "the catalog is loaded by the first run")

	summary, err := s.pipeline.Run(ctx, rioOptions())
	require.NoError(t, err)
	require.NotEmpty(t, summary.Trained)

	require.NoError(t, s.registry.Load(ctx, s.artifacts))
	res, err := s.predictor.Predict(ctx, domain.Location{Lat: -22.47, Lon: -43.29, HasCoords: true})
	require.NoError(t, err)
	assert.Equal(t, "A610", res.Station.ID)
}
