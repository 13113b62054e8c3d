package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForest_LearnsSeparableData(t *testing.T) {
	train := separable(400)
	test := separable(600)
	test.X, test.Y = test.X[400:], test.Y[400:]

	c, err := ForestTrainer{Params: ForestParams{NumTrees: 25, MinSamplesSplit: 2}, Logger: discardLogger()}.
		Train(context.Background(), train)
	require.NoError(t, err)

	probs, err := c.PredictProba(test.X)
	require.NoError(t, err)
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	assert.Greater(t, accuracy(probs, test.Y), 0.85)
}

func TestForest_Deterministic(t *testing.T) {
	ds := separable(150)
	trainer := ForestTrainer{Params: ForestParams{NumTrees: 10, MinSamplesSplit: 2}}

	a, err := trainer.Train(context.Background(), ds)
	require.NoError(t, err)
	b, err := trainer.Train(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestForest_SingleClass(t *testing.T) {
	ds := Dataset{Columns: []string{"a"}, X: [][]float64{{1}, {2}, {3}}, Y: []int{1, 1, 1}}
	c, err := ForestTrainer{Params: ForestParams{NumTrees: 5}}.Train(context.Background(), ds)
	require.NoError(t, err)

	probs, err := c.PredictProba([][]float64{{10}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, probs[0], 1e-12)
}

func TestForest_FeatureMismatch(t *testing.T) {
	c, err := ForestTrainer{Params: ForestParams{NumTrees: 3}}.Train(context.Background(), separable(30))
	require.NoError(t, err)
	_, err = c.PredictProba([][]float64{{1, 2}})
	require.ErrorIs(t, err, ErrFeatureMismatch)
}

func TestForest_EmptyDataset(t *testing.T) {
	_, err := ForestTrainer{}.Train(context.Background(), Dataset{Columns: []string{"a"}})
	require.ErrorIs(t, err, ErrEmptyDataset)
}

func TestScalePosWeight(t *testing.T) {
	tests := []struct {
		name string
		y    []int
		want float64
	}{
		{"seven to three", []int{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}, 7.0 / 3.0},
		{"balanced", []int{0, 1, 0, 1}, 1},
		{"no positives", []int{0, 0, 0}, 1},
		{"no negatives", []int{1, 1}, 1},
		{"empty", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ScalePosWeight(tt.y), 1e-12)
		})
	}
}

func TestBooster_LearnsSeparableData(t *testing.T) {
	train := separable(400)
	test := separable(600)
	test.X, test.Y = test.X[400:], test.Y[400:]

	c, err := BoostTrainer{Params: BoostParams{
		Rounds: 30, LearningRate: 0.3, MaxDepth: 4, Lambda: 1, MinChildWeight: 1, BaseScore: 0.5,
	}}.Train(context.Background(), train)
	require.NoError(t, err)

	b := c.(*Booster)
	assert.Len(t, b.Trees, 30)
	assert.InDelta(t, 0.0, b.BaseMargin, 1e-12)
	for _, tree := range b.Trees {
		assert.LessOrEqual(t, tree.Depth(), 4)
	}

	probs, err := c.PredictProba(test.X)
	require.NoError(t, err)
	assert.Greater(t, accuracy(probs, test.Y), 0.85)
}

func TestBooster_AllPositiveStaysInsideUnitInterval(t *testing.T) {
	ds := Dataset{Columns: []string{"a"}, X: [][]float64{{1}, {2}, {3}}, Y: []int{1, 1, 1}}
	c, err := BoostTrainer{}.Train(context.Background(), ds)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c.(*Booster).ScalePosWeight, 1e-12)

	probs, err := c.PredictProba([][]float64{{2}})
	require.NoError(t, err)
	assert.Greater(t, probs[0], 0.5)
	assert.Less(t, probs[0], 1.0)
}

func TestBooster_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BoostTrainer{}.Train(ctx, separable(20))
	require.ErrorIs(t, err, context.Canceled)
}

func TestPartition(t *testing.T) {
	X := [][]float64{{5}, {1}, {4}, {2}, {3}}
	idx := []int{0, 1, 2, 3, 4}
	k := partition(X, idx, 0, 2.5)
	assert.Equal(t, 2, k)
	for _, i := range idx[:k] {
		assert.LessOrEqual(t, X[i][0], 2.5)
	}
	for _, i := range idx[k:] {
		assert.Greater(t, X[i][0], 2.5)
	}
}

func TestMidpoint(t *testing.T) {
	assert.InDelta(t, 1.5, midpoint(1, 2), 1e-12)
	a := 1.0
	b := a + 2.220446049250313e-16
	assert.Less(t, midpoint(a, b), b)
}
