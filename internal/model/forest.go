package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestParams configures the random forest.
type ForestParams struct {
	NumTrees        int
	MaxFeatures     int // 0 means floor(sqrt(features))
	MaxDepth        int // 0 means unlimited
	MinSamplesSplit int
}

// DefaultForestParams mirrors the usual CART forest defaults.
func DefaultForestParams() ForestParams {
	return ForestParams{NumTrees: 100, MinSamplesSplit: 2}
}

// Forest is a bagged ensemble of Gini CART trees. Each leaf holds the
// positive fraction of its bootstrap rows.
type Forest struct {
	NumFeatures int    `msgpack:"num_features"`
	Trees       []Tree `msgpack:"trees"`
}

// PredictProba averages the leaf positive fractions across trees.
func (f *Forest) PredictProba(X [][]float64) ([]float64, error) {
	if err := checkWidth(X, f.NumFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, x := range X {
		var sum float64
		for t := range f.Trees {
			sum += f.Trees[t].Eval(x)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

// ForestTrainer fits a Forest. Trees are built in parallel, each from its
// own seeded stream, so the result does not depend on scheduling.
type ForestTrainer struct {
	Params ForestParams
	Logger *slog.Logger
}

// Kind implements Trainer.
func (ForestTrainer) Kind() Kind { return KindForest }

// Train implements Trainer.
func (t ForestTrainer) Train(ctx context.Context, ds Dataset) (Classifier, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("random forest: %w", ErrEmptyDataset)
	}
	p := t.Params
	if p.NumTrees <= 0 {
		p = DefaultForestParams()
	}
	nFeatures := len(ds.Columns)
	if p.MaxFeatures <= 0 || p.MaxFeatures > nFeatures {
		p.MaxFeatures = max(1, int(math.Sqrt(float64(nFeatures))))
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}

	trees := make([]Tree, p.NumTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b := cartBuilder{X: ds.X, y: ds.Y, params: p, nFeatures: nFeatures, rng: newRand(uint64(i) + 1)}
			trees[i] = b.fit()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("random forest: %w", err)
	}

	forest := &Forest{NumFeatures: nFeatures, Trees: trees}
	if t.Logger != nil {
		t.Logger.Info("random forest trained", "trees", len(trees), "rows", ds.Len(), "max_features", p.MaxFeatures)
	}
	return forest, nil
}

type cartBuilder struct {
	X         [][]float64
	y         []int
	params    ForestParams
	nFeatures int
	rng       *rand.Rand
}

func (b *cartBuilder) fit() Tree {
	n := len(b.y)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = b.rng.IntN(n)
	}
	var t Tree
	b.grow(&t, idx, 0)
	return t
}

func (b *cartBuilder) grow(t *Tree, idx []int, depth int) int {
	n := len(idx)
	pos := 0
	for _, i := range idx {
		pos += b.y[i]
	}
	value := float64(pos) / float64(n)
	if pos == 0 || pos == n || n < b.params.MinSamplesSplit ||
		(b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) {
		return t.addLeaf(value)
	}

	feature, threshold, ok := b.bestSplit(idx, pos)
	if !ok {
		return t.addLeaf(value)
	}
	node := t.addSplit(feature, threshold)
	k := partition(b.X, idx, feature, threshold)
	left := b.grow(t, idx[:k], depth+1)
	right := b.grow(t, idx[k:], depth+1)
	t.Nodes[node].Left = left
	t.Nodes[node].Right = right
	return node
}

// bestSplit scans a random subset of non-constant features for the
// threshold minimizing weighted Gini impurity.
func (b *cartBuilder) bestSplit(idx []int, pos int) (feature int, threshold float64, ok bool) {
	n := len(idx)
	bestScore := math.Inf(1)
	evaluated := 0
	for _, f := range b.rng.Perm(b.nFeatures) {
		if evaluated >= b.params.MaxFeatures {
			break
		}
		sortByFeature(b.X, idx, f)
		lo, hi := b.X[idx[0]][f], b.X[idx[n-1]][f]
		if lo == hi {
			continue
		}
		evaluated++

		leftN, leftPos := 0, 0
		for k := 0; k < n-1; k++ {
			leftN++
			leftPos += b.y[idx[k]]
			cur, next := b.X[idx[k]][f], b.X[idx[k+1]][f]
			if cur == next {
				continue
			}
			rightN, rightPos := n-leftN, pos-leftPos
			score := float64(leftN)*gini(leftPos, leftN) + float64(rightN)*gini(rightPos, rightN)
			if score < bestScore {
				bestScore, feature, threshold, ok = score, f, midpoint(cur, next), true
			}
		}
	}
	return feature, threshold, ok
}

func gini(pos, n int) float64 {
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

// midpoint returns a threshold strictly separating a < b.
func midpoint(a, b float64) float64 {
	m := a + (b-a)/2
	if m >= b {
		return a
	}
	return m
}
