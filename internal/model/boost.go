package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// BoostParams configures gradient boosting with logistic loss.
type BoostParams struct {
	Rounds         int
	LearningRate   float64
	MaxDepth       int
	Lambda         float64 // L2 penalty on leaf weights
	MinChildWeight float64 // minimum hessian sum per child
	BaseScore      float64
}

// DefaultBoostParams mirrors the common logistic booster defaults.
func DefaultBoostParams() BoostParams {
	return BoostParams{Rounds: 100, LearningRate: 0.3, MaxDepth: 6, Lambda: 1, MinChildWeight: 1, BaseScore: 0.5}
}

// Booster is an additive ensemble of regression trees on the log-odds scale.
// Leaf values already include the learning rate.
type Booster struct {
	NumFeatures    int     `msgpack:"num_features"`
	BaseMargin     float64 `msgpack:"base_margin"`
	ScalePosWeight float64 `msgpack:"scale_pos_weight"`
	Trees          []Tree  `msgpack:"trees"`
}

// PredictProba returns sigmoid(base + sum of tree outputs).
func (b *Booster) PredictProba(X [][]float64) ([]float64, error) {
	if err := checkWidth(X, b.NumFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = sigmoid(b.margin(x))
	}
	return out, nil
}

func (b *Booster) margin(x []float64) float64 {
	m := b.BaseMargin
	for t := range b.Trees {
		m += b.Trees[t].Eval(x)
	}
	return m
}

// ScalePosWeight returns negatives/positives, or 1 when either class is
// absent.
func ScalePosWeight(y []int) float64 {
	pos := 0
	for _, v := range y {
		pos += v
	}
	neg := len(y) - pos
	if pos == 0 || neg == 0 {
		return 1
	}
	return float64(neg) / float64(pos)
}

// BoostTrainer fits a Booster with exact greedy splits, weighting positive
// rows by ScalePosWeight to correct class imbalance.
type BoostTrainer struct {
	Params BoostParams
	Logger *slog.Logger
}

// Kind implements Trainer.
func (BoostTrainer) Kind() Kind { return KindBoost }

// Train implements Trainer.
func (t BoostTrainer) Train(ctx context.Context, ds Dataset) (Classifier, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("gradient boosting: %w", ErrEmptyDataset)
	}
	p := t.Params
	if p.Rounds <= 0 {
		p = DefaultBoostParams()
	}

	spw := ScalePosWeight(ds.Y)
	model := &Booster{
		NumFeatures:    len(ds.Columns),
		BaseMargin:     logit(p.BaseScore),
		ScalePosWeight: spw,
	}

	n := ds.Len()
	margins := make([]float64, n)
	for i := range margins {
		margins[i] = model.BaseMargin
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	idx := make([]int, n)

	for round := 0; round < p.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("gradient boosting: %w", err)
		}
		for i := range margins {
			prob := sigmoid(margins[i])
			w := 1.0
			if ds.Y[i] == 1 {
				w = spw
			}
			grad[i] = w * (prob - float64(ds.Y[i]))
			hess[i] = w * math.Max(prob*(1-prob), 1e-16)
			idx[i] = i
		}

		b := boostBuilder{X: ds.X, grad: grad, hess: hess, params: p, nFeatures: model.NumFeatures}
		var tree Tree
		b.grow(&tree, idx, 0)
		for i, x := range ds.X {
			margins[i] += tree.Eval(x)
		}
		model.Trees = append(model.Trees, tree)
	}

	if t.Logger != nil {
		t.Logger.Info("gradient boosting trained",
			"rounds", len(model.Trees), "rows", n, "scale_pos_weight", spw)
	}
	return model, nil
}

type boostBuilder struct {
	X         [][]float64
	grad      []float64
	hess      []float64
	params    BoostParams
	nFeatures int
}

func (b *boostBuilder) grow(t *Tree, idx []int, depth int) int {
	var G, H float64
	for _, i := range idx {
		G += b.grad[i]
		H += b.hess[i]
	}
	weight := -G / (H + b.params.Lambda) * b.params.LearningRate
	if depth >= b.params.MaxDepth || len(idx) < 2 {
		return t.addLeaf(weight)
	}

	feature, threshold, ok := b.bestSplit(idx, G, H)
	if !ok {
		return t.addLeaf(weight)
	}
	node := t.addSplit(feature, threshold)
	k := partition(b.X, idx, feature, threshold)
	left := b.grow(t, idx[:k], depth+1)
	right := b.grow(t, idx[k:], depth+1)
	t.Nodes[node].Left = left
	t.Nodes[node].Right = right
	return node
}

// bestSplit maximizes the structure-score gain
// GL^2/(HL+l) + GR^2/(HR+l) - G^2/(H+l) over all features and thresholds.
func (b *boostBuilder) bestSplit(idx []int, G, H float64) (feature int, threshold float64, ok bool) {
	lambda := b.params.Lambda
	parent := G * G / (H + lambda)
	bestGain := 1e-6
	n := len(idx)
	for f := 0; f < b.nFeatures; f++ {
		sortByFeature(b.X, idx, f)
		var GL, HL float64
		for k := 0; k < n-1; k++ {
			GL += b.grad[idx[k]]
			HL += b.hess[idx[k]]
			cur, next := b.X[idx[k]][f], b.X[idx[k+1]][f]
			if cur == next {
				continue
			}
			GR, HR := G-GL, H-HL
			if HL < b.params.MinChildWeight || HR < b.params.MinChildWeight {
				continue
			}
			gain := GL*GL/(HL+lambda) + GR*GR/(HR+lambda) - parent
			if gain > bestGain {
				bestGain, feature, threshold, ok = gain, f, midpoint(cur, next), true
			}
		}
	}
	return feature, threshold, ok
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
