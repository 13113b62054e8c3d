// Package evaluate scores the trained models on the held-out split and
// persists the result as a single snapshot.
package evaluate

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/ensemble"
)

// confusion counts outcomes at the ensemble threshold.
type confusion struct {
	tp, fp, tn, fn float64
}

func newConfusion(y []int, probs []float64) confusion {
	var c confusion
	for i, p := range probs {
		predicted := p >= ensemble.Threshold
		switch {
		case predicted && y[i] == 1:
			c.tp++
		case predicted:
			c.fp++
		case y[i] == 1:
			c.fn++
		default:
			c.tn++
		}
	}
	return c
}

// Score computes the six metrics. Any ratio with a zero denominator is 0,
// and AUC-ROC is 0.5 when only one class is present.
func Score(y []int, probs []float64) domain.ModelMetrics {
	if len(y) == 0 {
		return domain.ModelMetrics{}
	}
	c := newConfusion(y, probs)
	precision := ratio(c.tp, c.tp+c.fp)
	recall := ratio(c.tp, c.tp+c.fn)
	return domain.ModelMetrics{
		Accuracy:  ratio(c.tp+c.tn, float64(len(y))),
		Precision: precision,
		Recall:    recall,
		F1:        ratio(2*precision*recall, precision+recall),
		MCC:       ratio(c.tp*c.tn-c.fp*c.fn, math.Sqrt((c.tp+c.fp)*(c.tp+c.fn)*(c.tn+c.fp)*(c.tn+c.fn))),
		AUCROC:    aucROC(y, probs),
	}
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// aucROC integrates the ROC curve over every distinct score. Tied scores
// share one cutoff, which credits ties as half-correct.
func aucROC(y []int, probs []float64) float64 {
	scores := append([]float64(nil), probs...)
	classes := make([]bool, len(y))
	pos := 0
	for i, v := range y {
		classes[i] = v == 1
		pos += v
	}
	if pos == 0 || pos == len(y) {
		return 0.5
	}
	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
