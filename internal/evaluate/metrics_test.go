package evaluate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

func TestScore_AllNegativePredictions(t *testing.T) {
	m := Score([]int{1, 0, 1, 0}, []float64{0.1, 0.2, 0.3, 0.4})

	assert.InDelta(t, 0.5, m.Accuracy, 1e-12)
	assert.Zero(t, m.Precision)
	assert.Zero(t, m.Recall)
	assert.Zero(t, m.F1)
	assert.Zero(t, m.MCC)
}

func TestScore_Perfect(t *testing.T) {
	m := Score([]int{1, 0, 1, 0}, []float64{0.9, 0.2, 0.7, 0.1})

	want := domain.ModelMetrics{Accuracy: 1, Precision: 1, Recall: 1, F1: 1, MCC: 1, AUCROC: 1}
	assert.InDelta(t, want.Accuracy, m.Accuracy, 1e-12)
	assert.InDelta(t, want.Precision, m.Precision, 1e-12)
	assert.InDelta(t, want.Recall, m.Recall, 1e-12)
	assert.InDelta(t, want.F1, m.F1, 1e-12)
	assert.InDelta(t, want.MCC, m.MCC, 1e-12)
	assert.InDelta(t, want.AUCROC, m.AUCROC, 1e-12)
}

func TestScore_MixedConfusion(t *testing.T) {
	m := Score([]int{1, 1, 0, 0}, []float64{0.9, 0.4, 0.6, 0.1})

	assert.InDelta(t, 0.5, m.Accuracy, 1e-12)
	assert.InDelta(t, 0.5, m.Precision, 1e-12)
	assert.InDelta(t, 0.5, m.Recall, 1e-12)
	assert.InDelta(t, 0.5, m.F1, 1e-12)
	assert.InDelta(t, 0.0, m.MCC, 1e-12)
	assert.InDelta(t, 0.75, m.AUCROC, 1e-12)
}

func TestScore_Inverted(t *testing.T) {
	m := Score([]int{1, 0}, []float64{0.1, 0.9})
	assert.InDelta(t, -1.0, m.MCC, 1e-12)
	assert.InDelta(t, 0.0, m.AUCROC, 1e-12)
}

func TestAUCROC(t *testing.T) {
	tests := []struct {
		name  string
		y     []int
		probs []float64
		want  float64
	}{
		{"single class positive", []int{1, 1, 1}, []float64{0.2, 0.5, 0.9}, 0.5},
		{"single class negative", []int{0, 0}, []float64{0.2, 0.9}, 0.5},
		{"all tied", []int{1, 0, 1, 0}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"unsorted input", []int{0, 1, 0, 1}, []float64{0.3, 0.8, 0.1, 0.6}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, aucROC(tt.y, tt.probs), 1e-12)
		})
	}
}

func TestAUCROC_DoesNotReorderInput(t *testing.T) {
	probs := []float64{0.3, 0.8, 0.1}
	aucROC([]int{0, 1, 0}, probs)
	assert.Equal(t, []float64{0.3, 0.8, 0.1}, probs)
}

func TestScore_Empty(t *testing.T) {
	assert.Equal(t, domain.ModelMetrics{}, Score(nil, nil))
}
