// Package ensemble fuses the three model outputs into one flood probability
// and serves point predictions.
package ensemble

import "fmt"

// Threshold turns a probability into a flood label.
const Threshold = 0.5

// Fusion combines per-model probabilities. Evaluation and serving use the
// same rule, so reported ensemble metrics describe what the API returns.
type Fusion string

const (
	// FusionMean averages the probabilities.
	FusionMean Fusion = "mean"
	// FusionVote returns the fraction of models voting flood. With three
	// models, a fused value at or above Threshold means at least two agree.
	FusionVote Fusion = "vote"
)

// ParseFusion validates a configured fusion mode.
func ParseFusion(s string) (Fusion, error) {
	switch Fusion(s) {
	case FusionMean, FusionVote:
		return Fusion(s), nil
	default:
		return "", fmt.Errorf("unknown fusion mode %q", s)
	}
}

// Fuse combines one probability per model. trained marks which entries
// come from a trained model; nil means all of them do. Untrained entries
// count at face value under mean and abstain under vote. It returns 0.5
// when no trained model contributes a vote, or when probs is empty.
func (f Fusion) Fuse(probs []float64, trained []bool) float64 {
	if len(probs) == 0 {
		return 0.5
	}
	if f != FusionVote {
		var sum float64
		for _, p := range probs {
			sum += p
		}
		return sum / float64(len(probs))
	}
	var votes, voters float64
	for i, p := range probs {
		if trained != nil && !trained[i] {
			continue
		}
		voters++
		if p >= Threshold {
			votes++
		}
	}
	if voters == 0 {
		return 0.5
	}
	return votes / voters
}

// FuseColumns fuses row-aligned probability columns, one per model.
func (f Fusion) FuseColumns(columns [][]float64) []float64 {
	if len(columns) == 0 {
		return nil
	}
	out := make([]float64, len(columns[0]))
	row := make([]float64, len(columns))
	for i := range out {
		for m := range columns {
			row[m] = columns[m][i]
		}
		out[i] = f.Fuse(row, nil)
	}
	return out
}

// Percent scales a fused probability to [0, 100].
func Percent(p float64) float64 {
	return min(max(p*100, 0), 100)
}
