// Package model holds the three flood classifiers (a random forest, a
// gradient-boosted tree ensemble, and an LSTM behind a min-max scaler),
// their artifact encoding, and the registry that serves them.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Kind names a model slot.
type Kind string

const (
	KindForest Kind = "forest"
	KindBoost  Kind = "boost"
	KindLSTM   Kind = "lstm"
)

// Kinds lists every slot in ensemble order.
var Kinds = []Kind{KindForest, KindBoost, KindLSTM}

// DisplayName is the key used for the model in metrics records.
func (k Kind) DisplayName() string {
	switch k {
	case KindForest:
		return "Random_Forest"
	case KindBoost:
		return "XGBoost"
	case KindLSTM:
		return "LSTM"
	default:
		return string(k)
	}
}

var (
	// ErrEmptyDataset means a trainer received no rows.
	ErrEmptyDataset = errors.New("empty training set")
	// ErrFeatureMismatch means input width differs from what the model was fitted on.
	ErrFeatureMismatch = errors.New("feature mismatch")
	// ErrCorruptArtifact means a stored artifact could not be decoded.
	ErrCorruptArtifact = errors.New("corrupt artifact")
)

// Classifier scores feature rows with the probability of a flood.
type Classifier interface {
	PredictProba(X [][]float64) ([]float64, error)
}

// Trainer fits one kind of Classifier.
type Trainer interface {
	Kind() Kind
	Train(ctx context.Context, ds Dataset) (Classifier, error)
}

// DefaultTrainers returns one trainer per slot, in Kinds order, with the
// production hyperparameters.
func DefaultTrainers(logger *slog.Logger) []Trainer {
	return []Trainer{
		ForestTrainer{Params: DefaultForestParams(), Logger: logger},
		BoostTrainer{Params: DefaultBoostParams(), Logger: logger},
		SequenceTrainer{Params: DefaultLSTMParams(), Logger: logger},
	}
}

func checkWidth(X [][]float64, width int) error {
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrFeatureMismatch, i, len(row), width)
		}
	}
	return nil
}
