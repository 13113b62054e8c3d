package model

import (
	"fmt"
	"slices"
)

// Scaler is min-max normalization state fitted on a training split. Columns
// records the feature order it was fitted on.
type Scaler struct {
	Columns []string  `msgpack:"columns"`
	Min     []float64 `msgpack:"min"`
	Range   []float64 `msgpack:"range"`
}

// FitScaler computes per-column minimum and range. A constant column gets a
// range of 1 so it maps to 0 instead of dividing by zero.
func FitScaler(columns []string, X [][]float64) (*Scaler, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("fit scaler: %w", ErrEmptyDataset)
	}
	if err := checkWidth(X, len(columns)); err != nil {
		return nil, err
	}
	s := &Scaler{
		Columns: append([]string(nil), columns...),
		Min:     append([]float64(nil), X[0]...),
		Range:   make([]float64, len(columns)),
	}
	maxs := append([]float64(nil), X[0]...)
	for _, row := range X[1:] {
		for j, v := range row {
			s.Min[j] = min(s.Min[j], v)
			maxs[j] = max(maxs[j], v)
		}
	}
	for j := range s.Range {
		r := maxs[j] - s.Min[j]
		if r == 0 {
			r = 1
		}
		s.Range[j] = r
	}
	return s, nil
}

// Transform scales X into a new matrix. Values outside the fitted range are
// not clipped.
func (s *Scaler) Transform(X [][]float64) ([][]float64, error) {
	if err := checkWidth(X, len(s.Columns)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Min[j]) / s.Range[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// Compatible reports whether the scaler was fitted on exactly these columns
// in this order.
func (s *Scaler) Compatible(columns []string) bool {
	return slices.Equal(s.Columns, columns)
}
