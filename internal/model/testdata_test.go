package model

import (
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// separable returns n rows where heavy rain and high humidity mean flood.
func separable(n int) Dataset {
	rng := rand.New(rand.NewPCG(7, 11))
	ds := Dataset{Columns: append([]string(nil), domain.FeatureColumns...)}
	for i := 0; i < n; i++ {
		temp := 15 + 20*rng.Float64()
		hum := 40 + 60*rng.Float64()
		wind := 10 * rng.Float64()
		precip := 50 * rng.Float64()
		label := 0
		if precip > 25 && hum > 60 {
			label = 1
		}
		ds.X = append(ds.X, []float64{temp, hum, wind, precip})
		ds.Y = append(ds.Y, label)
	}
	return ds
}

func accuracy(probs []float64, y []int) float64 {
	correct := 0
	for i, p := range probs {
		pred := 0
		if p >= 0.5 {
			pred = 1
		}
		if pred == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}
