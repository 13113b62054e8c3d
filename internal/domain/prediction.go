package domain

import (
	"context"
	"time"
)

// Prediction is one History Store entry.
type Prediction struct {
	LocationKey string    `json:"location_key"`
	Timestamp   time.Time `json:"timestamp"`
	Probability float64   `json:"probability"`
}

// Location identifies what to predict for: a station code, or a
// coordinate pair resolved to the nearest station.
type Location struct {
	StationID string
	Lat       float64
	Lon       float64
	HasCoords bool
}

// ModelMetrics holds the six evaluation scores for one model.
type ModelMetrics struct {
	Accuracy  float64 `json:"accuracy" msgpack:"accuracy"`
	Precision float64 `json:"precision" msgpack:"precision"`
	Recall    float64 `json:"recall" msgpack:"recall"`
	F1        float64 `json:"f1_score" msgpack:"f1_score"`
	MCC       float64 `json:"matthews_corrcoef" msgpack:"matthews_corrcoef"`
	AUCROC    float64 `json:"auc_roc" msgpack:"auc_roc"`
}

// MetricsRecord maps a model name (Random_Forest, XGBoost, LSTM, Ensemble)
// to its scores. An empty record means evaluation was skipped.
type MetricsRecord map[string]ModelMetrics

// WeatherSource supplies current conditions for a point.
type WeatherSource interface {
	// Current returns live conditions, or an error wrapping
	// ErrExternalDataUnavailable.
	Current(ctx context.Context, lat, lon float64) (LiveConditions, error)
}
