package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
)

// NeutralProbability stands in for a model that has no trained artifact.
const NeutralProbability = 0.5

// ErrInvalidLocation means the request named neither a station nor
// coordinates.
var ErrInvalidLocation = errors.New("location needs a station id or lat/lon")

// Stations resolves catalog stations.
type Stations interface {
	// Get returns domain.ErrStationNotFound for an unknown id.
	Get(ctx context.Context, id string) (domain.Station, error)
	List(ctx context.Context) ([]domain.Station, error)
}

// History is the append-only prediction log.
type History interface {
	Append(ctx context.Context, p domain.Prediction) error
	// Query returns domain.ErrNoHistory when key was never predicted.
	Query(ctx context.Context, key string, limit int, newestFirst bool) ([]domain.Prediction, error)
}

// Result is one served prediction.
type Result struct {
	Station     domain.Station        `json:"station"`
	Probability float64               `json:"probability"`
	Percent     float64               `json:"percent"`
	Models      map[string]float64    `json:"models"`
	Fallbacks   []string              `json:"fallbacks,omitempty"`
	Conditions  domain.LiveConditions `json:"conditions"`
	Fusion      Fusion                `json:"fusion"`
	PredictedAt time.Time             `json:"predicted_at"`
}

// Predictor serves fused flood probabilities for a location.
type Predictor struct {
	registry *model.Registry
	stations Stations
	weather  domain.WeatherSource
	history  History
	fusion   Fusion
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewPredictor wires a Predictor. The registry may be reloaded while the
// predictor is serving.
func NewPredictor(registry *model.Registry, stations Stations, weather domain.WeatherSource, history History, fusion Fusion, logger *slog.Logger, metrics *observability.Metrics) *Predictor {
	return &Predictor{
		registry: registry,
		stations: stations,
		weather:  weather,
		history:  history,
		fusion:   fusion,
		logger:   logger,
		metrics:  metrics,
	}
}

// Predict resolves loc, fetches live conditions, runs every model and
// records the fused probability in history. A weather failure refuses
// the prediction with domain.ErrExternalDataUnavailable.
func (p *Predictor) Predict(ctx context.Context, loc domain.Location) (Result, error) {
	start := time.Now()
	defer func() { p.metrics.PredictionDuration.Observe(time.Since(start).Seconds()) }()

	res, err := p.predict(ctx, loc)
	p.metrics.PredictionsTotal.WithLabelValues(outcome(err)).Inc()
	return res, err
}

func (p *Predictor) predict(ctx context.Context, loc domain.Location) (Result, error) {
	station, err := p.Resolve(ctx, loc)
	if err != nil {
		return Result{}, err
	}

	lat, lon := station.Latitude, station.Longitude
	if loc.HasCoords {
		lat, lon = loc.Lat, loc.Lon
	}
	cond, err := p.weather.Current(ctx, lat, lon)
	if err != nil {
		if !errors.Is(err, domain.ErrExternalDataUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrExternalDataUnavailable, err)
		}
		return Result{}, fmt.Errorf("predict %s: %w", station.ID, err)
	}

	x := [][]float64{cond.Features()}
	probs := make([]float64, 0, len(model.Kinds))
	trained := make([]bool, 0, len(model.Kinds))
	res := Result{
		Station:    station,
		Models:     make(map[string]float64, len(model.Kinds)),
		Conditions: cond,
		Fusion:     p.fusion,
	}
	for _, kind := range model.Kinds {
		prob := NeutralProbability
		c, ok := p.registry.Get(kind)
		if ok {
			out, err := c.PredictProba(x)
			if err != nil {
				return Result{}, fmt.Errorf("predict %s with %s: %w", station.ID, kind, err)
			}
			prob = out[0]
		} else {
			p.logger.Warn("model untrained, using neutral probability", "model", kind, "station", station.ID)
			p.metrics.ModelFallbacks.WithLabelValues(string(kind)).Inc()
			res.Fallbacks = append(res.Fallbacks, kind.DisplayName())
		}
		res.Models[kind.DisplayName()] = prob
		probs = append(probs, prob)
		trained = append(trained, ok)
	}

	res.Probability = min(max(p.fusion.Fuse(probs, trained), 0), 1)
	res.Percent = Percent(res.Probability)
	res.PredictedAt = domain.Now()

	entry := domain.Prediction{LocationKey: station.ID, Timestamp: res.PredictedAt, Probability: res.Probability}
	if err := p.history.Append(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("record prediction for %s: %w", station.ID, err)
	}

	p.logger.Debug("prediction served",
		"station", station.ID,
		"probability", res.Probability,
		"fallbacks", len(res.Fallbacks),
	)
	return res, nil
}

// Resolve maps a location to its catalog station. Coordinates resolve to
// the nearest station.
func (p *Predictor) Resolve(ctx context.Context, loc domain.Location) (domain.Station, error) {
	switch {
	case loc.StationID != "":
		return p.stations.Get(ctx, loc.StationID)
	case loc.HasCoords:
		all, err := p.stations.List(ctx)
		if err != nil {
			return domain.Station{}, fmt.Errorf("list stations: %w", err)
		}
		s, _, ok := Nearest(all, loc.Lat, loc.Lon)
		if !ok {
			return domain.Station{}, fmt.Errorf("nearest to %.4f,%.4f: %w", loc.Lat, loc.Lon, domain.ErrStationNotFound)
		}
		return s, nil
	default:
		return domain.Station{}, ErrInvalidLocation
	}
}

// History returns the prediction log for loc's station.
func (p *Predictor) History(ctx context.Context, loc domain.Location, limit int, newestFirst bool) ([]domain.Prediction, error) {
	station, err := p.Resolve(ctx, loc)
	if err != nil {
		return nil, err
	}
	return p.history.Query(ctx, station.ID, limit, newestFirst)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrExternalDataUnavailable):
		return "weather_unavailable"
	case errors.Is(err, domain.ErrStationNotFound), errors.Is(err, ErrInvalidLocation):
		return "not_found"
	default:
		return "error"
	}
}
