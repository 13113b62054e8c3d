// Package openmeteo fetches current surface conditions from the Open-Meteo
// forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
)

const (
	// DefaultBaseURL is the public forecast endpoint.
	DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

	currentFields = "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation"
	maxAttempts   = 3
	timeLayout    = "2006-01-02T15:04"
)

// errTransient marks failures worth retrying.
var errTransient = errors.New("transient")

// Client implements domain.WeatherSource.
type Client struct {
	httpClient *http.Client
	baseURL    string
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an Open-Meteo client. timeout bounds each HTTP attempt.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:    baseURL,
		backoff:    200 * time.Millisecond,
		maxBackoff: 2 * time.Second,
		logger:     logger,
		metrics:    metrics,
	}
}

// Current returns the latest conditions at (lat, lon). Wind speed is in m/s.
// Every failure wraps domain.ErrExternalDataUnavailable.
func (c *Client) Current(ctx context.Context, lat, lon float64) (domain.LiveConditions, error) {
	start := time.Now()
	cond, err := c.fetchWithRetry(ctx, lat, lon)
	c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return domain.LiveConditions{}, fmt.Errorf("%w: %w", domain.ErrExternalDataUnavailable, err)
	}
	c.metrics.WeatherRequests.WithLabelValues("success").Inc()
	return cond, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, lat, lon float64) (domain.LiveConditions, error) {
	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cond, err := c.fetch(ctx, lat, lon)
		if err == nil {
			return cond, nil
		}
		lastErr = err
		if !errors.Is(err, errTransient) || attempt == maxAttempts {
			break
		}
		c.logger.Warn("weather request failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return domain.LiveConditions{}, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, c.maxBackoff)
	}
	return domain.LiveConditions{}, lastErr
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (domain.LiveConditions, error) {
	params := url.Values{
		"latitude":        {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude":       {strconv.FormatFloat(lon, 'f', 4, 64)},
		"current":         {currentFields},
		"wind_speed_unit": {"ms"},
		"timezone":        {"GMT"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.LiveConditions{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.LiveConditions{}, fmt.Errorf("weather request: %w", err)
		}
		return domain.LiveConditions{}, fmt.Errorf("weather request: %w: %w", errTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			err = fmt.Errorf("%w: %w", errTransient, err)
		}
		return domain.LiveConditions{}, err
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return domain.LiveConditions{}, fmt.Errorf("decode response: %w", err)
	}
	return r.conditions()
}

// Open-Meteo API response types.

type response struct {
	Current      current      `json:"current"`
	CurrentUnits currentUnits `json:"current_units"`
}

type current struct {
	Time          string   `json:"time"`
	Temperature   *float64 `json:"temperature_2m"`
	Humidity      *float64 `json:"relative_humidity_2m"`
	WindSpeed     *float64 `json:"wind_speed_10m"`
	Precipitation *float64 `json:"precipitation"`
}

type currentUnits struct {
	WindSpeed string `json:"wind_speed_10m"`
}

// conditions rejects a response with any missing reading.
func (r response) conditions() (domain.LiveConditions, error) {
	cur := r.Current
	if cur.Temperature == nil || cur.Humidity == nil || cur.WindSpeed == nil || cur.Precipitation == nil {
		return domain.LiveConditions{}, errors.New("open-meteo response is missing a current reading")
	}
	wind := *cur.WindSpeed
	if r.CurrentUnits.WindSpeed == "km/h" {
		wind /= 3.6
	}
	observed, err := time.ParseInLocation(timeLayout, cur.Time, time.UTC)
	if err != nil {
		observed = domain.Now()
	}
	return domain.LiveConditions{
		Temperature:   *cur.Temperature,
		Humidity:      *cur.Humidity,
		WindSpeed:     wind,
		Precipitation: *cur.Precipitation,
		ObservedAt:    observed,
	}, nil
}
