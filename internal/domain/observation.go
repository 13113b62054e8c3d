package domain

import "time"

// Core feature columns, in the order every model is trained and served with.
const (
	ColTemperature   = "temperature"
	ColHumidity      = "humidity"
	ColWindSpeed     = "wind_speed"
	ColPrecipitation = "precipitation"
)

// FeatureColumns is the canonical feature order shared by trainers, the
// scaler, and the predictor.
var FeatureColumns = []string{ColTemperature, ColHumidity, ColWindSpeed, ColPrecipitation}

// MissingSentinel is the INMET value for a faulty sensor reading.
const MissingSentinel = -9999

// WeatherObservation is one hourly reading from a station. Nil pointers are
// missing values.
type WeatherObservation struct {
	StationID     string
	Date          string // YYYY-MM-DD
	Hour          string // HHMM UTC
	Precipitation *float64
	Temperature   *float64
	Humidity      *float64
	WindSpeed     *float64
	Pressure      *float64
	Radiation     *float64
}

// HasCoreFeatures reports whether all four model features are present.
func (o WeatherObservation) HasCoreFeatures() bool {
	return o.Temperature != nil && o.Humidity != nil && o.WindSpeed != nil && o.Precipitation != nil
}

// FloodEvent is one municipality row from the flood dataset. Labeled is
// false when the row carried no usable flood indicator.
type FloodEvent struct {
	MunicipalityName string
	NormalizedName   string
	Geocode          string
	Flooded          bool
	Labeled          bool
}

// Station is a catalog entry. Geocode is set only when the station bridged
// to a flood record.
type Station struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	NormalizedName string  `json:"-"`
	Latitude       float64 `json:"lat"`
	Longitude      float64 `json:"lon"`
	Geocode        string  `json:"geocode,omitempty"`
}

// BridgeEntry links a weather station to the municipality whose flood
// record labels it.
type BridgeEntry struct {
	StationID        string
	Geocode          string
	MunicipalityName string
	NormalizedName   string
	Latitude         float64
	Longitude        float64
}

// LabeledRow is one training example. All feature fields are present by
// construction.
type LabeledRow struct {
	StationID     string
	Date          string
	Hour          string
	Municipality  string
	Temperature   float64
	Humidity      float64
	WindSpeed     float64
	Precipitation float64
	Pressure      *float64
	Radiation     *float64
	FloodLabel    int
}

// Features returns the row's feature vector in FeatureColumns order.
func (r LabeledRow) Features() []float64 {
	return []float64{r.Temperature, r.Humidity, r.WindSpeed, r.Precipitation}
}

// LiveConditions are the current readings used for a point prediction.
type LiveConditions struct {
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"wind_speed"`
	Precipitation float64   `json:"precipitation"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Features returns the conditions in FeatureColumns order.
func (c LiveConditions) Features() []float64 {
	return []float64{c.Temperature, c.Humidity, c.WindSpeed, c.Precipitation}
}
