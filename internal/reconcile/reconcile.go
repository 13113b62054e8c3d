// Package reconcile turns the three raw sources (INMET hourly weather files,
// the ANA municipality flood file, and the INMET station catalog) into one
// labeled training set keyed by station.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
)

// JoinPolicy decides what happens to a bridged weather row whose
// municipality has no usable flood indicator.
type JoinPolicy string

const (
	// JoinLeft keeps the row with label 0.
	JoinLeft JoinPolicy = "left"
	// JoinInner drops the row.
	JoinInner JoinPolicy = "inner"
)

// Sources locates the raw inputs.
type Sources struct {
	WeatherFiles []string
	EventsFile   string
	CatalogFile  string
}

// File names inside a data directory.
const (
	EventsFileName  = "ana_inundacao.csv"
	CatalogFileName = "catalogoestacoesautomaticas.csv"
)

// DefaultSources lays out the inputs under a data directory the way the
// public downloads unpack: inmet/INMET_*.csv next to ana_inundacao.csv and
// catalogoestacoesautomaticas.csv.
func DefaultSources(dataDir string) (Sources, error) {
	files, err := FindWeatherFiles(filepath.Join(dataDir, "inmet"))
	if err != nil {
		return Sources{}, err
	}
	return Sources{
		WeatherFiles: files,
		EventsFile:   filepath.Join(dataDir, EventsFileName),
		CatalogFile:  filepath.Join(dataDir, CatalogFileName),
	}, nil
}

// Report summarizes one reconciliation run.
type Report struct {
	FilesProcessed    int `json:"files_processed"`
	FilesSkipped      int `json:"files_skipped"`
	RawRows           int `json:"raw_rows"`
	DroppedIncomplete int `json:"dropped_incomplete"`
	Unbridged         int `json:"unbridged"`
	Unlabeled         int `json:"unlabeled"`
	Duplicates        int `json:"duplicates"`
	LabeledRows       int `json:"labeled_rows"`
	PositiveRows      int `json:"positive_rows"`
	BridgedStations   int `json:"bridged_stations"`
}

// Result is the reconciled training set plus the catalog and bridge it was
// built from.
type Result struct {
	Rows     []domain.LabeledRow
	Stations []domain.Station
	Bridge   []domain.BridgeEntry
	Report   Report
}

// Reconciler merges the raw sources. It is stateless between runs.
type Reconciler struct {
	policy  JoinPolicy
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Reconciler. An unknown policy falls back to JoinLeft.
func New(policy JoinPolicy, logger *slog.Logger, metrics *observability.Metrics) *Reconciler {
	if policy != JoinInner {
		policy = JoinLeft
	}
	return &Reconciler{policy: policy, logger: logger, metrics: metrics}
}

// Reconcile parses the sources, bridges stations to municipalities by
// normalized name, attaches labels, and deduplicates on
// (station, date, hour) keeping the first occurrence.
func (r *Reconciler) Reconcile(ctx context.Context, src Sources) (*Result, error) {
	events, err := ParseEvents(src.EventsFile)
	if err != nil {
		return nil, err
	}
	stations, err := ParseCatalog(src.CatalogFile)
	if err != nil {
		return nil, err
	}

	bridge := BuildBridge(stations, events)
	if len(bridge) == 0 {
		diag := Diagnose(stations, events)
		r.logger.Warn("no catalog station matched a flood municipality",
			"catalog_samples", diag.CatalogSamples,
			"event_samples", diag.EventSamples,
		)
		return nil, fmt.Errorf("%w: %d catalog names, %d municipality names, 0 in common",
			domain.ErrReconciliationEmpty, diag.CatalogNames, diag.EventNames)
	}
	applyGeocodes(stations, bridge)

	var report Report
	report.BridgedStations = len(bridge)

	obs, err := r.readWeather(ctx, src.WeatherFiles, &report)
	if err != nil {
		return nil, err
	}

	rows := r.join(obs, bridge, events, &report)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no weather rows matched a bridged station", domain.ErrDataUnavailable)
	}
	report.LabeledRows = len(rows)
	for _, row := range rows {
		report.PositiveRows += row.FloodLabel
	}

	r.metrics.ReconcileRows.Set(float64(len(rows)))
	r.logger.Info("reconciliation complete",
		"files", report.FilesProcessed,
		"skipped_files", report.FilesSkipped,
		"rows", report.LabeledRows,
		"positive", report.PositiveRows,
		"bridged_stations", report.BridgedStations,
		"duplicates", report.Duplicates,
	)

	return &Result{Rows: rows, Stations: stations, Bridge: bridge, Report: report}, nil
}

// readWeather parses every weather file, skipping malformed ones with a
// warning, and keeps only observations with all core features.
func (r *Reconciler) readWeather(ctx context.Context, files []string, report *Report) ([]domain.WeatherObservation, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no weather files", domain.ErrDataUnavailable)
	}
	var usable []domain.WeatherObservation
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obs, err := ParseWeatherFile(path)
		if err != nil {
			report.FilesSkipped++
			r.metrics.ReconcileFilesSkipped.Inc()
			r.logger.Warn("skipping weather file", "file", filepath.Base(path), "error", err)
			continue
		}
		report.FilesProcessed++
		report.RawRows += len(obs)
		for _, o := range obs {
			if !o.HasCoreFeatures() {
				report.DroppedIncomplete++
				continue
			}
			usable = append(usable, o)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: no complete weather rows in %d files", domain.ErrDataUnavailable, len(files))
	}
	return usable, nil
}

type rowKey struct {
	station, date, hour string
}

func (r *Reconciler) join(obs []domain.WeatherObservation, bridge []domain.BridgeEntry, events []domain.FloodEvent, report *Report) []domain.LabeledRow {
	byStation := make(map[string]domain.BridgeEntry, len(bridge))
	for _, b := range bridge {
		byStation[b.StationID] = b
	}
	labels := make(map[string]domain.FloodEvent, len(events))
	for _, e := range events {
		labels[e.NormalizedName] = e
	}

	seen := make(map[rowKey]struct{}, len(obs))
	rows := make([]domain.LabeledRow, 0, len(obs))
	for _, o := range obs {
		entry, ok := byStation[o.StationID]
		if !ok {
			report.Unbridged++
			continue
		}
		event, found := labels[entry.NormalizedName]
		if !found || !event.Labeled {
			report.Unlabeled++
			if r.policy == JoinInner {
				continue
			}
		}
		key := rowKey{o.StationID, o.Date, o.Hour}
		if _, dup := seen[key]; dup {
			report.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		label := 0
		if event.Flooded {
			label = 1
		}
		rows = append(rows, domain.LabeledRow{
			StationID:     o.StationID,
			Date:          o.Date,
			Hour:          o.Hour,
			Municipality:  entry.MunicipalityName,
			Temperature:   *o.Temperature,
			Humidity:      *o.Humidity,
			WindSpeed:     *o.WindSpeed,
			Precipitation: *o.Precipitation,
			Pressure:      o.Pressure,
			Radiation:     o.Radiation,
			FloodLabel:    label,
		})
	}
	return rows
}

// BuildBridge inner-joins catalog stations to flood municipalities on the
// normalized name. The result is ordered by station ID.
func BuildBridge(stations []domain.Station, events []domain.FloodEvent) []domain.BridgeEntry {
	byName := make(map[string]domain.FloodEvent, len(events))
	for _, e := range events {
		byName[e.NormalizedName] = e
	}
	var bridge []domain.BridgeEntry
	for _, s := range stations {
		e, ok := byName[s.NormalizedName]
		if !ok || s.NormalizedName == "" {
			continue
		}
		bridge = append(bridge, domain.BridgeEntry{
			StationID:        s.ID,
			Geocode:          e.Geocode,
			MunicipalityName: e.MunicipalityName,
			NormalizedName:   e.NormalizedName,
			Latitude:         s.Latitude,
			Longitude:        s.Longitude,
		})
	}
	sort.Slice(bridge, func(i, j int) bool { return bridge[i].StationID < bridge[j].StationID })
	return bridge
}

func applyGeocodes(stations []domain.Station, bridge []domain.BridgeEntry) {
	geo := make(map[string]string, len(bridge))
	for _, b := range bridge {
		geo[b.StationID] = b.Geocode
	}
	for i := range stations {
		stations[i].Geocode = geo[stations[i].ID]
	}
}
