package reconcile

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

// Flood dataset columns.
const (
	colMunicipality = "NM_MUNICIP"
	colGeocode      = "CD_GEOCMU"
	colFloodCount   = "CHEIAS_201"
)

// ParseEvents reads the municipality flood file. Rows sharing a normalized
// name collapse into one event that is flooded if any row was, and labeled
// if any row had an indicator.
func ParseEvents(path string) ([]domain.FloodEvent, error) {
	header, rows, err := readTable(path)
	if err != nil {
		return nil, fmt.Errorf("flood events: %w: %w", domain.ErrDataUnavailable, err)
	}
	idx := headerIndex(header)
	nameAt, ok := idx[colMunicipality]
	if !ok {
		return nil, fmt.Errorf("flood events: %w: missing column %s", domain.ErrDataUnavailable, colMunicipality)
	}
	floodAt, ok := idx[colFloodCount]
	if !ok {
		return nil, fmt.Errorf("flood events: %w: missing column %s", domain.ErrDataUnavailable, colFloodCount)
	}
	geoAt, hasGeo := idx[colGeocode]
	if !hasGeo {
		geoAt = -1
	}

	byName := make(map[string]int)
	var events []domain.FloodEvent
	for _, rec := range rows {
		name := field(rec, nameAt)
		norm := domain.NormalizeName(name)
		if norm == "" {
			continue
		}
		flooded, labeled := floodFlag(field(rec, floodAt))
		if i, seen := byName[norm]; seen {
			events[i].Flooded = events[i].Flooded || flooded
			events[i].Labeled = events[i].Labeled || labeled
			if events[i].Geocode == "" {
				events[i].Geocode = field(rec, geoAt)
			}
			continue
		}
		byName[norm] = len(events)
		events = append(events, domain.FloodEvent{
			MunicipalityName: name,
			NormalizedName:   norm,
			Geocode:          field(rec, geoAt),
			Flooded:          flooded,
			Labeled:          labeled,
		})
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("flood events: %w: no usable rows in %s", domain.ErrDataUnavailable, path)
	}
	return events, nil
}

// floodFlag reads the flood indicator, which is a count in most exports and
// a yes/no flag in some. labeled is false for a blank or unreadable value.
func floodFlag(s string) (flooded, labeled bool) {
	if v, ok := parseDecimal(s); ok {
		return v > 0, true
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SIM", "S", "TRUE", "YES", "Y":
		return true, true
	case "NAO", "NÃO", "N", "FALSE", "NO":
		return false, true
	default:
		return false, false
	}
}
