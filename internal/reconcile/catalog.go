package reconcile

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

// Station catalog columns.
const (
	colStationID = "CD_ESTACAO"
	colName      = "DC_NOME"
	colLatitude  = "VL_LATITUDE"
	colLongitude = "VL_LONGITUDE"
)

// ParseCatalog reads the station catalog. Rows without an ID, a name, or
// parseable coordinates are dropped. The first row wins on duplicate IDs.
func ParseCatalog(path string) ([]domain.Station, error) {
	header, rows, err := readTable(path)
	if err != nil {
		return nil, fmt.Errorf("station catalog: %w: %w", domain.ErrDataUnavailable, err)
	}
	idx := headerIndex(header)
	var at [4]int
	for i, col := range []string{colStationID, colName, colLatitude, colLongitude} {
		pos, ok := idx[col]
		if !ok {
			return nil, fmt.Errorf("station catalog: %w: missing column %s", domain.ErrDataUnavailable, col)
		}
		at[i] = pos
	}

	seen := make(map[string]struct{})
	var stations []domain.Station
	for _, rec := range rows {
		id := strings.ToUpper(field(rec, at[0]))
		name := field(rec, at[1])
		lat, latOK := parseDecimal(field(rec, at[2]))
		lon, lonOK := parseDecimal(field(rec, at[3]))
		if id == "" || name == "" || !latOK || !lonOK {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		stations = append(stations, domain.Station{
			ID:             id,
			Name:           name,
			NormalizedName: domain.NormalizeName(name),
			Latitude:       lat,
			Longitude:      lon,
		})
	}
	if len(stations) == 0 {
		return nil, fmt.Errorf("station catalog: %w: no usable rows in %s", domain.ErrDataUnavailable, path)
	}
	return stations, nil
}
