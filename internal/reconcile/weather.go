package reconcile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

var (
	errNoStationCode = errors.New("no CODIGO (WMO) line in preamble")
	errNoHeader      = errors.New("no data header row found")
)

// weatherColumns holds the positions of the recognized INMET columns in one
// file. A negative index means the column is absent.
type weatherColumns struct {
	date          int
	hour          int
	precipitation int
	temperature   int
	humidity      int
	windSpeed     int
	pressure      int
	radiation     int
}

// matchWeatherHeader recognizes an INMET data header by normalized column
// prefixes, which tolerates accent and unit differences between yearly exports.
func matchWeatherHeader(fields []string) (weatherColumns, bool) {
	cols := weatherColumns{-1, -1, -1, -1, -1, -1, -1, -1}
	for i, f := range fields {
		n := domain.NormalizeName(f)
		switch {
		case strings.HasPrefix(n, "DATA"):
			cols.date = i
		case strings.HasPrefix(n, "HORA"):
			cols.hour = i
		case strings.HasPrefix(n, "PRECIPITACAO TOTAL"):
			cols.precipitation = i
		case strings.HasPrefix(n, "TEMPERATURA DO AR - BULBO SECO"):
			cols.temperature = i
		case strings.HasPrefix(n, "UMIDADE RELATIVA DO AR, HORARIA"):
			cols.humidity = i
		case strings.HasPrefix(n, "VENTO, VELOCIDADE HORARIA"):
			cols.windSpeed = i
		case strings.HasPrefix(n, "PRESSAO ATMOSFERICA AO NIVEL DA ESTACAO"):
			cols.pressure = i
		case strings.HasPrefix(n, "RADIACAO GLOBAL"):
			cols.radiation = i
		}
	}
	ok := cols.date >= 0 && cols.hour >= 0 && cols.precipitation >= 0 &&
		cols.temperature >= 0 && cols.humidity >= 0 && cols.windSpeed >= 0
	return cols, ok
}

// FindWeatherFiles lists INMET_*.csv files (any extension case) under dir,
// sorted by name.
func FindWeatherFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list weather files: %w: %w", domain.ErrDataUnavailable, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		upper := strings.ToUpper(e.Name())
		if strings.HasPrefix(upper, "INMET_") && strings.HasSuffix(upper, ".CSV") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ParseWeatherFile reads one INMET station-year file: a key/value preamble
// carrying the station code, then a header row, then hourly readings.
func ParseWeatherFile(path string) ([]domain.WeatherObservation, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	return parseWeather(text)
}

func parseWeather(text string) ([]domain.WeatherObservation, error) {
	lines := strings.Split(text, "\n")

	var (
		stationID string
		cols      weatherColumns
		delim     rune
		headerAt  = -1
	)
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		d := detectDelimiter(line)
		fields := strings.Split(line, string(d))

		if stationID == "" {
			if code, ok := stationCode(fields); ok {
				stationID = code
				continue
			}
		}
		if c, ok := matchWeatherHeader(fields); ok {
			cols, delim, headerAt = c, d, i
			break
		}
	}
	if stationID == "" {
		return nil, errNoStationCode
	}
	if headerAt < 0 {
		return nil, errNoHeader
	}

	cr := newCSVReader(strings.NewReader(strings.Join(lines[headerAt+1:], "\n")), delim)
	var obs []domain.WeatherObservation
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read observations: %w", err)
		}
		date := normalizeDate(field(rec, cols.date))
		if date == "" {
			continue
		}
		obs = append(obs, domain.WeatherObservation{
			StationID:     stationID,
			Date:          date,
			Hour:          normalizeHour(field(rec, cols.hour)),
			Precipitation: parseMeasurement(field(rec, cols.precipitation)),
			Temperature:   parseMeasurement(field(rec, cols.temperature)),
			Humidity:      parseMeasurement(field(rec, cols.humidity)),
			WindSpeed:     parseMeasurement(field(rec, cols.windSpeed)),
			Pressure:      parseMeasurement(field(rec, cols.pressure)),
			Radiation:     parseMeasurement(field(rec, cols.radiation)),
		})
	}
	return obs, nil
}

// stationCode extracts the value of a "CODIGO (WMO):" preamble line. The
// value sits either in the next field or after the colon.
func stationCode(fields []string) (string, bool) {
	if len(fields) == 0 {
		return "", false
	}
	key := domain.NormalizeName(fields[0])
	if !strings.HasPrefix(key, "CODIGO (WMO)") {
		return "", false
	}
	if len(fields) > 1 {
		if v := strings.TrimSpace(fields[1]); v != "" {
			return strings.ToUpper(v), true
		}
	}
	if _, after, ok := strings.Cut(fields[0], ":"); ok {
		if v := strings.TrimSpace(after); v != "" {
			return strings.ToUpper(v), true
		}
	}
	return "", false
}

// dateLayouts are the date formats seen across INMET export years.
var dateLayouts = []string{"2006-01-02", "2006/01/02", "02/01/2006", "02-01-2006"}

// normalizeDate turns any of dateLayouts into ISO "2006-01-02". It returns
// "" for anything else.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return ""
}

// normalizeHour turns "0100 UTC" or "01:00" into "0100".
func normalizeHour(s string) string {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "UTC"))
	return strings.ReplaceAll(s, ":", "")
}
