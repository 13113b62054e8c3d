package reconcile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readText loads a source file as UTF-8. INMET and ANA exports are usually
// Latin-1; anything that is not valid UTF-8 is decoded as ISO-8859-1.
func readText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return decodeText(raw)
}

func decodeText(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode latin-1: %w", err)
	}
	return string(decoded), nil
}

// detectDelimiter picks the field separator from a header line. Semicolon
// wins when present because decimal commas make comma counts unreliable.
func detectDelimiter(line string) rune {
	switch {
	case strings.Contains(line, ";"):
		return ';'
	case strings.Contains(line, "\t"):
		return '\t'
	default:
		return ','
	}
}

func newCSVReader(r io.Reader, delim rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

// parseMeasurement converts a raw cell to a reading. Empty cells,
// unparseable text and the -9999 sentinel are all missing.
func parseMeasurement(s string) *float64 {
	v, ok := parseDecimal(s)
	if !ok || v == domain.MissingSentinel {
		return nil
	}
	return &v
}

// parseDecimal accepts both "12.5" and "12,5".
func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(s, ",") {
		s = "0" + s
	} else if strings.HasPrefix(s, "-,") {
		s = "-0" + s[1:]
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// headerIndex maps upper-cased, trimmed column names to their positions.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToUpper(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// readTable decodes a delimited file with a header on its first line.
func readTable(path string) (header []string, rows [][]string, err error) {
	text, err := readText(path)
	if err != nil {
		return nil, nil, err
	}
	firstLine, _, _ := strings.Cut(text, "\n")
	cr := newCSVReader(strings.NewReader(text), detectDelimiter(firstLine))

	header, err = cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}
