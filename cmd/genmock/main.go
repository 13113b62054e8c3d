// Command genmock writes a synthetic data directory in the layout the
// training pipeline reads: INMET hourly station files, the ANA municipal
// flood table, and the station catalog. It then reconciles the result with
// the real reconcile package and prints the report, so the fixture is known
// to produce labeled rows.
//
// Usage:
//
//	go run ./cmd/genmock -out dados -days 60
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
	"github.com/couchcryptid/flood-risk-ensemble/internal/reconcile"
)

var baseDate = time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)

type municipality struct {
	name      string // as written in the ANA table
	geocode   string
	flood     bool
	unlabeled bool // blank flood indicator, kept or dropped by LABEL_JOIN
	// wetness shifts the precipitation and humidity draws.
	wetness   float64
}

type station struct {
	code     string
	name     string // as written in the catalog
	uf       string
	lat, lon float64
	city     *municipality
}

var municipalities = []*municipality{
	{name: "RIO DE JANEIRO", geocode: "3304557", flood: true, wetness: 1.6},
	{name: "NITERÓI", geocode: "3303302", flood: true, wetness: 1.4},
	{name: "PETRÓPOLIS", geocode: "3303906", flood: true, wetness: 1.8},
	{name: "SÃO GONÇALO", geocode: "3304904", flood: false, wetness: 0.9},
	{name: "CAMPOS DOS GOYTACAZES", geocode: "3301009", flood: false, wetness: 0.6},
	{name: "RESENDE", geocode: "3304201", unlabeled: true, wetness: 0.7},
}

var stations = []station{
	{code: "A652", name: "Rio de Janeiro", uf: "RJ", lat: -22.98833333, lon: -43.19055555, city: municipalities[0]},
	{code: "A627", name: "Niterói", uf: "RJ", lat: -22.86722222, lon: -43.10194444, city: municipalities[1]},
	{code: "A610", name: "Petrópolis", uf: "RJ", lat: -22.46472222, lon: -43.29138888, city: municipalities[2]},
	{code: "A630", name: "São Gonçalo", uf: "RJ", lat: -22.82694444, lon: -43.05388888, city: municipalities[3]},
	{code: "A607", name: "Campos dos Goytacazes", uf: "RJ", lat: -21.71472222, lon: -41.34388888, city: municipalities[4]},
	{code: "A609", name: "Resende", uf: "RJ", lat: -22.45083333, lon: -44.44472222, city: municipalities[5]},
	// No municipality: exercises the unbridged path.
	{code: "A618", name: "Teresópolis - Parque Nacional", uf: "RJ", lat: -22.44861111, lon: -42.98694444},
}

const weatherHeader = "DATA (YYYY-MM-DD);HORA (UTC);PRECIPITAÇÃO TOTAL, HORÁRIO (mm);" +
	"PRESSAO ATMOSFERICA AO NIVEL DA ESTACAO, HORARIA (mB);RADIACAO GLOBAL (KJ/m²);" +
	"TEMPERATURA DO AR - BULBO SECO, HORARIA (°C);UMIDADE RELATIVA DO AR, HORARIA (%);" +
	"VENTO, VELOCIDADE HORARIA (m/s);"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output data directory")
	days := flag.Int("days", 30, "days of hourly readings per station")
	missing := flag.Float64("missing", 0.02, "fraction of readings with a missing field")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" || *days < 1 {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -days >= 1")
	}

	rng := rand.New(rand.NewPCG(*seed, 0x9e3779b97f4a7c15))

	for _, s := range stations {
		path := filepath.Join(*out, "inmet", fmt.Sprintf("INMET_SE_%s_%s_%s_01-01-2019_A_31-12-2019.CSV",
			s.uf, s.code, strings.ToUpper(strings.ReplaceAll(s.name, " ", "_"))))
		if err := writeLatin1(path, weatherFile(s, *days, *missing, rng)); err != nil {
			return fmt.Errorf("writing %s: %w", s.code, err)
		}
	}
	// A stray export with no recognizable header is skipped by reconcile.
	if err := writeLatin1(filepath.Join(*out, "inmet", "INMET_README.csv"), "arquivo sem cabeçalho\n"); err != nil {
		return err
	}
	log.Printf("wrote %d station files", len(stations))

	if err := writeLatin1(filepath.Join(*out, reconcile.EventsFileName), eventsFile()); err != nil {
		return fmt.Errorf("writing events: %w", err)
	}
	if err := writeLatin1(filepath.Join(*out, reconcile.CatalogFileName), catalogFile()); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}

	return printReport(*out)
}

func weatherFile(s station, days int, missing float64, rng *rand.Rand) string {
	wet := 1.0
	if s.city != nil {
		wet = s.city.wetness
	}

	var b strings.Builder
	fmt.Fprintf(&b, "REGIAO:;SE\nUF:;%s\nESTACAO:;%s\nCODIGO (WMO):;%s\n", s.uf, strings.ToUpper(s.name), s.code)
	fmt.Fprintf(&b, "LATITUDE:;%s\nLONGITUDE:;%s\nALTITUDE:;25\nDATA DE FUNDACAO:;2007-05-25\n",
		decimal(s.lat, 8), decimal(s.lon, 8))
	b.WriteString(weatherHeader + "\n")

	for h := range days * 24 {
		ts := baseDate.Add(time.Duration(h) * time.Hour)
		diurnal := math.Sin(2 * math.Pi * float64(ts.Hour()-9) / 24)

		precip := 0.0
		if rng.Float64() < 0.08*wet {
			precip = rng.ExpFloat64() * 4 * wet
		}
		temp := 24 + 5*diurnal + rng.NormFloat64()
		hum := math.Min(100, 70+10*wet-12*diurnal+3*precip+rng.NormFloat64()*4)
		wind := math.Abs(2 + 1.5*rng.NormFloat64())
		pressure := 1013 + rng.NormFloat64()*3

		fields := []string{
			ts.Format("2006/01/02"),
			ts.Format("1504") + " UTC",
			decimal(precip, 1),
			decimal(pressure, 1),
			"-9999",
			decimal(temp, 1),
			fmt.Sprintf("%.0f", hum),
			decimal(wind, 1),
		}
		if rng.Float64() < missing {
			// Drop one of temperature, humidity, wind, precipitation.
			fields[[]int{2, 5, 6, 7}[rng.IntN(4)]] = "-9999"
		}
		b.WriteString(strings.Join(fields, ";") + ";\n")
	}
	return b.String()
}

func eventsFile() string {
	var b strings.Builder
	b.WriteString("NM_MUNICIP,CD_GEOCMU,CHEIAS_201\n")
	for _, m := range municipalities {
		cheia := "0"
		switch {
		case m.unlabeled:
			cheia = ""
		case m.flood:
			cheia = "1"
		}
		fmt.Fprintf(&b, "%s,%s,%s\n", m.name, m.geocode, cheia)
	}
	return b.String()
}

func catalogFile() string {
	var b strings.Builder
	b.WriteString("CD_ESTACAO;DC_NOME;VL_LATITUDE;VL_LONGITUDE\n")
	for _, s := range stations {
		fmt.Fprintf(&b, "%s;%s;%s;%s\n", s.code, s.name, decimal(s.lat, 8), decimal(s.lon, 8))
	}
	return b.String()
}

// decimal formats f with a decimal comma, as the INMET exports do.
func decimal(f float64, places int) string {
	return strings.Replace(fmt.Sprintf("%.*f", places, f), ".", ",", 1)
}

func writeLatin1(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	encoded, err := charmap.ISO8859_1.NewEncoder().String(content)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(encoded), 0o600)
}

func printReport(dir string) error {
	src, err := reconcile.DefaultSources(dir)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res, err := reconcile.New(reconcile.JoinLeft, logger, observability.NewMetricsForTesting()).
		Reconcile(context.Background(), src)
	if err != nil {
		return fmt.Errorf("reconciling generated data: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Report)
}
