package integration_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/flood-risk-ensemble/internal/artifact"
	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/ensemble"
	"github.com/couchcryptid/flood-risk-ensemble/internal/evaluate"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
	"github.com/couchcryptid/flood-risk-ensemble/internal/pipeline"
	"github.com/couchcryptid/flood-risk-ensemble/internal/reconcile"
	"github.com/couchcryptid/flood-risk-ensemble/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const inmetHeader = "DATA (YYYY-MM-DD);HORA (UTC);PRECIPITAÇÃO TOTAL, HORÁRIO (mm);" +
	"PRESSAO ATMOSFERICA AO NIVEL DA ESTACAO, HORARIA (mB);RADIACAO GLOBAL (KJ/m²);" +
	"TEMPERATURA DO AR - BULBO SECO, HORARIA (°C);UMIDADE RELATIVA DO AR, HORARIA (%);" +
	"VENTO, VELOCIDADE HORARIA (m/s);"

// writeRioDataset lays out a DATA_DIR holding three hourly readings from one
// Rio de Janeiro station, a flood event for the city, and the catalog.
func writeRioDataset(t *testing.T, dir string) {
	t.Helper()
	weather := strings.Join([]string{
		"REGIAO:;SE",
		"UF:;RJ",
		"ESTACAO:;RIO DE JANEIRO - FORTE DE COPACABANA",
		"CODIGO (WMO):;001",
		"LATITUDE:;-22,98833333",
		"LONGITUDE:;-43,19055555",
		"DATA DE FUNDACAO:;2007-05-25",
		inmetHeader,
		"2019/01/01;0000 UTC;0;1013,2;-9999;25,1;80;2,5;",
		"2019/01/01;0100 UTC;1,2;1012,8;-9999;24,8;85;3,0;",
		"2019/01/01;0200 UTC;12,4;1011,9;-9999;23,9;92;4,1;",
	}, "\n") + "\n"
	writeLatin1(t, filepath.Join(dir, "inmet", "INMET_SE_RJ_001_RIO_DE_JANEIRO_01-01-2019_A_31-12-2019.CSV"), weather)
	writeLatin1(t, filepath.Join(dir, "ana_inundacao.csv"),
		"NM_MUNICIP,CD_GEOCMU,CHEIAS_201\nRIO DE JANEIRO,3304557,1\nNITERÓI,3303302,0\n")
	writeLatin1(t, filepath.Join(dir, "catalogoestacoesautomaticas.csv"),
		"CD_ESTACAO;DC_NOME;VL_LATITUDE;VL_LONGITUDE\n"+
			"001;Rio de Janeiro;-22,98833333;-43,19055555\n"+
			"A610;Pico do Couto;-22,46472222;-43,29138888\n")
}

func writeLatin1(t *testing.T, path, content string) {
	t.Helper()
	encoded, err := charmap.ISO8859_1.NewEncoder().String(content)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(encoded), 0o644))
}

// fixedWeather reports the same conditions for every point.
type fixedWeather struct {
	cond domain.LiveConditions
}

func (f fixedWeather) Current(context.Context, float64, float64) (domain.LiveConditions, error) {
	return f.cond, nil
}

// stack is the training and serving side wired over one SQLite file and
// one artifact directory.
type stack struct {
	pipeline  *pipeline.Pipeline
	predictor *ensemble.Predictor
	registry  *model.Registry
	artifacts *artifact.FSStore
	history   *store.HistoryRepo
}

func newStack(t *testing.T, dataDir string, publisher pipeline.Publisher) *stack {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	db, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "flood.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	artifacts, err := artifact.NewFSStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	registry := model.NewRegistry(logger, metrics)
	stations := store.NewStationRepo(db)
	history := store.NewHistoryRepo(db)

	deps := pipeline.Deps{
		Reconciler:   reconcile.New(reconcile.JoinLeft, logger, metrics),
		Sources:      func() (reconcile.Sources, error) { return reconcile.DefaultSources(dataDir) },
		Observations: store.NewObservationRepo(db),
		Stations:     stations,
		Trainers: []model.Trainer{
			model.ForestTrainer{Params: model.ForestParams{NumTrees: 5, MinSamplesSplit: 2}},
			model.BoostTrainer{Params: model.BoostParams{Rounds: 5, LearningRate: 0.3, MaxDepth: 3, Lambda: 1, MinChildWeight: 1, BaseScore: 0.5}},
			model.SequenceTrainer{Params: model.LSTMParams{Hidden: 4, Epochs: 3, LearningRate: 0.001, ChunkSize: 32}},
		},
		Registry:  registry,
		Artifacts: artifacts,
		Evaluator: evaluate.New(registry, ensemble.FusionMean, artifacts, logger, metrics),
		Publisher: publisher,
		Fusion:    string(ensemble.FusionMean),
	}

	weather := fixedWeather{cond: domain.LiveConditions{
		Temperature:   24.2,
		Humidity:      90,
		WindSpeed:     3.4,
		Precipitation: 8.6,
		ObservedAt:    time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC),
	}}

	return &stack{
		pipeline:  pipeline.New(deps, logger, metrics),
		predictor: ensemble.NewPredictor(registry, stations, weather, history, ensemble.FusionMean, logger, metrics),
		registry:  registry,
		artifacts: artifacts,
		history:   history,
	}
}

func rioOptions() pipeline.Options {
	return pipeline.Options{MinRows: 1, TestFraction: 0.2}
}
