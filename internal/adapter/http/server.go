// Package http serves predictions, history, evaluation results and the
// operational endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/flood-risk-ensemble/internal/artifact"
	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/ensemble"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
)

// Predictor serves fused predictions and their history.
type Predictor interface {
	Predict(ctx context.Context, loc domain.Location) (ensemble.Result, error)
	History(ctx context.Context, loc domain.Location, limit int, newestFirst bool) ([]domain.Prediction, error)
}

// StationLister lists the station catalog.
type StationLister interface {
	List(ctx context.Context) ([]domain.Station, error)
}

// Deps are the collaborators behind the API routes.
type Deps struct {
	Predictor Predictor
	Stations  StationLister
	Registry  *model.Registry
	Artifacts artifact.Store
	Ready     sharedobs.ReadinessChecker
	// HistoryLimit is the page size when a history request has no limit.
	HistoryLimit int
}

// Server exposes the prediction API plus health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server. Every route allows cross-origin GETs.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /stations", s.handleStations)
	mux.HandleFunc("GET /predict", s.handlePredict)
	mux.HandleFunc("GET /predict/history", s.handleHistory)
	mux.HandleFunc("GET /evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /admin/reload", s.handleReload)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(true),
	)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      recovery(cors(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
