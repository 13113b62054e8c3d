package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/couchcryptid/flood-risk-ensemble/internal/artifact"
	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/ensemble"
	"github.com/couchcryptid/flood-risk-ensemble/internal/evaluate"
	"github.com/couchcryptid/flood-risk-ensemble/internal/model"
)

// errBadRequest marks a malformed query parameter.
var errBadRequest = errors.New("bad request")

type historyResponse struct {
	Station string              `json:"station"`
	Order   string              `json:"order"`
	History []domain.Prediction `json:"history"`
}

type reloadResponse struct {
	AllTrained bool           `json:"all_trained"`
	Models     []model.Status `json:"models"`
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.deps.Stations.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if stations == nil {
		stations = []domain.Station{}
	}
	respond(w, r, http.StatusOK, map[string]any{"stations": stations})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	loc, err := parseLocation(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Predictor.Predict(r.Context(), loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	loc, err := parseLocation(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()

	limit := s.deps.HistoryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = n
	}

	order := q.Get("order")
	switch order {
	case "":
		order = "asc"
	case "asc", "desc":
	default:
		s.writeError(w, r, fmt.Errorf("%w: order must be asc or desc", errBadRequest))
		return
	}

	history, err := s.deps.Predictor.History(r.Context(), loc, limit, order == "desc")
	if errors.Is(err, domain.ErrNoHistory) {
		respond(w, r, http.StatusOK, map[string]bool{"noData": true})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	station := loc.StationID
	if len(history) > 0 {
		station = history[0].LocationKey
	}
	respond(w, r, http.StatusOK, historyResponse{Station: station, Order: order, History: history})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	record, err := evaluate.Load(r.Context(), s.deps.Artifacts)
	if errors.Is(err, artifact.ErrNotFound) {
		respond(w, r, http.StatusServiceUnavailable, map[string]string{
			"error": "no evaluation has been run yet",
		})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, record)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.Load(r.Context(), s.deps.Artifacts); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("model registry reloaded", "all_trained", s.deps.Registry.AllTrained())
	respond(w, r, http.StatusOK, reloadResponse{
		AllTrained: s.deps.Registry.AllTrained(),
		Models:     s.deps.Registry.Statuses(),
	})
}

// parseLocation reads station=ID, or lat= and lon= in decimal degrees.
func parseLocation(r *http.Request) (domain.Location, error) {
	q := r.URL.Query()
	if id := q.Get("station"); id != "" {
		return domain.Location{StationID: id}, nil
	}
	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr == "" && lonStr == "" {
		return domain.Location{}, fmt.Errorf("%w: %w", errBadRequest, ensemble.ErrInvalidLocation)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return domain.Location{}, fmt.Errorf("%w: lat must be a number in [-90, 90]", errBadRequest)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		return domain.Location{}, fmt.Errorf("%w: lon must be a number in [-180, 180]", errBadRequest)
	}
	return domain.Location{Lat: lat, Lon: lon, HasCoords: true}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, ensemble.ErrInvalidLocation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExternalDataUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	respond(w, r, status, map[string]string{"error": err.Error()})
}
