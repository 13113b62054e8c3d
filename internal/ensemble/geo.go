package ensemble

import (
	"math"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(min(a, 1)))
}

// Nearest returns the station closest to (lat, lon). Ties keep the earlier
// station, so callers should pass a stable order.
func Nearest(stations []domain.Station, lat, lon float64) (domain.Station, float64, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, s := range stations {
		if d := haversineKm(lat, lon, s.Latitude, s.Longitude); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return domain.Station{}, 0, false
	}
	return stations[best], bestDist, true
}
