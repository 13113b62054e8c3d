package reconcile

import (
	"sort"

	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
)

const sampleSize = 10

// Diagnostics describes how well the catalog and flood names overlap. It is
// what an operator needs when the bridge comes out empty.
type Diagnostics struct {
	CatalogNames   int      `json:"catalog_names"`
	EventNames     int      `json:"event_names"`
	Common         int      `json:"common"`
	CatalogSamples []string `json:"catalog_samples"`
	EventSamples   []string `json:"event_samples"`
	CommonSamples  []string `json:"common_samples"`
}

// Diagnose compares normalized names on both sides of the bridge.
func Diagnose(stations []domain.Station, events []domain.FloodEvent) Diagnostics {
	catalog := make(map[string]struct{}, len(stations))
	for _, s := range stations {
		if s.NormalizedName != "" {
			catalog[s.NormalizedName] = struct{}{}
		}
	}
	floods := make(map[string]struct{}, len(events))
	for _, e := range events {
		floods[e.NormalizedName] = struct{}{}
	}

	var common []string
	for name := range catalog {
		if _, ok := floods[name]; ok {
			common = append(common, name)
		}
	}
	sort.Strings(common)

	return Diagnostics{
		CatalogNames:   len(catalog),
		EventNames:     len(floods),
		Common:         len(common),
		CatalogSamples: sample(catalog),
		EventSamples:   sample(floods),
		CommonSamples:  head(common),
	}
}

func sample(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return head(names)
}

func head(names []string) []string {
	if len(names) > sampleSize {
		return names[:sampleSize]
	}
	return names
}
