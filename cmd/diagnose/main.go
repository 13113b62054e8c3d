// Command diagnose explains an empty reconciliation: it compares the
// normalized station names in the catalog with the municipality names in
// the flood-event file and prints counts and samples from each side.
//
// Usage:
//
//	go run ./cmd/diagnose -data-dir dados
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/flood-risk-ensemble/internal/reconcile"
)

func main() {
	dataDir := flag.String("data-dir", sharedcfg.EnvOrDefault("DATA_DIR", "dados"), "directory holding ana_inundacao.csv and the station catalog")
	flag.Parse()

	os.Exit(run(*dataDir))
}

func run(dataDir string) int {
	stations, err := reconcile.ParseCatalog(filepath.Join(dataDir, reconcile.CatalogFileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read catalog: %v\n", err)
		return 1
	}
	events, err := reconcile.ParseEvents(filepath.Join(dataDir, reconcile.EventsFileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read events: %v\n", err)
		return 1
	}

	d := reconcile.Diagnose(stations, events)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		fmt.Fprintf(os.Stderr, "write report: %v\n", err)
		return 1
	}

	if d.Common == 0 {
		fmt.Fprintln(os.Stderr, "FAIL: no station name matches a municipality; reconciliation will be empty")
		return 1
	}
	fmt.Fprintf(os.Stderr, "OK: %d names in common\n", d.Common)
	return 0
}
