// Package domain models the weather observations, flood event records, and
// predictions that the flood risk ensemble trains on and serves.
//
// # Data Sources
//
// Hourly weather observations come from INMET automatic station exports
// (one CSV per station and year). Flood labels come from the ANA flood
// susceptibility dataset, one row per municipality. The INMET station
// catalog links station codes to the municipality name they report from.
//
// # INMET Conventions
//
// File layout:
//
//	A metadata preamble ("REGIAO:;S", "CODIGO (WMO):;A652", ...) precedes the
//	column header row. The preamble length varies between export vintages,
//	so the header row is located by scanning, never by a fixed offset.
//
// Encoding and separators:
//
//	Older exports are Latin-1, newer ones UTF-8. Fields are separated by ';'
//	(occasionally ',' or tab) and decimals use a comma: "22,4" = 22.4.
//
// Missing values:
//
//	-9999 is the INMET sentinel for a sensor fault. It is translated to a
//	missing value on ingestion, never carried as a number. Empty cells are
//	also missing.
//
// # Municipality Names
//
// The catalog and the flood dataset spell municipalities differently
// ("São Paulo" vs "SAO PAULO", stray whitespace). Both sides are passed
// through [NormalizeName] before any join, and the join is an exact string
// match on the normalized form. There is no fuzzy matching.
//
// # Labels
//
// The ANA field CHEIAS_201 is a count of recorded floods. Any count above
// zero (or a truthy category such as "SIM") is labeled 1, otherwise 0.
// Weather rows whose municipality has no flood record default to 0 under the
// left-join policy, which biases the table toward negatives.
//
// # Location Keys
//
// Predictions and history are keyed by catalog station code. A latitude and
// longitude request resolves to the nearest catalog station first.
package domain
