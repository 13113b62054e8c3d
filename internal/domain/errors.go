package domain

import "errors"

var (
	// ErrDataUnavailable means a source file was missing, unparseable, or
	// empty after cleaning.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrReconciliationEmpty means no catalog station matched a flood record.
	ErrReconciliationEmpty = errors.New("reconciliation produced no station matches")

	// ErrModelUntrained means a model artifact is absent or incomplete.
	ErrModelUntrained = errors.New("model untrained")

	// ErrExternalDataUnavailable means the live weather source failed.
	ErrExternalDataUnavailable = errors.New("external weather data unavailable")

	// ErrPersistence means an artifact or table could not be written or read.
	ErrPersistence = errors.New("persistence failure")

	// ErrNoHistory means a location has never been predicted.
	ErrNoHistory = errors.New("no prediction history for location")

	// ErrStationNotFound means a location did not resolve to a catalog station.
	ErrStationNotFound = errors.New("station not found")
)
