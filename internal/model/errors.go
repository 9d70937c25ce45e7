package model

import "errors"

var (
	// ErrUnknownSource is returned when a source id is not registered
	ErrUnknownSource = errors.New("unknown source")

	// ErrInvalidRegistration is returned when a registration fails validation
	ErrInvalidRegistration = errors.New("invalid source registration")

	// ErrSourceCallFailed wraps transport and remote errors from a source handle
	ErrSourceCallFailed = errors.New("source call failed")

	// ErrSourceTimeout marks a call that exceeded its timeout
	ErrSourceTimeout = errors.New("source call timed out")

	// ErrCircuitOpen is returned while a source's breaker is open
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrPlanning is returned when no valid plan can be built
	ErrPlanning = errors.New("planning error")

	// ErrClassificationFallback marks a classification that degraded to the general intent
	ErrClassificationFallback = errors.New("classification fell back to general query")

	// ErrInvestigationFailed marks an investigation that terminated in failure
	ErrInvestigationFailed = errors.New("investigation failed")

	// ErrNotFound is returned by stores for missing records
	ErrNotFound = errors.New("not found")
)
