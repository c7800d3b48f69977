package common

import "errors"

// Error taxonomy shared by the analysis packages. Concrete errors wrap one of
// these so callers can test with errors.Is.
var (
	// ErrInput marks empty or degenerate signals (zero length, all silence)
	ErrInput = errors.New("invalid input")

	// ErrConfiguration marks parameter combinations the algorithms cannot run with
	ErrConfiguration = errors.New("invalid configuration")

	// ErrLookup marks instruments that have no built-in scale parameters
	ErrLookup = errors.New("lookup failed")
)
