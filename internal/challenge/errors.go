package challenge

import "errors"

var (
	// ErrExtraction is returned when a challenged response does not yield
	// usable challenge parameters in any recognized shape.
	ErrExtraction = errors.New("challenge parameters not found")

	// ErrSolver is returned when the external solver fails or times out.
	// Solver failures reject the exchange; the executor never retries a
	// solve.
	ErrSolver = errors.New("solver failure")
)
