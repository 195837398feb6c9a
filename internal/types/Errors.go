package types

import "errors"

// Error taxonomy shared across pipeline stages. Data and configuration
// errors are fatal; resource overruns are retried once with degraded
// parameters before being surfaced as warnings.
var (
	// ErrDataInsufficient: fewer bars than the smallest fidelity or a
	// walk-forward slice requires. Surfaced immediately, never retried.
	ErrDataInsufficient = errors.New("insufficient data for requested evaluation")

	// ErrConvergenceFailure: a search stage cannot produce enough
	// surviving candidates after screening.
	ErrConvergenceFailure = errors.New("search stage failed to converge")

	// ErrConstraintViolation: every candidate failed a validation
	// stage's acceptance thresholds.
	ErrConstraintViolation = errors.New("no candidate satisfies acceptance thresholds")

	// ErrResourceExhausted: a stage exceeded its wall-clock budget even
	// after one degradation attempt.
	ErrResourceExhausted = errors.New("stage resource budget exhausted")
)
