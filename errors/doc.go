// Package errors provides structured error types for the dsp-runtime library.
//
// Errors are categorized by Phase (where in the performer lifecycle the error
// occurred) and Kind (error category). The Error type carries the offending
// endpoint or node, a node path for feedback loops, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindTypeMismatch).
//		Endpoint("gain").
//		Detail("value endpoint bound as stream source").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseBind, "endpoint", "in")
//	err := errors.LimitExceeded(errors.PhaseLink, "state size", 8192, 4096)
//
// All errors implement the standard error interface and support errors.Is/As.
// Performers never return these errors to callers directly: Load and Link
// convert them into diagnostics on the caller's diag.List.
package errors
