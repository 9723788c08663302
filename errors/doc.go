// Package errors provides structured error types for the gpu-bridge library.
//
// Every fallible operation returns exactly one Kind plus an optional causal
// chain; callers branch only on kind. The taxonomy is closed: backend status
// codes are wrapped verbatim in KindComponent or KindMapping errors and never
// downgraded to success.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.KindInvalidResourceID).
//		Detail("resource %d", id).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidResourceID(id)
//	err := errors.Component(ret)
//
// All errors implement the standard error interface and support errors.Is
// and errors.As. Two errors match under errors.Is when their kinds are
// equal, so callers usually branch with the IsKind helper:
//
//	if errors.IsKind(err, errors.KindUnsupported) { ... }
package errors
