// Package errors provides structured error types for the libraw-wasm library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes context: field path, Go/engine type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConfigure, errors.KindTypeMismatch).
//		Path("bright").
//		GoType("string").
//		EngineType("f32").
//		Build()
//
// Pipeline stage failures are reported as *EngineError carrying the stage and
// the engine's raw status code:
//
//	var ee *errors.EngineError
//	if stderrors.As(err, &ee) && ee.Stage == errors.StageOpen {
//		// not a raw file
//	}
//
// The Err* sentinels match with errors.Is regardless of phase:
//
//	if stderrors.Is(err, errors.ErrUninitialized) { ... }
package errors
