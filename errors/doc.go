// Package errors provides structured error types for nativebind.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go/native type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseToNative, errors.KindTypeMismatch).
//		Path("Pawn", "Health").
//		GoType("string").
//		NativeType("float32").
//		Detail("cannot convert string to float").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseFromNative, path, 10, 5)
//	err := errors.ObjectDestroyed(errors.PhaseRuntime, ptr, "get Health")
//
// Kind-only sentinels match any phase:
//
//	if errors.Is(err, nberrors.ErrObjectDestroyed) { ... }
//
// Type mismatches on TryGet and interface narrowing are not errors; they are
// reported through boolean or nil results.
package errors
