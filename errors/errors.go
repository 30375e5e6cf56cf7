package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister   Phase = "register"    // marshaller and type registration
	PhaseToNative   Phase = "to_native"   // Go to native heap
	PhaseFromNative Phase = "from_native" // native heap to Go
	PhaseHandle     Phase = "handle"      // association table operations
	PhaseRuntime    Phase = "runtime"     // object model operations
	PhaseDispatch   Phase = "dispatch"    // game-thread affinity hop
	PhaseNative     Phase = "native"      // reference engine entry points
	PhaseConfig     Phase = "config"      // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindObjectDestroyed  Kind = "object_destroyed"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindTypeMismatch     Kind = "type_mismatch"
	KindInvalidOperation Kind = "invalid_operation"
	KindReadOnly         Kind = "read_only"
	KindAllocation       Kind = "allocation"
	KindOverflow         Kind = "overflow"
	KindNilPointer       Kind = "nil_pointer"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindInvalidData      Kind = "invalid_data"
	KindStaleHandle      Kind = "stale_handle"
	KindClosed           Kind = "closed"
)

// Sentinels for kind-only matching with errors.Is, regardless of phase.
var (
	ErrObjectDestroyed  = &Error{Kind: KindObjectDestroyed}
	ErrOutOfBounds      = &Error{Kind: KindOutOfBounds}
	ErrTypeMismatch     = &Error{Kind: KindTypeMismatch}
	ErrInvalidOperation = &Error{Kind: KindInvalidOperation}
	ErrReadOnly         = &Error{Kind: KindReadOnly}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrClosed           = &Error{Kind: KindClosed}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	NativeType string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.NativeType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.NativeType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", native type ")
			b.WriteString(e.NativeType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.NativeType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// NativeType sets the native type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ObjectDestroyed reports use of a native object that no longer exists.
func ObjectDestroyed(phase Phase, ptr uint32, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindObjectDestroyed,
		Detail: fmt.Sprintf("%s: native object 0x%x has been destroyed", what, ptr),
		Value:  ptr,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		NativeType: nativeType,
	}
}

// SizeMismatch reports a marshaller whose stride disagrees with the native layout.
func SizeMismatch(path []string, nativeType string, goSize, nativeSize uint32) *Error {
	return &Error{
		Phase:      PhaseRegister,
		Kind:       KindTypeMismatch,
		Path:       path,
		NativeType: nativeType,
		Detail:     fmt.Sprintf("marshaller size %d does not match native size %d", goSize, nativeSize),
	}
}

// InvalidOperation reports protocol misuse: a programmer error, not a runtime condition.
func InvalidOperation(phase Phase, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidOperation,
		Detail: detail,
	}
}

// ReadOnly reports a write through a read-only view.
func ReadOnly(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReadOnly,
		Detail: what + " is read-only",
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindOverflow,
		Path:       path,
		NativeType: targetType,
		Detail:     fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:      value,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		Detail: what + " is null",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// StaleHandle reports a handle whose generation no longer matches its slot.
func StaleHandle(handle uint64) *Error {
	return &Error{
		Phase:  PhaseHandle,
		Kind:   KindStaleHandle,
		Detail: fmt.Sprintf("handle 0x%x is stale", handle),
		Value:  handle,
	}
}

// Closed reports an operation on a closed component.
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: component + " is closed",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
