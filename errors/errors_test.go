package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:      PhaseToNative,
				Kind:       KindTypeMismatch,
				Path:       []string{"Pawn", "Stats", "Health"},
				GoType:     "string",
				NativeType: "float32",
				Detail:     "cannot convert",
			},
			contains: []string{"[to_native]", "type_mismatch", "Pawn.Stats.Health", "string", "float32", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseFromNative,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[from_native]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseNative,
				Kind:   KindAllocation,
				Detail: "heap exhausted",
				Cause:  errors.New("grow failed"),
			},
			contains: []string{"[native]", "allocation", "heap exhausted", "caused by", "grow failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseRuntime,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseToNative,
		Kind:  KindTypeMismatch,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseToNative, Kind: KindTypeMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseFromNative, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseToNative, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrTypeMismatch) {
		t.Error("kind sentinel should match any phase")
	}
	if errors.Is(err, ErrOutOfBounds) {
		t.Error("kind sentinel should not match other kinds")
	}
}

func TestError_IsThroughWrapping(t *testing.T) {
	inner := ObjectDestroyed(PhaseRuntime, 0x40, "get Health")
	wrapped := fmt.Errorf("tick: %w", inner)

	if !errors.Is(wrapped, ErrObjectDestroyed) {
		t.Error("errors.Is should see through fmt wrapping")
	}

	var target *Error
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed")
	}
	if target.Value != uint32(0x40) {
		t.Errorf("Value = %v, want 0x40", target.Value)
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseToNative, KindTypeMismatch).
		Path("Pawn", "Name").
		GoType("string").
		NativeType("int32").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "string", "int").
		Build()

	if err.Phase != PhaseToNative {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseToNative)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "Pawn" || err.Path[1] != "Name" {
		t.Errorf("Path = %v, want [Pawn Name]", err.Path)
	}
	if err.GoType != "string" {
		t.Errorf("GoType = %v, want 'string'", err.GoType)
	}
	if err.NativeType != "int32" {
		t.Errorf("NativeType = %v, want 'int32'", err.NativeType)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected string, got int" {
		t.Errorf("Detail = %v, want 'expected string, got int'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
		want string
	}{
		{"ObjectDestroyed", ObjectDestroyed(PhaseRuntime, 0x10, "call"), KindObjectDestroyed, "0x10"},
		{"OutOfBounds", OutOfBounds(PhaseFromNative, []string{"Tags"}, 10, 5), KindOutOfBounds, "length 5"},
		{"SizeMismatch", SizeMismatch([]string{"Health"}, "float32", 8, 4), KindTypeMismatch, "native size 4"},
		{"InvalidOperation", InvalidOperation(PhaseRuntime, "delegate already bound to %s", "Fire"), KindInvalidOperation, "Fire"},
		{"ReadOnly", ReadOnly(PhaseToNative, "array view"), KindReadOnly, "read-only"},
		{"AllocationFailed", AllocationFailed(PhaseNative, 1024, 8), KindAllocation, "1024"},
		{"Overflow", Overflow(PhaseToNative, nil, 300, "uint8"), KindOverflow, "300"},
		{"NilPointer", NilPointer(PhaseFromNative, nil, "optional payload"), KindNilPointer, "null"},
		{"NotFound", NotFound(PhaseRegister, "property", "Speed"), KindNotFound, "Speed"},
		{"StaleHandle", StaleHandle(0x100000001), KindStaleHandle, "stale"},
		{"Closed", Closed(PhaseDispatch, "dispatcher"), KindClosed, "dispatcher"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if !strings.Contains(tt.err.Error(), tt.want) {
				t.Errorf("Error() = %q, should contain %q", tt.err.Error(), tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(PhaseConfig, KindInvalidInput, cause, "parse bridge.toml")
	if !errors.Is(err, cause) {
		t.Error("Wrap should keep cause in chain")
	}
	if !strings.Contains(err.Error(), "parse bridge.toml") {
		t.Errorf("Error() = %q", err.Error())
	}
}
