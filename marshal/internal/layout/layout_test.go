package layout

import (
	stderrors "errors"
	"math"
	"testing"

	"github.com/wippyai/nativebind/errors"
)

func TestSafeMulU32(t *testing.T) {
	tests := []struct {
		name   string
		a, b   uint32
		want   uint32
		wantOK bool
	}{
		{"zero * max", 0, math.MaxUint32, 0, true},
		{"small * small", 100, 200, 20000, true},
		{"max * one", math.MaxUint32, 1, math.MaxUint32, true},
		{"overflow", math.MaxUint32, 2, 0, false},
		{"edge case ok", 65536, 65535, 65536 * 65535, true},
		{"edge case overflow", 65536, 65537, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeMulU32(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Errorf("SafeMulU32(%d, %d) ok = %v, want %v", tt.a, tt.b, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("SafeMulU32(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSafeAddU32(t *testing.T) {
	if _, ok := SafeAddU32(math.MaxUint32, 1); ok {
		t.Error("expected overflow")
	}
	if got, ok := SafeAddU32(math.MaxUint32-1, 1); !ok || got != math.MaxUint32 {
		t.Errorf("got %d, %v", got, ok)
	}
}

func TestAlignTo(t *testing.T) {
	tests := []struct{ offset, align, want uint32 }{
		{0, 4, 0}, {1, 4, 4}, {4, 4, 4}, {13, 8, 16}, {7, 0, 7},
	}
	for _, tt := range tests {
		if got := AlignTo(tt.offset, tt.align); got != tt.want {
			t.Errorf("AlignTo(%d, %d) = %d, want %d", tt.offset, tt.align, got, tt.want)
		}
	}
}

func TestElement(t *testing.T) {
	p, err := Element(1000, 3, 12)
	if err != nil || p != 1036 {
		t.Fatalf("Element = %d, %v", p, err)
	}
	if _, err := Element(math.MaxUint32-4, 1, 8); err == nil {
		t.Fatal("expected overflow")
	}
	if _, err := Element(0, -1, 4); !stderrors.Is(err, errors.ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", err)
	}
}

func TestView(t *testing.T) {
	v, err := NewView(64, 8, 4)
	if err != nil {
		t.Fatal(err)
	}
	if v.Bytes() != 32 {
		t.Fatalf("Bytes = %d", v.Bytes())
	}
	p, err := v.At(3)
	if err != nil || p != 88 {
		t.Fatalf("At(3) = %d, %v", p, err)
	}
	for _, i := range []int{-1, 4} {
		if _, err := v.At(i); !stderrors.Is(err, errors.ErrOutOfBounds) {
			t.Fatalf("At(%d) expected out of bounds, got %v", i, err)
		}
	}
	if _, err := NewView(math.MaxUint32-10, 4, 4); err == nil {
		t.Fatal("expected overflow for view past end of address space")
	}
	if _, err := NewView(0, 4, -1); err == nil {
		t.Fatal("expected error for negative count")
	}
}

func TestCheckStride(t *testing.T) {
	if err := CheckStride(nil, "int32", 4, 4); err != nil {
		t.Fatal(err)
	}
	err := CheckStride([]string{"Actor", "Health"}, "float", 8, 4)
	if !stderrors.Is(err, errors.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}
