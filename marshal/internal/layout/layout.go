package layout

import (
	"math"

	"github.com/wippyai/nativebind/errors"
)

func SafeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

func SafeAddU32(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}

func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// Element returns buf + index*stride.
func Element(buf uint32, index int, stride uint32) (uint32, error) {
	if index < 0 {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, nil, index, 0)
	}
	off, ok := SafeMulU32(uint32(index), stride)
	if !ok || uint64(index) > math.MaxUint32 {
		return 0, errors.Overflow(errors.PhaseRuntime, nil, index, "element offset")
	}
	p, ok := SafeAddU32(buf, off)
	if !ok {
		return 0, errors.Overflow(errors.PhaseRuntime, nil, index, "element address")
	}
	return p, nil
}

// View is a run of count elements of stride bytes starting at Base.
type View struct {
	Base   uint32
	Stride uint32
	Count  int
}

// NewView validates that the whole run is addressable.
func NewView(base, stride uint32, count int) (View, error) {
	if count < 0 {
		return View{}, errors.InvalidData(errors.PhaseRuntime, nil, "negative element count")
	}
	if count > 0 {
		total, ok := SafeMulU32(uint32(count), stride)
		if !ok || uint64(count) > math.MaxUint32 {
			return View{}, errors.Overflow(errors.PhaseRuntime, nil, count, "view size")
		}
		if _, ok := SafeAddU32(base, total); !ok {
			return View{}, errors.Overflow(errors.PhaseRuntime, nil, count, "view end")
		}
	}
	return View{Base: base, Stride: stride, Count: count}, nil
}

// At returns the address of element i.
func (v View) At(i int) (uint32, error) {
	if i < 0 || i >= v.Count {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, nil, i, v.Count)
	}
	return v.Base + uint32(i)*v.Stride, nil
}

// Bytes is the size of the whole run.
func (v View) Bytes() uint32 {
	return uint32(v.Count) * v.Stride
}

// CheckStride reports a size mismatch between a marshaller and the native layout.
func CheckStride(path []string, nativeType string, marshallerSize, nativeSize uint32) error {
	if marshallerSize != nativeSize {
		return errors.SizeMismatch(path, nativeType, marshallerSize, nativeSize)
	}
	return nil
}
