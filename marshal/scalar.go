package marshal

import (
	"math"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/native"
)

// Number is any fixed-width scalar that is copied bit for bit.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Integer is any integer type usable as an enum.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Blittable reads and writes a scalar directly at its slot.
type Blittable[T Number] struct {
	base
	kind native.Kind
}

func blittable[T Number](env *Env, id native.TypeID, kind native.Kind, size uint32) Blittable[T] {
	return Blittable[T]{
		base: base{env: env, id: id, size: size, name: kind.String()},
		kind: kind,
	}
}

func Int8(env *Env) Blittable[int8] {
	return blittable[int8](env, native.TypeInt8, native.KindInt8, 1)
}

func Int16(env *Env) Blittable[int16] {
	return blittable[int16](env, native.TypeInt16, native.KindInt16, 2)
}

func Int32(env *Env) Blittable[int32] {
	return blittable[int32](env, native.TypeInt32, native.KindInt32, 4)
}

func Int64(env *Env) Blittable[int64] {
	return blittable[int64](env, native.TypeInt64, native.KindInt64, 8)
}

func Uint8(env *Env) Blittable[uint8] {
	return blittable[uint8](env, native.TypeUint8, native.KindUint8, 1)
}

func Uint16(env *Env) Blittable[uint16] {
	return blittable[uint16](env, native.TypeUint16, native.KindUint16, 2)
}

func Uint32(env *Env) Blittable[uint32] {
	return blittable[uint32](env, native.TypeUint32, native.KindUint32, 4)
}

func Uint64(env *Env) Blittable[uint64] {
	return blittable[uint64](env, native.TypeUint64, native.KindUint64, 8)
}

func Float32(env *Env) Blittable[float32] {
	return blittable[float32](env, native.TypeFloat32, native.KindFloat32, 4)
}

func Float64(env *Env) Blittable[float64] {
	return blittable[float64](env, native.TypeFloat64, native.KindFloat64, 8)
}

// As reinterprets a builtin scalar marshaller for a named Go type with the
// same underlying representation.
func As[T, U Number](m Blittable[U]) Blittable[T] {
	return Blittable[T]{base: m.base, kind: m.kind}
}

func (m Blittable[T]) ToNative(buf Ptr, index int, v T) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	mem := m.env.Mem
	switch m.kind {
	case native.KindFloat32:
		return mem.WriteU32(p, math.Float32bits(float32(v)))
	case native.KindFloat64:
		return mem.WriteU64(p, math.Float64bits(float64(v)))
	}
	switch m.size {
	case 1:
		return mem.WriteU8(p, uint8(v))
	case 2:
		return mem.WriteU16(p, uint16(v))
	case 4:
		return mem.WriteU32(p, uint32(v))
	default:
		return mem.WriteU64(p, uint64(v))
	}
}

func (m Blittable[T]) FromNative(buf Ptr, index int) (T, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return 0, err
	}
	mem := m.env.Mem
	switch m.kind {
	case native.KindFloat32:
		bits, err := mem.ReadU32(p)
		return T(math.Float32frombits(bits)), err
	case native.KindFloat64:
		bits, err := mem.ReadU64(p)
		return T(math.Float64frombits(bits)), err
	case native.KindInt8:
		v, err := mem.ReadU8(p)
		return T(int8(v)), err
	case native.KindInt16:
		v, err := mem.ReadU16(p)
		return T(int16(v)), err
	case native.KindInt32:
		v, err := mem.ReadU32(p)
		return T(int32(v)), err
	case native.KindInt64:
		v, err := mem.ReadU64(p)
		return T(int64(v)), err
	case native.KindUint8:
		v, err := mem.ReadU8(p)
		return T(v), err
	case native.KindUint16:
		v, err := mem.ReadU16(p)
		return T(v), err
	case native.KindUint32:
		v, err := mem.ReadU32(p)
		return T(v), err
	default:
		v, err := mem.ReadU64(p)
		return T(v), err
	}
}

// BoolMarshaller maps Go bool to the engine's one-byte bool.
type BoolMarshaller struct {
	base
}

func Bool(env *Env) BoolMarshaller {
	return BoolMarshaller{base{env: env, id: native.TypeBool, size: 1, name: "bool"}}
}

func (m BoolMarshaller) ToNative(buf Ptr, index int, v bool) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	var b uint8
	if v {
		b = 1
	}
	return m.env.Mem.WriteU8(p, b)
}

// FromNative treats every non-zero byte as true.
func (m BoolMarshaller) FromNative(buf Ptr, index int) (bool, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return false, err
	}
	b, err := m.env.Mem.ReadU8(p)
	return b != 0, err
}

// EnumMarshaller stores an enum in a single byte regardless of the Go
// type's width. Values outside 0..255 are rejected rather than truncated.
type EnumMarshaller[E Integer] struct {
	base
}

func Enum[E Integer](env *Env) EnumMarshaller[E] {
	return EnumMarshaller[E]{base{env: env, id: native.TypeEnum, size: 1, name: "enum"}}
}

func (m EnumMarshaller[E]) ToNative(buf Ptr, index int, v E) error {
	if v < 0 || uint64(v) > math.MaxUint8 {
		return errors.Overflow(errors.PhaseToNative, nil, v, "enum (uint8)")
	}
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	return m.env.Mem.WriteU8(p, uint8(v))
}

func (m EnumMarshaller[E]) FromNative(buf Ptr, index int) (E, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return 0, err
	}
	b, err := m.env.Mem.ReadU8(p)
	return E(b), err
}
