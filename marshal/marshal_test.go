package marshal

import (
	stderrors "errors"
	"math"
	"strings"
	"testing"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/native"
)

func newTestEnv(t *testing.T) (*native.Engine, *Env) {
	t.Helper()
	e := native.New(native.Config{Memory: native.NewSliceMemory(1, 256), PoisonFreed: true})
	return e, NewEnv(e)
}

func allocBuf(t *testing.T, env *Env, size uint32) Ptr {
	t.Helper()
	p, err := env.Native.Memory.Alloc(size, 8)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	return p
}

func roundTrip[T comparable](t *testing.T, env *Env, m Marshaller[T], values ...T) {
	t.Helper()
	buf := allocBuf(t, env, m.Size()*uint32(len(values)))
	for i, v := range values {
		if err := m.ToNative(buf, i, v); err != nil {
			t.Fatalf("ToNative(%v) failed: %v", v, err)
		}
	}
	for i, want := range values {
		got, err := m.FromNative(buf, i)
		if err != nil {
			t.Fatalf("FromNative(%d) failed: %v", i, err)
		}
		if got != want {
			t.Fatalf("element %d: got %v, want %v", i, got, want)
		}
	}
}

func TestScalars_RoundTrip(t *testing.T) {
	_, env := newTestEnv(t)

	roundTrip[int8](t, env, Int8(env), 0, math.MinInt8, math.MaxInt8, -1)
	roundTrip[int16](t, env, Int16(env), 0, math.MinInt16, math.MaxInt16)
	roundTrip[int32](t, env, Int32(env), 0, math.MinInt32, math.MaxInt32, -42)
	roundTrip[int64](t, env, Int64(env), 0, math.MinInt64, math.MaxInt64)
	roundTrip[uint8](t, env, Uint8(env), 0, math.MaxUint8)
	roundTrip[uint16](t, env, Uint16(env), 0, math.MaxUint16)
	roundTrip[uint32](t, env, Uint32(env), 0, math.MaxUint32)
	roundTrip[uint64](t, env, Uint64(env), 0, math.MaxUint64)
	roundTrip[float32](t, env, Float32(env), 0, -1.5, math.MaxFloat32, math.SmallestNonzeroFloat32)
	roundTrip[float64](t, env, Float64(env), 0, math.Pi, -math.MaxFloat64)
	roundTrip[bool](t, env, Bool(env), true, false, true)
}

type health float32

func TestAs_NamedScalar(t *testing.T) {
	_, env := newTestEnv(t)
	roundTrip[health](t, env, As[health](Float32(env)), 100, 0.5)
}

func TestBool_NonZeroIsTrue(t *testing.T) {
	_, env := newTestEnv(t)
	m := Bool(env)
	buf := allocBuf(t, env, 4)
	for _, b := range []uint8{1, 2, 0x80, 0xFF} {
		_ = env.Mem.WriteU8(buf, b)
		v, err := m.FromNative(buf, 0)
		if err != nil || !v {
			t.Fatalf("byte %#x read as %v, %v", b, v, err)
		}
	}
	_ = env.Mem.WriteU8(buf, 0)
	if v, _ := m.FromNative(buf, 0); v {
		t.Fatal("zero byte read as true")
	}
	_ = m.ToNative(buf, 0, true)
	if b, _ := env.Mem.ReadU8(buf); b != 1 {
		t.Fatalf("true written as %d", b)
	}
}

type color uint16

const (
	red   color = 1
	green color = 255
	wide  color = 256
)

func TestEnum_SingleByte(t *testing.T) {
	_, env := newTestEnv(t)
	m := Enum[color](env)
	if m.Size() != 1 {
		t.Fatalf("enum size = %d", m.Size())
	}
	roundTrip(t, env, Marshaller[color](m), red, green)

	buf := allocBuf(t, env, 4)
	_ = env.Mem.WriteU32(buf, 0)
	err := m.ToNative(buf, 0, wide)
	if !stderrors.Is(err, &errors.Error{Kind: errors.KindOverflow}) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if b, _ := env.Mem.ReadU8(buf); b != 0 {
		t.Fatal("overflowing enum was written")
	}

	signed := Enum[int32](env)
	if err := signed.ToNative(buf, 0, -1); err == nil {
		t.Fatal("expected overflow for negative enum")
	}
}

func TestString_RoundTrip(t *testing.T) {
	_, env := newTestEnv(t)
	long := strings.Repeat("x", 1<<16)
	roundTrip(t, env, Marshaller[string](String(env)), "", "hello", "日本語", "emoji 🎮", long)
}

func TestString_NullReadsEmpty(t *testing.T) {
	_, env := newTestEnv(t)
	m := String(env)
	buf := allocBuf(t, env, m.Size())
	v, err := m.FromNative(buf, 0)
	if err != nil || v != "" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestString_DestructInstanceFrees(t *testing.T) {
	e, env := newTestEnv(t)
	m := String(env)
	buf := allocBuf(t, env, m.Size()*2)
	baseline := e.Heap().Stats().LiveCount

	_ = m.ToNative(buf, 1, "owned storage")
	if e.Heap().Stats().LiveCount != baseline+1 {
		t.Fatal("expected one native allocation for the string")
	}
	if err := m.DestructInstance(buf, 1); err != nil {
		t.Fatal(err)
	}
	if e.Heap().Stats().LiveCount != baseline {
		t.Fatal("DestructInstance did not free storage")
	}
	if v, _ := m.FromNative(buf, 1); v != "" {
		t.Fatalf("destructed slot reads %q", v)
	}
}

func TestName_RoundTrip(t *testing.T) {
	_, env := newTestEnv(t)
	roundTrip(t, env, Marshaller[string](Name(env)), "", "Fire", "Jump", "Fire")
}

func TestName_NoneIsEmpty(t *testing.T) {
	_, env := newTestEnv(t)
	m := Name(env)
	buf := allocBuf(t, env, m.Size())
	if err := m.ToNative(buf, 0, "None"); err != nil {
		t.Fatal(err)
	}
	if idx, _ := env.Mem.ReadU32(buf); idx != 0 {
		t.Fatalf("None interned at %d", idx)
	}
	if v, err := m.FromNative(buf, 0); err != nil || v != "" {
		t.Fatalf("None reads %q, %v", v, err)
	}
}

func TestText_OwnershipBoundaries(t *testing.T) {
	e, env := newTestEnv(t)
	baseline := e.Heap().Stats().LiveCount

	txt, err := NewText(env, "Press Start")
	if err != nil {
		t.Fatal(err)
	}
	refs := func() uint32 {
		n, _ := env.Native.Text.RefCount(txt.Cell())
		return n
	}

	m := TextOf(env)
	slot := allocBuf(t, env, m.Size())
	if err := m.ToNative(slot, 0, txt); err != nil {
		t.Fatal(err)
	}
	if refs() != 2 {
		t.Fatalf("refs after store = %d, want 2", refs())
	}
	if err := m.ToNative(slot, 0, txt); err != nil {
		t.Fatal(err)
	}
	if refs() != 2 {
		t.Fatalf("re-storing the same text changed refs to %d", refs())
	}

	read, err := m.FromNative(slot, 0)
	if err != nil {
		t.Fatal(err)
	}
	if refs() != 3 {
		t.Fatalf("refs after read = %d, want 3", refs())
	}
	if s, _ := read.Value(); s != "Press Start" {
		t.Fatalf("got %q", s)
	}

	_ = read.Close()
	_ = read.Close()
	if refs() != 2 {
		t.Fatalf("double Close released twice: refs %d", refs())
	}
	if _, err := read.Value(); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}

	clone, _ := txt.Clone()
	_ = txt.Close()
	_ = m.DestructInstance(slot, 0)
	if s, _ := clone.Value(); s != "Press Start" {
		t.Fatal("clone lost its reference")
	}
	_ = clone.Close()

	env.Native.Memory.Free(slot, m.Size(), 8)
	if live := e.Heap().Stats().LiveCount; live != baseline {
		t.Fatalf("text leaked: live %d baseline %d", live, baseline)
	}
}

func TestScratch_ReleaseDestroysValues(t *testing.T) {
	e, env := newTestEnv(t)
	baseline := e.Heap().Stats().LiveCount

	s := NewScratch(env)
	p, err := s.Value(native.TypeString)
	if err != nil {
		t.Fatal(err)
	}
	_ = String(env).ToNative(p, 0, "temporary")
	if _, err := s.Alloc(64, 8); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 2 {
		t.Fatalf("Count = %d", s.Count())
	}
	s.Release()

	if live := e.Heap().Stats().LiveCount; live != baseline {
		t.Fatalf("scratch leaked: live %d baseline %d", live, baseline)
	}
}

func TestOutOfBoundsIndex(t *testing.T) {
	_, env := newTestEnv(t)
	if _, err := Int32(env).FromNative(0x100, -1); !stderrors.Is(err, errors.ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", err)
	}
}
