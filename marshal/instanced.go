package marshal

import (
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/native"
)

// InstancedStruct owns a native instanced struct cell: a struct type plus
// natively constructed memory. Construct, copy and destroy all run natively.
// The cell is allocated on first use; Dispose releases it exactly once.
type InstancedStruct struct {
	env      *Env
	cell     Ptr
	disposed bool
}

// NewInstancedStruct returns an empty value bound to env.
func NewInstancedStruct(env *Env) *InstancedStruct {
	return &InstancedStruct{env: env}
}

func (s *InstancedStruct) ensure() (Ptr, error) {
	if s.disposed {
		return 0, errors.Closed(errors.PhaseRuntime, "instanced struct")
	}
	if s.cell != 0 {
		return s.cell, nil
	}
	cell, err := s.env.Native.Memory.Alloc(native.InstancedSize, 4)
	if err != nil {
		return 0, err
	}
	s.cell = cell
	return cell, nil
}

// Make returns a value holding a default-constructed T.
func Make[T any](env *Env, m *StructMarshaller[T]) (*InstancedStruct, error) {
	s := NewInstancedStruct(env)
	cell, err := s.ensure()
	if err != nil {
		return nil, err
	}
	if err := env.Native.Instanced.InitializeAs(cell, m.Type(), 0); err != nil {
		_ = s.Dispose()
		return nil, err
	}
	return s, nil
}

// MakeFrom returns a value holding a native copy of v. v is marshalled into
// a scratch buffer that is destroyed as soon as the copy is made.
func MakeFrom[T any](env *Env, m *StructMarshaller[T], v T) (*InstancedStruct, error) {
	s := NewInstancedStruct(env)
	if err := Assign(s, m, v); err != nil {
		_ = s.Dispose()
		return nil, err
	}
	return s, nil
}

// Assign replaces the held value with a copy of v typed as T.
func Assign[T any](s *InstancedStruct, m *StructMarshaller[T], v T) error {
	cell, err := s.ensure()
	if err != nil {
		return err
	}
	scratch := NewScratch(s.env)
	defer scratch.Release()
	src, err := scratch.Value(m.Type())
	if err != nil {
		return err
	}
	if err := m.ToNative(src, 0, v); err != nil {
		return err
	}
	return s.env.Native.Instanced.InitializeAs(cell, m.Type(), src)
}

// TryGet reads the held value if its native type is T's. A type mismatch or
// an empty value reports false rather than an error.
func TryGet[T any](s *InstancedStruct, m *StructMarshaller[T]) (T, bool) {
	v, err := Get(s, m)
	return v, err == nil
}

// Get reads the held value, reporting a type mismatch as an error.
func Get[T any](s *InstancedStruct, m *StructMarshaller[T]) (T, error) {
	var zero T
	cell, err := s.ensure()
	if err != nil {
		return zero, err
	}
	st, err := s.env.Native.Instanced.StructType(cell)
	if err != nil {
		return zero, err
	}
	if st != m.Type() {
		return zero, errors.TypeMismatch(errors.PhaseFromNative, nil, typeName(zero), m.name)
	}
	mem, err := s.env.Native.Instanced.Memory(cell)
	if err != nil {
		return zero, err
	}
	return m.FromNative(mem, 0)
}

// StructType returns the native type held, or zero when empty.
func (s *InstancedStruct) StructType() (native.TypeID, error) {
	cell, err := s.ensure()
	if err != nil {
		return 0, err
	}
	return s.env.Native.Instanced.StructType(cell)
}

// IsValid reports whether a value is held.
func (s *InstancedStruct) IsValid() bool {
	if s.disposed || s.cell == 0 {
		return false
	}
	mem, err := s.env.Native.Instanced.Memory(s.cell)
	return err == nil && mem != 0
}

// Reset destroys the held value and keeps the cell.
func (s *InstancedStruct) Reset() error {
	if s.disposed || s.cell == 0 {
		return nil
	}
	return s.env.Native.Instanced.Reset(s.cell)
}

// Dispose destroys the held value and frees the cell. Later calls do nothing.
func (s *InstancedStruct) Dispose() error {
	if s.disposed {
		return nil
	}
	s.disposed = true
	if s.cell == 0 {
		return nil
	}
	err := s.env.Native.Instanced.Reset(s.cell)
	s.env.Native.Memory.Free(s.cell, native.InstancedSize, 4)
	s.cell = 0
	return err
}

// InstancedMarshaller copies instanced struct slots to and from owned values.
type InstancedMarshaller struct {
	base
}

func Instanced(env *Env) InstancedMarshaller {
	return InstancedMarshaller{base{env: env, id: native.TypeInstancedStruct, size: native.InstancedSize, name: "instanced_struct"}}
}

// ToNative copies v natively into the slot; nil or empty resets it.
func (m InstancedMarshaller) ToNative(buf Ptr, index int, v *InstancedStruct) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	if v != nil && v.disposed {
		return errors.Closed(errors.PhaseToNative, "instanced struct")
	}
	if v == nil || v.cell == 0 {
		return m.env.Native.Instanced.Reset(p)
	}
	return m.env.Native.Types.Copy(m.id, p, v.cell)
}

// FromNative returns a new value holding a native copy. The caller must Dispose it.
func (m InstancedMarshaller) FromNative(buf Ptr, index int) (*InstancedStruct, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return nil, err
	}
	s := NewInstancedStruct(m.env)
	cell, err := s.ensure()
	if err != nil {
		return nil, err
	}
	if err := m.env.Native.Types.Copy(m.id, cell, p); err != nil {
		_ = s.Dispose()
		return nil, err
	}
	return s, nil
}
