package marshal

import (
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/native"
)

// Handle is a Go wrapper around a native object.
type Handle interface {
	NativePtr() Ptr
}

// Generational is implemented by handles that remember the serial number of
// the object they were created for.
type Generational interface {
	NativeSerial() uint32
}

// Resolver finds the existing wrapper of a native object. It returns the
// zero value when none is registered and never creates one.
type Resolver[T any] interface {
	Lookup(ptr Ptr) T
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc[T any] func(ptr Ptr) T

func (f ResolverFunc[T]) Lookup(ptr Ptr) T {
	return f(ptr)
}

func handlePtr(h any) Ptr {
	if isNil(h) {
		return 0
	}
	if hh, ok := h.(Handle); ok {
		return hh.NativePtr()
	}
	return 0
}

// livePtr returns the pointer of h, refusing handles whose object was
// destroyed even if the address now holds another object.
func livePtr(env *Env, h any) (Ptr, error) {
	ptr := handlePtr(h)
	if ptr == 0 {
		return 0, nil
	}
	if g, ok := h.(Generational); ok && !env.Native.Object.IsAlive(ptr, g.NativeSerial()) {
		return 0, errors.ObjectDestroyed(errors.PhaseToNative, ptr, "object")
	}
	return ptr, nil
}

// ObjectMarshaller stores object references as raw native pointers. Writing
// takes no lifetime action; reading only looks up existing wrappers.
type ObjectMarshaller[T Handle] struct {
	base
	resolve Resolver[T]
}

func Object[T Handle](env *Env, resolve Resolver[T]) *ObjectMarshaller[T] {
	return &ObjectMarshaller[T]{
		base:    base{env: env, id: native.TypeObject, size: 4, name: "object"},
		resolve: resolve,
	}
}

func (m *ObjectMarshaller[T]) ToNative(buf Ptr, index int, v T) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	ptr, err := livePtr(m.env, v)
	if err != nil {
		return err
	}
	return m.env.Mem.WriteU32(p, ptr)
}

// FromNative returns the registered wrapper or the zero value.
func (m *ObjectMarshaller[T]) FromNative(buf Ptr, index int) (T, error) {
	var zero T
	p, err := m.slot(buf, index)
	if err != nil {
		return zero, err
	}
	ptr, err := m.env.Mem.ReadU32(p)
	if err != nil || ptr == 0 {
		return zero, err
	}
	return m.resolve.Lookup(ptr), nil
}

// RawPointer reads the stored pointer without resolving it.
func (m *ObjectMarshaller[T]) RawPointer(buf Ptr, index int) (Ptr, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return 0, err
	}
	return m.env.Mem.ReadU32(p)
}

// InterfaceMarshaller stores {object, interface table} pairs. Reading
// resolves the object half and narrows the wrapper to I with a type
// assertion; an unsupported capability reads as the zero value.
type InterfaceMarshaller[I any, T Handle] struct {
	base
	resolve Resolver[T]
	iface   native.InterfaceID
}

func Interface[I any, T Handle](env *Env, iface native.InterfaceID, resolve Resolver[T]) *InterfaceMarshaller[I, T] {
	return &InterfaceMarshaller[I, T]{
		base:    base{env: env, id: native.TypeInterface, size: native.InterfaceSize, name: "interface"},
		resolve: resolve,
		iface:   iface,
	}
}

func (m *InterfaceMarshaller[I, T]) ToNative(buf Ptr, index int, v I) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	if isNil(v) {
		if err := m.env.Mem.WriteU32(p, 0); err != nil {
			return err
		}
		return m.env.Mem.WriteU32(p+4, 0)
	}
	if _, ok := any(v).(Handle); !ok {
		return errors.TypeMismatch(errors.PhaseToNative, nil, typeName(v), "interface")
	}
	obj, err := livePtr(m.env, v)
	if err != nil {
		return err
	}
	table, err := m.env.Native.Object.Interface(obj, m.iface)
	if err != nil {
		return err
	}
	if table == 0 {
		return errors.New(errors.PhaseToNative, errors.KindTypeMismatch).
			GoType(typeName(v)).
			NativeType("interface").
			Detail("object does not implement interface %d", m.iface).
			Build()
	}
	if err := m.env.Mem.WriteU32(p, obj); err != nil {
		return err
	}
	return m.env.Mem.WriteU32(p+4, table)
}

func (m *InterfaceMarshaller[I, T]) FromNative(buf Ptr, index int) (I, error) {
	var zero I
	p, err := m.slot(buf, index)
	if err != nil {
		return zero, err
	}
	obj, err := m.env.Mem.ReadU32(p)
	if err != nil || obj == 0 {
		return zero, err
	}
	w := m.resolve.Lookup(obj)
	if isNil(w) {
		return zero, nil
	}
	narrowed, ok := any(w).(I)
	if !ok {
		return zero, nil
	}
	return narrowed, nil
}
