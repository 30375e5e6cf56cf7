package marshal

import (
	"github.com/wippyai/nativebind/errors"
)

// Optional is a Go value that may be unset.
type Optional[T any] struct {
	value T
	set   bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

func (o Optional[T]) IsSet() bool {
	return o.set
}

// OrElse returns the value, or def when unset.
func (o Optional[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// OptionalMarshaller converts native optionals. Setting is two steps: the
// native side marks the cell set and returns the payload address, then the
// inner marshaller fills it.
type OptionalMarshaller[T any] struct {
	base
	inner Marshaller[T]
}

// OptionalOf registers the optional type of inner's native type.
func OptionalOf[T any](env *Env, inner Marshaller[T]) (*OptionalMarshaller[T], error) {
	id, err := env.Native.Types.OptionalOf(inner.Type())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "register optional type")
	}
	b, err := newBase(env, id)
	if err != nil {
		return nil, err
	}
	if err := checkElement(env, b.name, inner.Size(), inner.Type()); err != nil {
		return nil, err
	}
	return &OptionalMarshaller[T]{base: b, inner: inner}, nil
}

func (m *OptionalMarshaller[T]) ToNative(buf Ptr, index int, v Optional[T]) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	if !v.set {
		return m.env.Native.Optional.MarkUnset(p, m.inner.Type())
	}
	payload, err := m.env.Native.Optional.MarkSetAndGetPointer(p, m.inner.Type())
	if err != nil {
		return err
	}
	return m.inner.ToNative(payload, 0, v.value)
}

// FromNative checks the set flag before touching the payload.
func (m *OptionalMarshaller[T]) FromNative(buf Ptr, index int) (Optional[T], error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return Optional[T]{}, err
	}
	set, err := m.env.Native.Optional.IsSet(p, m.inner.Type())
	if err != nil || !set {
		return Optional[T]{}, err
	}
	payload, err := m.env.Native.Optional.ValuePtr(p, m.inner.Type())
	if err != nil {
		return Optional[T]{}, err
	}
	v, err := m.inner.FromNative(payload, 0)
	if err != nil {
		return Optional[T]{}, err
	}
	return Some(v), nil
}

// IsSet reports the native flag of the slot.
func (m *OptionalMarshaller[T]) IsSet(buf Ptr, index int) (bool, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return false, err
	}
	return m.env.Native.Optional.IsSet(p, m.inner.Type())
}

// MarkUnset destroys any payload and clears the flag. Unset slots are left alone.
func (m *OptionalMarshaller[T]) MarkUnset(buf Ptr, index int) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	return m.env.Native.Optional.MarkUnset(p, m.inner.Type())
}
