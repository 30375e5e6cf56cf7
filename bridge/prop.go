package bridge

import (
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/marshal"
	"github.com/wippyai/nativebind/native"
)

// Prop is a typed accessor for one property of a class. Binding validates
// the marshaller against the native layout once; Get and Set only re-check
// that the object is alive.
type Prop[T any] struct {
	class *native.Class
	field native.Field
	m     marshal.Marshaller[T]
}

// BindProp binds the property name of cls to m.
func BindProp[T any](rt *Runtime, cls *native.Class, name string, m marshal.Marshaller[T]) (*Prop[T], error) {
	if cls == nil {
		return nil, errors.NilPointer(errors.PhaseRegister, nil, "class")
	}
	f, ok := cls.Property(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRegister, "property", cls.Name+"."+name)
	}
	info, err := rt.env.Native.Types.Info(f.Type)
	if err != nil {
		return nil, err
	}
	if f.Type != m.Type() {
		return nil, errors.New(errors.PhaseRegister, errors.KindTypeMismatch).
			Path(cls.Name, name).
			NativeType(info.Name).
			Detail("marshaller handles type %d, property is %d", m.Type(), f.Type).
			Build()
	}
	if m.Size() != info.Size {
		return nil, errors.SizeMismatch([]string{cls.Name, name}, info.Name, m.Size(), info.Size)
	}
	return &Prop[T]{class: cls, field: f, m: m}, nil
}

// Name returns the property name.
func (p *Prop[T]) Name() string { return p.field.Name }

func (p *Prop[T]) slot(o *Object) (Ptr, error) {
	if err := o.check(); err != nil {
		return 0, err
	}
	if o.class != p.class {
		return 0, errors.TypeMismatch(errors.PhaseRuntime, []string{p.class.Name, p.field.Name}, o.class.Name, p.class.Name)
	}
	return o.ptr + p.field.Offset, nil
}

// Get reads the property. Live views returned for container properties are
// bound to o and fail once o is destroyed.
func (p *Prop[T]) Get(o *Object) (T, error) {
	var zero T
	slot, err := p.slot(o)
	if err != nil {
		return zero, err
	}
	v, err := p.m.FromNative(slot, 0)
	if err != nil {
		return zero, err
	}
	if b, ok := any(v).(marshal.OwnerBinder); ok {
		b.BindOwner(o.ptr)
	}
	return v, nil
}

// Set writes the property.
func (p *Prop[T]) Set(o *Object, v T) error {
	slot, err := p.slot(o)
	if err != nil {
		return err
	}
	return p.m.ToNative(slot, 0, v)
}
