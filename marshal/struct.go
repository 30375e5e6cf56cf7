package marshal

import (
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/native"
)

// FieldBinding maps one member of a Go struct T to a native struct field.
type FieldBinding[T any] interface {
	name() string
	bind(env *Env, info *native.TypeInfo) error
	toNative(p Ptr, v *T) error
	fromNative(p Ptr, v *T) error
}

type field[T, F any] struct {
	fieldName string
	m         Marshaller[F]
	get       func(*T) *F
	offset    uint32
}

// Field binds the native field named name, marshalled by m, to the Go
// member returned by get.
func Field[T, F any](name string, m Marshaller[F], get func(*T) *F) FieldBinding[T] {
	return &field[T, F]{fieldName: name, m: m, get: get}
}

func (f *field[T, F]) name() string {
	return f.fieldName
}

// bind takes the offset from the native layout and checks the field type.
func (f *field[T, F]) bind(env *Env, info *native.TypeInfo) error {
	nf, ok := info.Field(f.fieldName)
	if !ok {
		return errors.New(errors.PhaseRegister, errors.KindNotFound).
			Path(info.Name, f.fieldName).
			Detail("native struct has no such field").
			Build()
	}
	if nf.Type != f.m.Type() {
		ft, _ := env.Native.Types.Info(nf.Type)
		name := "unknown"
		if ft != nil {
			name = ft.Name
		}
		return errors.TypeMismatch(errors.PhaseRegister, []string{info.Name, f.fieldName}, typeName(*new(F)), name)
	}
	if err := checkElement(env, info.Name+"."+f.fieldName, f.m.Size(), nf.Type); err != nil {
		return err
	}
	f.offset = nf.Offset
	return nil
}

func (f *field[T, F]) toNative(p Ptr, v *T) error {
	return f.m.ToNative(p+f.offset, 0, *f.get(v))
}

func (f *field[T, F]) fromNative(p Ptr, v *T) error {
	val, err := f.m.FromNative(p+f.offset, 0)
	if err != nil {
		return err
	}
	*f.get(v) = val
	return nil
}

// StructMarshaller converts a fixed-layout native struct field by field.
// Nested containers compose through their own marshallers.
type StructMarshaller[T any] struct {
	base
	fields []FieldBinding[T]
}

// Struct binds fields against the native struct type id. Offsets come from
// the native layout; unbound native fields are left untouched.
func Struct[T any](env *Env, id native.TypeID, fields ...FieldBinding[T]) (*StructMarshaller[T], error) {
	b, err := newBase(env, id)
	if err != nil {
		return nil, err
	}
	info, err := env.Native.Types.Info(id)
	if err != nil {
		return nil, err
	}
	if info.Kind != native.KindStruct {
		return nil, errors.TypeMismatch(errors.PhaseRegister, []string{info.Name}, typeName(*new(T)), info.Kind.String())
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.name()] {
			return nil, errors.InvalidInput(errors.PhaseRegister, "field "+f.name()+" bound twice")
		}
		seen[f.name()] = true
		if err := f.bind(env, info); err != nil {
			return nil, err
		}
	}
	return &StructMarshaller[T]{base: b, fields: fields}, nil
}

func (m *StructMarshaller[T]) ToNative(buf Ptr, index int, v T) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	for _, f := range m.fields {
		if err := f.toNative(p, &v); err != nil {
			return errors.New(errors.PhaseToNative, errors.KindInvalidData).
				Path(m.name, f.name()).
				Cause(err).
				Build()
		}
	}
	return nil
}

func (m *StructMarshaller[T]) FromNative(buf Ptr, index int) (T, error) {
	var v T
	p, err := m.slot(buf, index)
	if err != nil {
		return v, err
	}
	for _, f := range m.fields {
		if err := f.fromNative(p, &v); err != nil {
			return v, errors.New(errors.PhaseFromNative, errors.KindInvalidData).
				Path(m.name, f.name()).
				Cause(err).
				Build()
		}
	}
	return v, nil
}
