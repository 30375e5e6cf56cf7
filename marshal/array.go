package marshal

import (
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/marshal/internal/layout"
	"github.com/wippyai/nativebind/native"
)

// ArrayMarshaller copies a native dynamic array to and from a Go slice.
//
// ToNative always empties the native array and rebuilds it; unchanged
// elements are destroyed and reconstructed too.
type ArrayMarshaller[T any] struct {
	base
	elem Marshaller[T]
}

// Array registers the array type of elem's native type.
func Array[T any](env *Env, elem Marshaller[T]) (*ArrayMarshaller[T], error) {
	b, err := arrayBase(env, elem.Type(), elem.Size())
	if err != nil {
		return nil, err
	}
	return &ArrayMarshaller[T]{base: b, elem: elem}, nil
}

func arrayBase(env *Env, elem native.TypeID, size uint32) (base, error) {
	id, err := env.Native.Types.ArrayOf(elem)
	if err != nil {
		return base{}, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "register array type")
	}
	b, err := newBase(env, id)
	if err != nil {
		return base{}, err
	}
	if err := checkElement(env, b.name, size, elem); err != nil {
		return base{}, err
	}
	return b, nil
}

func (m *ArrayMarshaller[T]) FromNative(buf Ptr, index int) ([]T, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return nil, err
	}
	v, err := arrayView(m.env, p, m.elem.Size())
	if err != nil {
		return nil, err
	}
	out := make([]T, v.Count)
	for i := range out {
		if out[i], err = m.elem.FromNative(v.Base, i); err != nil {
			return nil, errors.Wrap(errors.PhaseFromNative, errors.KindInvalidData, err, "array element")
		}
	}
	return out, nil
}

func (m *ArrayMarshaller[T]) ToNative(buf Ptr, index int, v []T) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	arr := m.env.Native.Array
	elemID := m.elem.Type()
	if err := arr.Empty(p, elemID); err != nil {
		return err
	}
	if len(v) == 0 {
		return nil
	}
	if _, err := arr.AddUninitialized(p, elemID, len(v)); err != nil {
		return err
	}
	data, err := arr.Data(p)
	if err != nil {
		return err
	}
	for i := range v {
		if err := m.elem.ToNative(data, i, v[i]); err != nil {
			return err
		}
	}
	return nil
}

func arrayView(env *Env, arr Ptr, stride uint32) (layout.View, error) {
	num, err := env.Native.Array.Num(arr)
	if err != nil {
		return layout.View{}, err
	}
	data, err := env.Native.Array.Data(arr)
	if err != nil {
		return layout.View{}, err
	}
	return layout.NewView(data, stride, num)
}

// ArrayView reads and writes a native dynamic array in place. It keeps no
// state beyond the slot address: count and storage are re-read on every call.
type ArrayView[T any] struct {
	owned
	elem     Marshaller[T]
	slot     Ptr
	readOnly bool
}

// Ptr returns the native address of the array header.
func (a *ArrayView[T]) Ptr() Ptr {
	return a.slot
}

// ReadOnly reports whether writes are rejected.
func (a *ArrayView[T]) ReadOnly() bool {
	return a.readOnly
}

func (a *ArrayView[T]) view() (layout.View, error) {
	if err := a.check(); err != nil {
		return layout.View{}, err
	}
	return arrayView(a.env, a.slot, a.elem.Size())
}

func (a *ArrayView[T]) writable() error {
	if a.readOnly {
		return errors.ReadOnly(errors.PhaseRuntime, "array view")
	}
	return a.check()
}

// Len returns the current native element count.
func (a *ArrayView[T]) Len() (int, error) {
	v, err := a.view()
	return v.Count, err
}

func (a *ArrayView[T]) Get(i int) (T, error) {
	var zero T
	v, err := a.view()
	if err != nil {
		return zero, err
	}
	p, err := v.At(i)
	if err != nil {
		return zero, err
	}
	return a.elem.FromNative(p, 0)
}

func (a *ArrayView[T]) Set(i int, val T) error {
	if err := a.writable(); err != nil {
		return err
	}
	v, err := a.view()
	if err != nil {
		return err
	}
	p, err := v.At(i)
	if err != nil {
		return err
	}
	return a.elem.ToNative(p, 0, val)
}

// Add appends one native slot and writes val through it.
func (a *ArrayView[T]) Add(val T) (int, error) {
	if err := a.writable(); err != nil {
		return -1, err
	}
	arr := a.env.Native.Array
	i, err := arr.AddUninitialized(a.slot, a.elem.Type(), 1)
	if err != nil {
		return -1, err
	}
	data, err := arr.Data(a.slot)
	if err != nil {
		return -1, err
	}
	if err := a.elem.ToNative(data, i, val); err != nil {
		_ = arr.RemoveAt(a.slot, a.elem.Type(), i, 1)
		return -1, err
	}
	return i, nil
}

// Insert shifts elements at and after i up by one.
func (a *ArrayView[T]) Insert(i int, val T) error {
	if err := a.writable(); err != nil {
		return err
	}
	arr := a.env.Native.Array
	num, err := arr.Num(a.slot)
	if err != nil {
		return err
	}
	if i < 0 || i > num {
		return errors.OutOfBounds(errors.PhaseRuntime, nil, i, num)
	}
	if err := arr.InsertZeroed(a.slot, a.elem.Type(), i, 1); err != nil {
		return err
	}
	data, err := arr.Data(a.slot)
	if err != nil {
		return err
	}
	if err := a.elem.ToNative(data, i, val); err != nil {
		_ = arr.RemoveAt(a.slot, a.elem.Type(), i, 1)
		return err
	}
	return nil
}

// RemoveAt destroys element i and closes the gap.
func (a *ArrayView[T]) RemoveAt(i int) error {
	if err := a.writable(); err != nil {
		return err
	}
	num, err := a.env.Native.Array.Num(a.slot)
	if err != nil {
		return err
	}
	if i < 0 || i >= num {
		return errors.OutOfBounds(errors.PhaseRuntime, nil, i, num)
	}
	return a.env.Native.Array.RemoveAt(a.slot, a.elem.Type(), i, 1)
}

// Resize grows with default-initialized elements or destroys the tail.
func (a *ArrayView[T]) Resize(n int) error {
	if err := a.writable(); err != nil {
		return err
	}
	if n < 0 {
		return errors.InvalidInput(errors.PhaseRuntime, "negative array size")
	}
	return a.env.Native.Array.Resize(a.slot, a.elem.Type(), n)
}

func (a *ArrayView[T]) Clear() error {
	if err := a.writable(); err != nil {
		return err
	}
	return a.env.Native.Array.Empty(a.slot, a.elem.Type())
}

// Slice copies the current contents.
func (a *ArrayView[T]) Slice() ([]T, error) {
	v, err := a.view()
	if err != nil {
		return nil, err
	}
	out := make([]T, v.Count)
	for i := range out {
		if out[i], err = a.elem.FromNative(v.Base, i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Range calls fn for each element in native order until fn returns false.
// The count is re-read before every element, so fn may mutate the array.
func (a *ArrayView[T]) Range(fn func(i int, v T) bool) error {
	for i := 0; ; i++ {
		n, err := a.Len()
		if err != nil {
			return err
		}
		if i >= n {
			return nil
		}
		v, err := a.Get(i)
		if err != nil {
			return err
		}
		if !fn(i, v) {
			return nil
		}
	}
}

// ArrayViewMarshaller hands out live views over array slots.
type ArrayViewMarshaller[T any] struct {
	base
	elem     Marshaller[T]
	readOnly bool
}

// ArrayViews registers the array type of elem's native type.
func ArrayViews[T any](env *Env, elem Marshaller[T], readOnly bool) (*ArrayViewMarshaller[T], error) {
	b, err := arrayBase(env, elem.Type(), elem.Size())
	if err != nil {
		return nil, err
	}
	return &ArrayViewMarshaller[T]{base: b, elem: elem, readOnly: readOnly}, nil
}

// View wraps the array header at p.
func (m *ArrayViewMarshaller[T]) View(p Ptr) *ArrayView[T] {
	return &ArrayView[T]{owned: owned{env: m.env}, elem: m.elem, slot: p, readOnly: m.readOnly}
}

func (m *ArrayViewMarshaller[T]) FromNative(buf Ptr, index int) (*ArrayView[T], error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return nil, err
	}
	return m.View(p), nil
}

// ToNative copies the contents of v into the slot; nil empties it.
func (m *ArrayViewMarshaller[T]) ToNative(buf Ptr, index int, v *ArrayView[T]) error {
	if m.readOnly {
		return errors.ReadOnly(errors.PhaseToNative, "array view")
	}
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	if v == nil {
		return m.env.Native.Array.Empty(p, m.elem.Type())
	}
	if err := v.check(); err != nil {
		return err
	}
	return m.env.Native.Types.Copy(m.id, p, v.slot)
}
