package marshal

import (
	"github.com/wippyai/nativebind/errors"
)

type setCore[T comparable] struct {
	sparse
	elem Marshaller[T]
}

func newSetCore[T comparable](env *Env, elem Marshaller[T]) (base, setCore[T], error) {
	id, err := env.Native.Types.SetOf(elem.Type())
	if err != nil {
		return base{}, setCore[T]{}, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "register set type")
	}
	b, err := newBase(env, id)
	if err != nil {
		return base{}, setCore[T]{}, err
	}
	if err := checkElement(env, b.name, elem.Size(), elem.Type()); err != nil {
		return base{}, setCore[T]{}, err
	}
	sp, err := newSparse(env, id)
	if err != nil {
		return base{}, setCore[T]{}, err
	}
	return b, setCore[T]{sparse: sp, elem: elem}, nil
}

func (c setCore[T]) fill(v T) func(Ptr) error {
	return func(p Ptr) error {
		return c.elem.ToNative(p, 0, v)
	}
}

// SetMarshaller copies a native set to and from a Go set.
type SetMarshaller[T comparable] struct {
	base
	core setCore[T]
}

// Set registers the set type of elem's native type.
func Set[T comparable](env *Env, elem Marshaller[T]) (*SetMarshaller[T], error) {
	b, core, err := newSetCore(env, elem)
	if err != nil {
		return nil, err
	}
	return &SetMarshaller[T]{base: b, core: core}, nil
}

func (m *SetMarshaller[T]) FromNative(buf Ptr, index int) (map[T]struct{}, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return nil, err
	}
	n, err := m.core.num(p)
	if err != nil {
		return nil, err
	}
	out := make(map[T]struct{}, n)
	err = m.core.each(p, func(_ int, elem Ptr) (bool, error) {
		v, err := m.core.elem.FromNative(elem, 0)
		if err != nil {
			return false, err
		}
		out[v] = struct{}{}
		return true, nil
	})
	return out, err
}

// ToNative empties the native set and adds every member of v.
func (m *SetMarshaller[T]) ToNative(buf Ptr, index int, v map[T]struct{}) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	if err := m.core.empty(p); err != nil {
		return err
	}
	for member := range v {
		err := m.core.withElement(m.core.fill(member), func(e Ptr) error {
			_, _, err := m.core.add(p, e)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SetView reads and writes a native set in place.
type SetView[T comparable] struct {
	owned
	core     setCore[T]
	slot     Ptr
	readOnly bool
}

func (s *SetView[T]) writable() error {
	if s.readOnly {
		return sparseReadOnly("set view")
	}
	return s.check()
}

// Ptr returns the native address of the set header.
func (s *SetView[T]) Ptr() Ptr {
	return s.slot
}

func (s *SetView[T]) Len() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.core.num(s.slot)
}

func (s *SetView[T]) MaxIndex() (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.core.maxIndex(s.slot)
}

// Add inserts v and reports whether it was new.
func (s *SetView[T]) Add(v T) (bool, error) {
	if err := s.writable(); err != nil {
		return false, err
	}
	added := false
	err := s.core.withElement(s.core.fill(v), func(p Ptr) error {
		var err error
		_, added, err = s.core.add(s.slot, p)
		return err
	})
	return added, err
}

func (s *SetView[T]) Contains(v T) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	i := -1
	err := s.core.withElement(s.core.fill(v), func(p Ptr) error {
		var err error
		i, err = s.core.find(s.slot, p)
		return err
	})
	return i >= 0, err
}

// Remove deletes v, leaving a hole in the sparse storage.
func (s *SetView[T]) Remove(v T) (bool, error) {
	if err := s.writable(); err != nil {
		return false, err
	}
	removed := false
	err := s.core.withElement(s.core.fill(v), func(p Ptr) error {
		var err error
		removed, err = s.core.remove(s.slot, p)
		return err
	})
	return removed, err
}

func (s *SetView[T]) Clear() error {
	if err := s.writable(); err != nil {
		return err
	}
	return s.core.empty(s.slot)
}

// Range visits members in native slot order until fn returns false.
func (s *SetView[T]) Range(fn func(v T) bool) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.core.each(s.slot, func(_ int, elem Ptr) (bool, error) {
		v, err := s.core.elem.FromNative(elem, 0)
		if err != nil {
			return false, err
		}
		return fn(v), nil
	})
}

// SetViewMarshaller hands out live views over set slots.
type SetViewMarshaller[T comparable] struct {
	base
	core     setCore[T]
	readOnly bool
}

// SetViews registers the set type of elem's native type.
func SetViews[T comparable](env *Env, elem Marshaller[T], readOnly bool) (*SetViewMarshaller[T], error) {
	b, core, err := newSetCore(env, elem)
	if err != nil {
		return nil, err
	}
	return &SetViewMarshaller[T]{base: b, core: core, readOnly: readOnly}, nil
}

// View wraps the set header at p.
func (m *SetViewMarshaller[T]) View(p Ptr) *SetView[T] {
	return &SetView[T]{owned: owned{env: m.env}, core: m.core, slot: p, readOnly: m.readOnly}
}

func (m *SetViewMarshaller[T]) FromNative(buf Ptr, index int) (*SetView[T], error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return nil, err
	}
	return m.View(p), nil
}

func (m *SetViewMarshaller[T]) ToNative(buf Ptr, index int, v *SetView[T]) error {
	if m.readOnly {
		return sparseReadOnly("set view")
	}
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	if v == nil {
		return m.core.empty(p)
	}
	if err := v.check(); err != nil {
		return err
	}
	return m.env.Native.Types.Copy(m.id, p, v.slot)
}
