package marshal

import (
	"github.com/wippyai/nativebind/errors"
)

type mapCore[K comparable, V any] struct {
	sparse
	key   Marshaller[K]
	value Marshaller[V]
}

func newMapCore[K comparable, V any](env *Env, key Marshaller[K], value Marshaller[V]) (base, mapCore[K, V], error) {
	id, err := env.Native.Types.MapOf(key.Type(), value.Type())
	if err != nil {
		return base{}, mapCore[K, V]{}, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "register map type")
	}
	b, err := newBase(env, id)
	if err != nil {
		return base{}, mapCore[K, V]{}, err
	}
	if err := checkElement(env, b.name+".key", key.Size(), key.Type()); err != nil {
		return base{}, mapCore[K, V]{}, err
	}
	if err := checkElement(env, b.name+".value", value.Size(), value.Type()); err != nil {
		return base{}, mapCore[K, V]{}, err
	}
	sp, err := newSparse(env, id)
	if err != nil {
		return base{}, mapCore[K, V]{}, err
	}
	return b, mapCore[K, V]{sparse: sp, key: key, value: value}, nil
}

func (c mapCore[K, V]) pair(k K, v V) func(Ptr) error {
	return func(p Ptr) error {
		if err := c.key.ToNative(p, 0, k); err != nil {
			return err
		}
		return c.value.ToNative(p+c.info.ValueOffset, 0, v)
	}
}

func (c mapCore[K, V]) keyWriter(k K) func(Ptr) error {
	return func(p Ptr) error {
		return c.key.ToNative(p, 0, k)
	}
}

func (c mapCore[K, V]) read(p Ptr) (K, V, error) {
	var v V
	k, err := c.key.FromNative(p, 0)
	if err != nil {
		return k, v, err
	}
	v, err = c.value.FromNative(p+c.info.ValueOffset, 0)
	return k, v, err
}

// MapMarshaller copies a native map to and from a Go map.
type MapMarshaller[K comparable, V any] struct {
	base
	core mapCore[K, V]
}

// Map registers the map type from key to value.
func Map[K comparable, V any](env *Env, key Marshaller[K], value Marshaller[V]) (*MapMarshaller[K, V], error) {
	b, core, err := newMapCore(env, key, value)
	if err != nil {
		return nil, err
	}
	return &MapMarshaller[K, V]{base: b, core: core}, nil
}

func (m *MapMarshaller[K, V]) FromNative(buf Ptr, index int) (map[K]V, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return nil, err
	}
	n, err := m.core.num(p)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, n)
	err = m.core.each(p, func(_ int, elem Ptr) (bool, error) {
		k, v, err := m.core.read(elem)
		if err != nil {
			return false, err
		}
		out[k] = v
		return true, nil
	})
	return out, err
}

// ToNative empties the native map and adds every entry of v.
func (m *MapMarshaller[K, V]) ToNative(buf Ptr, index int, v map[K]V) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	if err := m.core.empty(p); err != nil {
		return err
	}
	for k, val := range v {
		err := m.core.withElement(m.core.pair(k, val), func(pair Ptr) error {
			_, _, err := m.core.add(p, pair)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// MapView reads and writes a native map in place.
type MapView[K comparable, V any] struct {
	owned
	core     mapCore[K, V]
	slot     Ptr
	readOnly bool
}

func (m *MapView[K, V]) writable() error {
	if m.readOnly {
		return sparseReadOnly("map view")
	}
	return m.check()
}

// Ptr returns the native address of the map header.
func (m *MapView[K, V]) Ptr() Ptr {
	return m.slot
}

// Len returns the number of valid entries.
func (m *MapView[K, V]) Len() (int, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	return m.core.num(m.slot)
}

// MaxIndex bounds the sparse indices; it is at least Len.
func (m *MapView[K, V]) MaxIndex() (int, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	return m.core.maxIndex(m.slot)
}

func (m *MapView[K, V]) locate(k K) (int, error) {
	i := -1
	err := m.core.withElement(m.core.keyWriter(k), func(p Ptr) error {
		var err error
		i, err = m.core.find(m.slot, p)
		return err
	})
	return i, err
}

// Get returns the value for k and whether it was present.
func (m *MapView[K, V]) Get(k K) (V, bool, error) {
	var zero V
	if err := m.check(); err != nil {
		return zero, false, err
	}
	i, err := m.locate(k)
	if err != nil || i < 0 {
		return zero, false, err
	}
	_, valuePtr, err := m.core.env.Native.Map.PairPtr(m.slot, m.core.id, i)
	if err != nil {
		return zero, false, err
	}
	v, err := m.core.value.FromNative(valuePtr, 0)
	return v, err == nil, err
}

func (m *MapView[K, V]) Contains(k K) (bool, error) {
	if err := m.check(); err != nil {
		return false, err
	}
	i, err := m.locate(k)
	return i >= 0, err
}

// Add inserts a new entry. A present key is an invalid operation.
func (m *MapView[K, V]) Add(k K, v V) error {
	if err := m.writable(); err != nil {
		return err
	}
	return m.core.withElement(m.core.pair(k, v), func(pair Ptr) error {
		_, added, err := m.core.add(m.slot, pair)
		if err != nil {
			return err
		}
		if !added {
			return errors.InvalidOperation(errors.PhaseRuntime, "map key already present")
		}
		return nil
	})
}

// Set inserts k or overwrites its value.
func (m *MapView[K, V]) Set(k K, v V) error {
	if err := m.writable(); err != nil {
		return err
	}
	return m.core.withElement(m.core.pair(k, v), func(pair Ptr) error {
		i, added, err := m.core.add(m.slot, pair)
		if err != nil || added {
			return err
		}
		_, valuePtr, err := m.core.env.Native.Map.PairPtr(m.slot, m.core.id, i)
		if err != nil {
			return err
		}
		return m.core.value.ToNative(valuePtr, 0, v)
	})
}

// Remove deletes k, leaving a hole in the sparse storage.
func (m *MapView[K, V]) Remove(k K) (bool, error) {
	if err := m.writable(); err != nil {
		return false, err
	}
	removed := false
	err := m.core.withElement(m.core.keyWriter(k), func(p Ptr) error {
		var err error
		removed, err = m.core.remove(m.slot, p)
		return err
	})
	return removed, err
}

func (m *MapView[K, V]) Clear() error {
	if err := m.writable(); err != nil {
		return err
	}
	return m.core.empty(m.slot)
}

// Range visits entries in native slot order until fn returns false. The order
// is not stable across mutations.
func (m *MapView[K, V]) Range(fn func(k K, v V) bool) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.core.each(m.slot, func(_ int, elem Ptr) (bool, error) {
		k, v, err := m.core.read(elem)
		if err != nil {
			return false, err
		}
		return fn(k, v), nil
	})
}

// MapViewMarshaller hands out live views over map slots.
type MapViewMarshaller[K comparable, V any] struct {
	base
	core     mapCore[K, V]
	readOnly bool
}

// MapViews registers the map type from key to value.
func MapViews[K comparable, V any](env *Env, key Marshaller[K], value Marshaller[V], readOnly bool) (*MapViewMarshaller[K, V], error) {
	b, core, err := newMapCore(env, key, value)
	if err != nil {
		return nil, err
	}
	return &MapViewMarshaller[K, V]{base: b, core: core, readOnly: readOnly}, nil
}

// View wraps the map header at p.
func (m *MapViewMarshaller[K, V]) View(p Ptr) *MapView[K, V] {
	return &MapView[K, V]{owned: owned{env: m.env}, core: m.core, slot: p, readOnly: m.readOnly}
}

func (m *MapViewMarshaller[K, V]) FromNative(buf Ptr, index int) (*MapView[K, V], error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return nil, err
	}
	return m.View(p), nil
}

// ToNative copies v into the slot; nil empties it.
func (m *MapViewMarshaller[K, V]) ToNative(buf Ptr, index int, v *MapView[K, V]) error {
	if m.readOnly {
		return sparseReadOnly("map view")
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
