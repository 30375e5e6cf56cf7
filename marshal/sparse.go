package marshal

import (
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/native"
)

// sparse is the shared machinery of set and map marshallers. Elements are
// located with the native hash and equality of the key type so bucketing
// always matches what the native container used on insert.
type sparse struct {
	env    *Env
	id     native.TypeID // container
	elemID native.TypeID // set element or map pair
	keyID  native.TypeID
	info   *native.TypeInfo
	elem   *native.TypeInfo
}

func newSparse(env *Env, id native.TypeID) (sparse, error) {
	info, err := env.Native.Types.Info(id)
	if err != nil {
		return sparse{}, err
	}
	elem, err := env.Native.Types.Info(info.Elem)
	if err != nil {
		return sparse{}, err
	}
	key := info.Elem
	if info.Kind == native.KindMap {
		key = info.Key
	}
	return sparse{env: env, id: id, elemID: info.Elem, keyID: key, info: info, elem: elem}, nil
}

func (s sparse) callbacks() native.SparseCallbacks {
	types := s.env.Native.Types
	return native.SparseCallbacks{
		Hash: func(p Ptr) (uint32, error) {
			return types.Hash(s.keyID, p)
		},
		Equals: func(stored, candidate Ptr) (bool, error) {
			return types.Equal(s.keyID, stored, candidate)
		},
		Construct: func(dst, src Ptr) error {
			return types.Copy(s.elemID, dst, src)
		},
	}
}

// find returns the index of the element whose key equals the native key at key, or -1.
func (s sparse) find(container, key Ptr) (int, error) {
	hash, err := s.env.Native.Types.Hash(s.keyID, key)
	if err != nil {
		return -1, err
	}
	return s.env.Native.Sparse.FindIndex(container, s.id, hash, func(slot Ptr) (bool, error) {
		return s.env.Native.Types.Equal(s.keyID, slot, key)
	})
}

// withElement fills a scratch element with fill and runs fn on it.
func (s sparse) withElement(fill func(p Ptr) error, fn func(p Ptr) error) error {
	scratch := NewScratch(s.env)
	defer scratch.Release()
	p, err := scratch.Value(s.elemID)
	if err != nil {
		return err
	}
	if err := fill(p); err != nil {
		return err
	}
	return fn(p)
}

// add inserts the element at src unless its key is present.
func (s sparse) add(container, src Ptr) (int, bool, error) {
	return s.env.Native.Sparse.Add(container, s.id, s.callbacks(), src)
}

// each visits valid indices only. The max index is re-read every step.
func (s sparse) each(container Ptr, fn func(index int, elem Ptr) (bool, error)) error {
	sp := s.env.Native.Sparse
	for i := 0; ; i++ {
		maxIndex, err := sp.MaxIndex(container)
		if err != nil {
			return err
		}
		if i >= maxIndex {
			return nil
		}
		valid, err := sp.IsValidIndex(container, i)
		if err != nil {
			return err
		}
		if !valid {
			continue
		}
		p, err := sp.ElementPtr(container, s.id, i)
		if err != nil {
			return err
		}
		more, err := fn(i, p)
		if err != nil || !more {
			return err
		}
	}
}

func (s sparse) empty(container Ptr) error {
	return s.env.Native.Sparse.Empty(container, s.id)
}

func (s sparse) num(container Ptr) (int, error) {
	return s.env.Native.Sparse.Num(container)
}

func (s sparse) maxIndex(container Ptr) (int, error) {
	return s.env.Native.Sparse.MaxIndex(container)
}

func (s sparse) remove(container, key Ptr) (bool, error) {
	i, err := s.find(container, key)
	if err != nil || i < 0 {
		return false, err
	}
	return true, s.env.Native.Sparse.RemoveAt(container, s.id, i)
}

func sparseReadOnly(what string) error {
	return errors.ReadOnly(errors.PhaseRuntime, what)
}
