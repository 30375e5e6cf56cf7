package native

import (
	"hash/fnv"

	"github.com/wippyai/nativebind/errors"
)

// construct default-initializes a value in place. Every native default is all zero bytes.
func (e *Engine) construct(t *TypeInfo, p Ptr) error {
	a := e.acc()
	a.zero(p, t.Size)
	return a.err
}

// destroy releases whatever the value owns and leaves it zeroed.
func (e *Engine) destroy(t *TypeInfo, p Ptr) error {
	switch t.Kind {
	case KindString:
		return e.stringDestroy(p)
	case KindText:
		a := e.acc()
		cell := a.u32(p)
		a.setU32(p, 0)
		if a.err != nil {
			return a.err
		}
		if cell != 0 {
			return e.textRelease(cell)
		}
		return nil
	case KindArray, KindMulticast:
		return e.arrayEmpty(p, t.Elem)
	case KindMap, KindSet:
		return e.sparseEmpty(p, t)
	case KindOptional:
		return e.optionalUnset(p, t.Elem)
	case KindStruct:
		for _, f := range t.Fields {
			ft, err := e.types.get(f.Type)
			if err != nil {
				return err
			}
			if err := e.destroy(ft, p+f.Offset); err != nil {
				return err
			}
		}
		return nil
	case KindInstanced:
		return e.instancedReset(p)
	default:
		return e.construct(t, p)
	}
}

// copyValue assigns src to dst with deep-copy semantics, releasing what dst held.
func (e *Engine) copyValue(t *TypeInfo, dst, src Ptr) error {
	if dst == src {
		return nil
	}
	switch t.Kind {
	case KindString:
		units, err := e.stringUnits(src)
		if err != nil {
			return err
		}
		return e.stringAssign(dst, units)
	case KindText:
		a := e.acc()
		cell := a.u32(src)
		old := a.u32(dst)
		if a.err != nil {
			return a.err
		}
		if cell != 0 {
			if err := e.textAddRef(cell); err != nil {
				return err
			}
		}
		a.setU32(dst, cell)
		if a.err != nil {
			return a.err
		}
		if old != 0 {
			return e.textRelease(old)
		}
		return nil
	case KindArray, KindMulticast:
		return e.arrayCopy(dst, src, t.Elem)
	case KindMap, KindSet:
		return e.sparseCopy(dst, src, t)
	case KindOptional:
		return e.optionalCopy(dst, src, t.Elem)
	case KindStruct:
		for _, f := range t.Fields {
			ft, err := e.types.get(f.Type)
			if err != nil {
				return err
			}
			if err := e.copyValue(ft, dst+f.Offset, src+f.Offset); err != nil {
				return err
			}
		}
		return nil
	case KindInstanced:
		return e.instancedCopy(dst, src)
	default:
		a := e.acc()
		a.move(dst, src, t.Size)
		return a.err
	}
}

// hashValue is the native hash used for set and map bucketing.
func (e *Engine) hashValue(t *TypeInfo, p Ptr) (uint32, error) {
	h := fnv.New32a()
	if err := e.hashInto(h, t, p); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

type hashWriter interface {
	Write(p []byte) (int, error)
}

func (e *Engine) hashInto(h hashWriter, t *TypeInfo, p Ptr) error {
	a := e.acc()
	switch t.Kind {
	case KindString:
		data := a.u32(p)
		num := a.u32(p + 4)
		if a.err != nil {
			return a.err
		}
		if data != 0 && num > 1 {
			_, _ = h.Write(a.bytes(data, (num-1)*2))
		}
		return a.err
	case KindBool:
		b := a.u8(p)
		if b != 0 {
			b = 1
		}
		_, _ = h.Write([]byte{b})
		return a.err
	case KindInterface:
		_, _ = h.Write(a.bytes(p, 4))
		return a.err
	case KindStruct:
		for _, f := range t.Fields {
			ft, err := e.types.get(f.Type)
			if err != nil {
				return err
			}
			if err := e.hashInto(h, ft, p+f.Offset); err != nil {
				return err
			}
		}
		return nil
	default:
		if !hashable(t) {
			return errors.InvalidInput(errors.PhaseNative, t.Name+" is not hashable")
		}
		_, _ = h.Write(a.bytes(p, t.Size))
		return a.err
	}
}

// equalValue is the native equality used for set and map lookups.
func (e *Engine) equalValue(t *TypeInfo, x, y Ptr) (bool, error) {
	if x == y {
		return true, nil
	}
	switch t.Kind {
	case KindString:
		xs, err := e.stringUnits(x)
		if err != nil {
			return false, err
		}
		ys, err := e.stringUnits(y)
		if err != nil {
			return false, err
		}
		if len(xs) != len(ys) {
			return false, nil
		}
		for i := range xs {
			if xs[i] != ys[i] {
				return false, nil
			}
		}
		return true, nil
	case KindInterface:
		a := e.acc()
		eq := a.u32(x) == a.u32(y)
		return eq, a.err
	case KindStruct:
		for _, f := range t.Fields {
			ft, err := e.types.get(f.Type)
			if err != nil {
				return false, err
			}
			eq, err := e.equalValue(ft, x+f.Offset, y+f.Offset)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	default:
		if !hashable(t) {
			return false, errors.InvalidInput(errors.PhaseNative, t.Name+" is not comparable")
		}
		a := e.acc()
		xb := a.bytes(x, t.Size)
		yb := a.bytes(y, t.Size)
		if a.err != nil {
			return false, a.err
		}
		if t.Kind == KindBool {
			return (xb[0] != 0) == (yb[0] != 0), nil
		}
		return string(xb) == string(yb), nil
	}
}
