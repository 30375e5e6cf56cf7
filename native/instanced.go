package native

import (
	"github.com/wippyai/nativebind/errors"
)

// Instanced struct: {struct type u32, memory u32}.
const (
	instType   = 0
	instMemory = 4
)

func (e *Engine) instancedGet(p Ptr) (TypeID, Ptr, error) {
	a := e.acc()
	t := TypeID(a.u32(p + instType))
	mem := a.u32(p + instMemory)
	return t, mem, a.err
}

// instancedInitializeAs resets p to hold a default-initialized value of st,
// then copies src into it when src is non-null.
func (e *Engine) instancedInitializeAs(p Ptr, st TypeID, src Ptr) error {
	t, err := e.types.get(st)
	if err != nil {
		return err
	}
	if t.Kind != KindStruct {
		return errors.TypeMismatch(errors.PhaseNative, nil, "", t.Name)
	}
	if err := e.instancedReset(p); err != nil {
		return err
	}
	mem, err := e.heap.Alloc(t.Size, t.Align)
	if err != nil {
		return err
	}
	if err := e.construct(t, mem); err != nil {
		e.heap.Free(mem, t.Size, t.Align)
		return err
	}
	if src != 0 {
		if err := e.copyValue(t, mem, src); err != nil {
			_ = e.destroy(t, mem)
			e.heap.Free(mem, t.Size, t.Align)
			return err
		}
	}
	a := e.acc()
	a.setU32(p+instType, uint32(st))
	a.setU32(p+instMemory, mem)
	return a.err
}

// instancedReset destroys the held value, frees its memory and leaves p empty.
func (e *Engine) instancedReset(p Ptr) error {
	st, mem, err := e.instancedGet(p)
	if err != nil {
		return err
	}
	if mem != 0 {
		t, err := e.types.get(st)
		if err != nil {
			return err
		}
		if err := e.destroy(t, mem); err != nil {
			return err
		}
		e.heap.Free(mem, t.Size, t.Align)
	}
	a := e.acc()
	a.zero(p, InstancedSize)
	return a.err
}

func (e *Engine) instancedCopy(dst, src Ptr) error {
	st, mem, err := e.instancedGet(src)
	if err != nil {
		return err
	}
	if mem == 0 {
		return e.instancedReset(dst)
	}
	return e.instancedInitializeAs(dst, st, mem)
}
