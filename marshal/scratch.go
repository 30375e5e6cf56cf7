package marshal

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/native"
)

type allocation struct {
	ptr   Ptr
	size  uint32
	align uint32
	typ   native.TypeID
}

// Scratch tracks short-lived native buffers used while a single call runs.
// Release destroys typed values and frees everything it tracked.
type Scratch struct {
	env         *Env
	allocations []allocation
}

var scratchPool = sync.Pool{
	New: func() any {
		return &Scratch{allocations: make([]allocation, 0, 8)}
	},
}

const maxPooledScratchCapacity = 128

// NewScratch takes a scratch list from the pool.
func NewScratch(env *Env) *Scratch {
	s := scratchPool.Get().(*Scratch)
	s.env = env
	return s
}

// Alloc returns an untyped zeroed buffer.
func (s *Scratch) Alloc(size, align uint32) (Ptr, error) {
	p, err := s.env.Native.Memory.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	s.allocations = append(s.allocations, allocation{ptr: p, size: size, align: align})
	return p, nil
}

// Value returns a default-initialized native value of type id that is
// destroyed on Release.
func (s *Scratch) Value(id native.TypeID) (Ptr, error) {
	info, err := s.env.Native.Types.Info(id)
	if err != nil {
		return 0, err
	}
	p, err := s.env.Native.Memory.Alloc(info.Size, info.Align)
	if err != nil {
		return 0, err
	}
	s.allocations = append(s.allocations, allocation{ptr: p, size: info.Size, align: info.Align, typ: id})
	return p, nil
}

// Count returns the number of tracked buffers.
func (s *Scratch) Count() int {
	return len(s.allocations)
}

// Release frees every buffer in reverse order and returns the list to the pool.
// The list is invalid afterwards.
func (s *Scratch) Release() {
	for i := len(s.allocations) - 1; i >= 0; i-- {
		a := s.allocations[i]
		if a.typ != 0 {
			if err := s.env.Native.Types.Destroy(a.typ, a.ptr); err != nil {
				Logger().Error("destroy scratch value", zap.Uint32("ptr", a.ptr), zap.Error(err))
			}
		}
		s.env.Native.Memory.Free(a.ptr, a.size, a.align)
	}
	s.allocations = s.allocations[:0]
	s.env = nil
	if cap(s.allocations) > maxPooledScratchCapacity {
		return
	}
	scratchPool.Put(s)
}
