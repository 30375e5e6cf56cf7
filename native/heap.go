package native

import (
	"go.uber.org/zap"

	nativebind "github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/errors"
)

const (
	heapBase   = 16 // keeps zero as the null pointer
	blockAlign = 8
	poisonByte = 0xDD
)

// HeapStats describes allocator activity.
type HeapStats struct {
	Allocs    uint64
	Frees     uint64
	LiveCount int
	LiveBytes uint64
	Top       uint32
}

// Heap is a size-class free-list allocator over a growable native memory.
// Fresh blocks are zero-filled.
type Heap struct {
	mem    nativebind.GrowableMemory
	free   map[uint32][]Ptr
	live   map[Ptr]uint32
	top    uint32
	poison bool
	allocs uint64
	frees  uint64
}

// NewHeap creates an allocator over mem.
func NewHeap(mem nativebind.GrowableMemory, poison bool) *Heap {
	return &Heap{
		mem:    mem,
		free:   make(map[uint32][]Ptr),
		live:   make(map[Ptr]uint32),
		top:    heapBase,
		poison: poison,
	}
}

// Alloc returns a zeroed block of at least size bytes.
func (h *Heap) Alloc(size, align uint32) (Ptr, error) {
	if size == 0 {
		size = 1
	}
	class := alignTo(size, blockAlign)
	if class < size {
		return 0, errors.AllocationFailed(errors.PhaseNative, size, align)
	}

	if align <= blockAlign {
		if list := h.free[class]; len(list) > 0 {
			p := list[len(list)-1]
			h.free[class] = list[:len(list)-1]
			a := &access{m: h.mem}
			a.zero(p, class)
			if a.err != nil {
				return 0, a.err
			}
			h.live[p] = class
			h.allocs++
			return p, nil
		}
	}

	if align < blockAlign {
		align = blockAlign
	}
	p := alignTo(h.top, align)
	end := uint64(p) + uint64(class)
	if err := h.ensure(end); err != nil {
		return 0, err
	}
	h.top = uint32(end)
	h.live[p] = class
	h.allocs++
	return p, nil
}

// Free returns a block to its size class. Unknown pointers are logged and ignored.
func (h *Heap) Free(ptr, size, align uint32) {
	if ptr == 0 {
		return
	}
	class, ok := h.live[ptr]
	if !ok {
		Logger().Error("free of unknown native block",
			zap.Uint32("ptr", ptr), zap.Uint32("size", size))
		return
	}
	delete(h.live, ptr)
	h.frees++

	if h.poison {
		a := &access{m: h.mem}
		a.fill(ptr, class, poisonByte)
	}
	h.free[class] = append(h.free[class], ptr)
}

// BlockSize returns the usable size of a live block.
func (h *Heap) BlockSize(ptr Ptr) (uint32, bool) {
	class, ok := h.live[ptr]
	return class, ok
}

// Stats reports allocation counters.
func (h *Heap) Stats() HeapStats {
	s := HeapStats{
		Allocs:    h.allocs,
		Frees:     h.frees,
		LiveCount: len(h.live),
		Top:       h.top,
	}
	for _, class := range h.live {
		s.LiveBytes += uint64(class)
	}
	return s
}

func (h *Heap) ensure(end uint64) error {
	size := uint64(h.mem.Size())
	if end <= size {
		return nil
	}
	need := (end - size + nativebind.PageSize - 1) / nativebind.PageSize
	if _, ok := h.mem.Grow(uint32(need)); !ok {
		return errors.New(errors.PhaseNative, errors.KindAllocation).
			Detail("heap cannot grow by %d pages", need).
			Build()
	}
	return nil
}
