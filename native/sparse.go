package native

import (
	"github.com/wippyai/nativebind/errors"
)

// Sparse set and map header.
const (
	spData        = 0
	spFlags       = 4
	spMaxIndex    = 8
	spNum         = 12
	spCapacity    = 16
	spBuckets     = 20
	spBucketCount = 24
)

const minBuckets = 8

// SparseCallbacks bucket and construct elements of a sparse container.
// They are supplied by the caller so the container never hashes on its own.
type SparseCallbacks struct {
	// Hash returns the bucketing hash of the element at p.
	Hash func(p Ptr) (uint32, error)
	// Equals compares a stored element with a candidate.
	Equals func(stored, candidate Ptr) (bool, error)
	// Construct initializes a freshly zeroed slot from src.
	Construct func(dst, src Ptr) error
}

type sparseHeader struct {
	data, flags, buckets Ptr
	maxIndex, num        int
	capacity             int
	bucketCount          int
}

func (e *Engine) sparseHeader(s Ptr) (sparseHeader, error) {
	a := e.acc()
	h := sparseHeader{
		data:        a.u32(s + spData),
		flags:       a.u32(s + spFlags),
		maxIndex:    int(a.i32(s + spMaxIndex)),
		num:         int(a.i32(s + spNum)),
		capacity:    int(a.i32(s + spCapacity)),
		buckets:     a.u32(s + spBuckets),
		bucketCount: int(a.i32(s + spBucketCount)),
	}
	return h, a.err
}

func (e *Engine) sparseType(t TypeID) (*TypeInfo, error) {
	st, err := e.types.get(t)
	if err != nil {
		return nil, err
	}
	if st.Kind != KindSet && st.Kind != KindMap {
		return nil, errors.TypeMismatch(errors.PhaseNative, nil, "", st.Name)
	}
	return st, nil
}

func flagsBytes(capacity int) uint32 {
	return alignTo(uint32(capacity+7)/8, 4)
}

func (e *Engine) sparseIsValid(s Ptr, index int) (bool, error) {
	h, err := e.sparseHeader(s)
	if err != nil {
		return false, err
	}
	return e.bitSet(h, index)
}

func (e *Engine) bitSet(h sparseHeader, index int) (bool, error) {
	if index < 0 || index >= h.maxIndex {
		return false, nil
	}
	a := e.acc()
	b := a.u8(h.flags + uint32(index/8))
	return b&(1<<(index%8)) != 0, a.err
}

func (e *Engine) setBit(h sparseHeader, index int, on bool) error {
	a := e.acc()
	at := h.flags + uint32(index/8)
	b := a.u8(at)
	if on {
		b |= 1 << (index % 8)
	} else {
		b &^= 1 << (index % 8)
	}
	a.setU8(at, b)
	return a.err
}

func (e *Engine) sparseElementPtr(s Ptr, t TypeID, index int) (Ptr, error) {
	st, err := e.sparseType(t)
	if err != nil {
		return 0, err
	}
	h, err := e.sparseHeader(s)
	if err != nil {
		return 0, err
	}
	valid, err := e.bitSet(h, index)
	if err != nil {
		return 0, err
	}
	if !valid {
		return 0, errors.InvalidInput(errors.PhaseNative, "sparse index is not valid")
	}
	return h.data + uint32(index)*st.SlotStride, nil
}

// sparseFind walks the bucket chain for hash.
func (e *Engine) sparseFind(s Ptr, st *TypeInfo, hash uint32, eq func(Ptr) (bool, error)) (int, error) {
	h, err := e.sparseHeader(s)
	if err != nil {
		return -1, err
	}
	if h.bucketCount == 0 {
		return -1, nil
	}
	a := e.acc()
	i := int(a.i32(h.buckets + 4*(hash&uint32(h.bucketCount-1))))
	for i >= 0 && a.err == nil {
		slot := h.data + uint32(i)*st.SlotStride
		if a.u32(slot+st.LinkOffset+4) == hash {
			ok, err := eq(slot)
			if err != nil {
				return -1, err
			}
			if ok {
				return i, nil
			}
		}
		i = int(a.i32(slot + st.LinkOffset))
	}
	return -1, a.err
}

func (e *Engine) sparseFindIndex(s Ptr, t TypeID, hash uint32, eq func(Ptr) (bool, error)) (int, error) {
	st, err := e.sparseType(t)
	if err != nil {
		return -1, err
	}
	return e.sparseFind(s, st, hash, eq)
}

func (e *Engine) sparseGrow(s Ptr, st *TypeInfo, h sparseHeader) error {
	newCap := max(4, h.capacity*2)
	data, err := e.heap.Alloc(uint32(newCap)*st.SlotStride, 8)
	if err != nil {
		return err
	}
	flags, err := e.heap.Alloc(flagsBytes(newCap), 4)
	if err != nil {
		e.heap.Free(data, uint32(newCap)*st.SlotStride, 8)
		return err
	}
	a := e.acc()
	if h.data != 0 {
		a.move(data, h.data, uint32(h.capacity)*st.SlotStride)
		a.move(flags, h.flags, flagsBytes(h.capacity))
		if a.err != nil {
			return a.err
		}
		e.heap.Free(h.data, uint32(h.capacity)*st.SlotStride, 8)
		e.heap.Free(h.flags, flagsBytes(h.capacity), 4)
	}
	a.setU32(s+spData, data)
	a.setU32(s+spFlags, flags)
	a.setI32(s+spCapacity, int32(newCap))
	return a.err
}

// sparseRehash rebuilds the bucket table from the hashes stored in each slot.
func (e *Engine) sparseRehash(s Ptr, st *TypeInfo, count int) error {
	h, err := e.sparseHeader(s)
	if err != nil {
		return err
	}
	buckets, err := e.heap.Alloc(uint32(count)*4, 4)
	if err != nil {
		return err
	}
	a := e.acc()
	a.fill(buckets, uint32(count)*4, 0xFF)
	for i := 0; i < h.maxIndex && a.err == nil; i++ {
		valid, err := e.bitSet(h, i)
		if err != nil {
			return err
		}
		if !valid {
			continue
		}
		slot := h.data + uint32(i)*st.SlotStride
		b := buckets + 4*(a.u32(slot+st.LinkOffset+4)&uint32(count-1))
		a.setI32(slot+st.LinkOffset, a.i32(b))
		a.setI32(b, int32(i))
	}
	if a.err != nil {
		return a.err
	}
	if h.buckets != 0 {
		e.heap.Free(h.buckets, uint32(h.bucketCount)*4, 4)
	}
	a.setU32(s+spBuckets, buckets)
	a.setI32(s+spBucketCount, int32(count))
	return a.err
}

// sparseAdd finds src or inserts it into the first free slot. It returns the
// element index and whether a new element was constructed.
func (e *Engine) sparseAdd(s Ptr, t TypeID, cb SparseCallbacks, src Ptr) (int, bool, error) {
	st, err := e.sparseType(t)
	if err != nil {
		return -1, false, err
	}
	hash, err := cb.Hash(src)
	if err != nil {
		return -1, false, err
	}
	found, err := e.sparseFind(s, st, hash, func(slot Ptr) (bool, error) {
		return cb.Equals(slot, src)
	})
	if err != nil || found >= 0 {
		return found, false, err
	}

	h, err := e.sparseHeader(s)
	if err != nil {
		return -1, false, err
	}
	index := -1
	for i := 0; i < h.maxIndex; i++ {
		valid, err := e.bitSet(h, i)
		if err != nil {
			return -1, false, err
		}
		if !valid {
			index = i
			break
		}
	}
	if index < 0 {
		if h.maxIndex == h.capacity {
			if err := e.sparseGrow(s, st, h); err != nil {
				return -1, false, err
			}
		}
		index = h.maxIndex
		a := e.acc()
		a.setI32(s+spMaxIndex, int32(index+1))
		if a.err != nil {
			return -1, false, a.err
		}
	}

	h, err = e.sparseHeader(s)
	if err != nil {
		return -1, false, err
	}
	slot := h.data + uint32(index)*st.SlotStride
	a := e.acc()
	a.zero(slot, st.SlotStride)
	if a.err != nil {
		return -1, false, a.err
	}
	if err := cb.Construct(slot, src); err != nil {
		return -1, false, err
	}
	if err := e.setBit(h, index, true); err != nil {
		return -1, false, err
	}
	a.setU32(slot+st.LinkOffset+4, hash)
	a.setI32(s+spNum, int32(h.num+1))
	if a.err != nil {
		return -1, false, a.err
	}

	if h.num+1 > h.bucketCount {
		count := minBuckets
		for count < 2*(h.num+1) {
			count *= 2
		}
		return index, true, e.sparseRehash(s, st, count)
	}
	b := h.buckets + 4*(hash&uint32(h.bucketCount-1))
	a.setI32(slot+st.LinkOffset, a.i32(b))
	a.setI32(b, int32(index))
	return index, true, a.err
}

// sparseRemoveAt destroys the element in place and leaves a hole.
func (e *Engine) sparseRemoveAt(s Ptr, t TypeID, index int) error {
	st, err := e.sparseType(t)
	if err != nil {
		return err
	}
	h, err := e.sparseHeader(s)
	if err != nil {
		return err
	}
	valid, err := e.bitSet(h, index)
	if err != nil {
		return err
	}
	if !valid {
		return errors.OutOfBounds(errors.PhaseNative, nil, index, h.maxIndex)
	}

	a := e.acc()
	slot := h.data + uint32(index)*st.SlotStride
	hash := a.u32(slot + st.LinkOffset + 4)
	link := h.buckets + 4*(hash&uint32(h.bucketCount-1))
	for a.err == nil {
		cur := a.i32(link)
		if cur < 0 {
			return errors.InvalidData(errors.PhaseNative, nil, "sparse element missing from its bucket")
		}
		curSlot := h.data + uint32(cur)*st.SlotStride
		if int(cur) == index {
			a.setI32(link, a.i32(curSlot+st.LinkOffset))
			break
		}
		link = curSlot + st.LinkOffset
	}
	if a.err != nil {
		return a.err
	}

	et, err := e.types.get(st.Elem)
	if err != nil {
		return err
	}
	if err := e.destroy(et, slot); err != nil {
		return err
	}
	a.zero(slot, st.SlotStride)
	if err := e.setBit(h, index, false); err != nil {
		return err
	}
	a.setI32(s+spNum, int32(h.num-1))
	return a.err
}

// sparseEmpty destroys every element and frees all storage.
func (e *Engine) sparseEmpty(s Ptr, st *TypeInfo) error {
	h, err := e.sparseHeader(s)
	if err != nil {
		return err
	}
	et, err := e.types.get(st.Elem)
	if err != nil {
		return err
	}
	for i := 0; i < h.maxIndex; i++ {
		valid, err := e.bitSet(h, i)
		if err != nil {
			return err
		}
		if valid {
			if err := e.destroy(et, h.data+uint32(i)*st.SlotStride); err != nil {
				return err
			}
		}
	}
	if h.data != 0 {
		e.heap.Free(h.data, uint32(h.capacity)*st.SlotStride, 8)
		e.heap.Free(h.flags, flagsBytes(h.capacity), 4)
	}
	if h.buckets != 0 {
		e.heap.Free(h.buckets, uint32(h.bucketCount)*4, 4)
	}
	a := e.acc()
	a.zero(s, SparseHeaderSize)
	return a.err
}

func (e *Engine) sparseCopy(dst, src Ptr, st *TypeInfo) error {
	if err := e.sparseEmpty(dst, st); err != nil {
		return err
	}
	cb, err := e.nativeCallbacks(st)
	if err != nil {
		return err
	}
	h, err := e.sparseHeader(src)
	if err != nil {
		return err
	}
	for i := 0; i < h.maxIndex; i++ {
		valid, err := e.bitSet(h, i)
		if err != nil {
			return err
		}
		if !valid {
			continue
		}
		if _, _, err := e.sparseAdd(dst, st.ID, cb, h.data+uint32(i)*st.SlotStride); err != nil {
			return err
		}
		// sparseAdd may have reallocated dst only; src header is unchanged.
	}
	return nil
}

// nativeCallbacks builds callbacks from native type metadata, used when the
// engine copies containers on its own. Keys sit at offset zero of map pairs.
func (e *Engine) nativeCallbacks(st *TypeInfo) (SparseCallbacks, error) {
	keyID := st.Elem
	if st.Kind == KindMap {
		keyID = st.Key
	}
	kt, err := e.types.get(keyID)
	if err != nil {
		return SparseCallbacks{}, err
	}
	et, err := e.types.get(st.Elem)
	if err != nil {
		return SparseCallbacks{}, err
	}
	return SparseCallbacks{
		Hash: func(p Ptr) (uint32, error) { return e.hashValue(kt, p) },
		Equals: func(stored, candidate Ptr) (bool, error) {
			return e.equalValue(kt, stored, candidate)
		},
		Construct: func(dst, src Ptr) error { return e.copyValue(et, dst, src) },
	}, nil
}
