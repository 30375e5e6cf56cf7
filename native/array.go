package native

import (
	"github.com/wippyai/nativebind/errors"
)

// Dynamic array header: {data u32, num i32, max i32}.
const (
	arrData = 0
	arrNum  = 4
	arrMax  = 8
)

func (e *Engine) arrayHeader(arr Ptr) (data Ptr, num, capacity int, err error) {
	a := e.acc()
	data = a.u32(arr + arrData)
	num = int(a.i32(arr + arrNum))
	capacity = int(a.i32(arr + arrMax))
	return data, num, capacity, a.err
}

func (e *Engine) arrayNum(arr Ptr) (int, error) {
	_, num, _, err := e.arrayHeader(arr)
	return num, err
}

func (e *Engine) arrayMax(arr Ptr) (int, error) {
	_, _, capacity, err := e.arrayHeader(arr)
	return capacity, err
}

func (e *Engine) arrayData(arr Ptr) (Ptr, error) {
	data, _, _, err := e.arrayHeader(arr)
	return data, err
}

// arrayReserve grows storage to hold at least need elements.
func (e *Engine) arrayReserve(arr Ptr, et *TypeInfo, need int) error {
	data, num, capacity, err := e.arrayHeader(arr)
	if err != nil {
		return err
	}
	if need <= capacity {
		return nil
	}
	newMax := max(4, capacity*2, need)
	size := uint32(newMax) * et.Size
	if et.Size != 0 && size/et.Size != uint32(newMax) {
		return errors.AllocationFailed(errors.PhaseNative, size, et.Align)
	}
	fresh, err := e.heap.Alloc(size, et.Align)
	if err != nil {
		return err
	}
	a := e.acc()
	if data != 0 {
		a.move(fresh, data, uint32(num)*et.Size)
		if a.err != nil {
			return a.err
		}
		e.heap.Free(data, uint32(capacity)*et.Size, et.Align)
	}
	a.setU32(arr+arrData, fresh)
	a.setI32(arr+arrMax, int32(newMax))
	return a.err
}

// arrayAddUninitialized appends count zeroed slots and returns the first new index.
func (e *Engine) arrayAddUninitialized(arr Ptr, elem TypeID, count int) (int, error) {
	et, err := e.types.get(elem)
	if err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, errors.InvalidInput(errors.PhaseNative, "negative element count")
	}
	num, err := e.arrayNum(arr)
	if err != nil {
		return 0, err
	}
	if err := e.arrayReserve(arr, et, num+count); err != nil {
		return 0, err
	}
	data, err := e.arrayData(arr)
	if err != nil {
		return 0, err
	}
	a := e.acc()
	a.zero(data+uint32(num)*et.Size, uint32(count)*et.Size)
	a.setI32(arr+arrNum, int32(num+count))
	return num, a.err
}

// arrayInsertZeroed opens count zeroed slots at index, shifting the tail up.
func (e *Engine) arrayInsertZeroed(arr Ptr, elem TypeID, index, count int) error {
	et, err := e.types.get(elem)
	if err != nil {
		return err
	}
	num, err := e.arrayNum(arr)
	if err != nil {
		return err
	}
	if index < 0 || index > num {
		return errors.OutOfBounds(errors.PhaseNative, nil, index, num)
	}
	if err := e.arrayReserve(arr, et, num+count); err != nil {
		return err
	}
	data, err := e.arrayData(arr)
	if err != nil {
		return err
	}
	a := e.acc()
	at := data + uint32(index)*et.Size
	a.move(at+uint32(count)*et.Size, at, uint32(num-index)*et.Size)
	a.zero(at, uint32(count)*et.Size)
	a.setI32(arr+arrNum, int32(num+count))
	return a.err
}

// arrayRemoveAt destroys count elements at index and closes the gap.
func (e *Engine) arrayRemoveAt(arr Ptr, elem TypeID, index, count int) error {
	et, err := e.types.get(elem)
	if err != nil {
		return err
	}
	data, num, _, err := e.arrayHeader(arr)
	if err != nil {
		return err
	}
	if index < 0 || count < 0 || index+count > num {
		return errors.OutOfBounds(errors.PhaseNative, nil, index+count-1, num)
	}
	for i := index; i < index+count; i++ {
		if err := e.destroy(et, data+uint32(i)*et.Size); err != nil {
			return err
		}
	}
	a := e.acc()
	at := data + uint32(index)*et.Size
	tail := uint32(num-index-count) * et.Size
	a.move(at, at+uint32(count)*et.Size, tail)
	a.zero(at+tail, uint32(count)*et.Size)
	a.setI32(arr+arrNum, int32(num-count))
	return a.err
}

// arrayResize grows with default-initialized slots or destroys the tail.
func (e *Engine) arrayResize(arr Ptr, elem TypeID, n int) error {
	if n < 0 {
		return errors.InvalidInput(errors.PhaseNative, "negative array size")
	}
	num, err := e.arrayNum(arr)
	if err != nil {
		return err
	}
	switch {
	case n < num:
		return e.arrayRemoveAt(arr, elem, n, num-n)
	case n > num:
		_, err := e.arrayAddUninitialized(arr, elem, n-num)
		return err
	}
	return nil
}

// arrayEmpty destroys every element and frees storage.
func (e *Engine) arrayEmpty(arr Ptr, elem TypeID) error {
	et, err := e.types.get(elem)
	if err != nil {
		return err
	}
	data, num, capacity, err := e.arrayHeader(arr)
	if err != nil {
		return err
	}
	for i := 0; i < num; i++ {
		if err := e.destroy(et, data+uint32(i)*et.Size); err != nil {
			return err
		}
	}
	if data != 0 {
		e.heap.Free(data, uint32(capacity)*et.Size, et.Align)
	}
	a := e.acc()
	a.zero(arr, ArrayHeaderSize)
	return a.err
}

func (e *Engine) arrayCopy(dst, src Ptr, elem TypeID) error {
	et, err := e.types.get(elem)
	if err != nil {
		return err
	}
	if err := e.arrayEmpty(dst, elem); err != nil {
		return err
	}
	srcData, num, _, err := e.arrayHeader(src)
	if err != nil || num == 0 {
		return err
	}
	if _, err := e.arrayAddUninitialized(dst, elem, num); err != nil {
		return err
	}
	dstData, err := e.arrayData(dst)
	if err != nil {
		return err
	}
	for i := 0; i < num; i++ {
		off := uint32(i) * et.Size
		if err := e.copyValue(et, dstData+off, srcData+off); err != nil {
			return err
		}
	}
	return nil
}
