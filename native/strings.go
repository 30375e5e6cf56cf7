package native

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/wippyai/nativebind/errors"
)

// String header: {data u32, num i32, max i32}. num counts the terminator.
const (
	strData = 0
	strNum  = 4
	strMax  = 8
)

// Text cell: {refs u32, string}.
const (
	textRefs   = 0
	textString = 4
	textCell   = 4 + StringSize
)

// stringUnits returns the UTF-16 code units of the string at p, without terminator.
func (e *Engine) stringUnits(p Ptr) ([]uint16, error) {
	a := e.acc()
	data := a.u32(p + strData)
	num := a.i32(p + strNum)
	if a.err != nil {
		return nil, a.err
	}
	if data == 0 || num <= 1 {
		return nil, nil
	}
	raw := a.bytes(data, uint32(num-1)*2)
	if a.err != nil {
		return nil, a.err
	}
	units := make([]uint16, num-1)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return units, nil
}

// stringAssign replaces the contents of the string at p, reusing storage when it fits.
func (e *Engine) stringAssign(p Ptr, units []uint16) error {
	a := e.acc()
	data := a.u32(p + strData)
	capacity := a.i32(p + strMax)
	if a.err != nil {
		return a.err
	}
	if len(units) == 0 {
		return e.stringDestroy(p)
	}
	need := int32(len(units) + 1)
	if need > capacity {
		fresh, err := e.heap.Alloc(uint32(need)*2, 2)
		if err != nil {
			return err
		}
		if data != 0 {
			e.heap.Free(data, uint32(capacity)*2, 2)
		}
		data, capacity = fresh, need
	}
	raw := make([]byte, need*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(raw[2*i:], u)
	}
	a.write(data, raw)
	a.setU32(p+strData, data)
	a.setI32(p+strNum, need)
	a.setI32(p+strMax, capacity)
	return a.err
}

func (e *Engine) stringDestroy(p Ptr) error {
	a := e.acc()
	data := a.u32(p + strData)
	capacity := a.i32(p + strMax)
	if a.err != nil {
		return a.err
	}
	if data != 0 {
		e.heap.Free(data, uint32(capacity)*2, 2)
	}
	a.zero(p, StringSize)
	return a.err
}

// textCreate allocates a cell holding s with one reference.
func (e *Engine) textCreate(units []uint16) (Ptr, error) {
	cell, err := e.heap.Alloc(textCell, 4)
	if err != nil {
		return 0, err
	}
	if err := e.stringAssign(cell+textString, units); err != nil {
		e.heap.Free(cell, textCell, 4)
		return 0, err
	}
	a := e.acc()
	a.setU32(cell+textRefs, 1)
	return cell, a.err
}

func (e *Engine) textRefCount(cell Ptr) (uint32, error) {
	a := e.acc()
	n := a.u32(cell + textRefs)
	return n, a.err
}

func (e *Engine) textAddRef(cell Ptr) error {
	a := e.acc()
	n := a.u32(cell + textRefs)
	if a.err == nil && n == 0 {
		return errors.InvalidData(errors.PhaseNative, nil, "text cell has no references")
	}
	a.setU32(cell+textRefs, n+1)
	return a.err
}

// textRelease drops one reference and frees the cell with the last one.
func (e *Engine) textRelease(cell Ptr) error {
	a := e.acc()
	n := a.u32(cell + textRefs)
	if a.err != nil {
		return a.err
	}
	if n == 0 {
		return errors.InvalidData(errors.PhaseNative, nil, "text cell released too many times")
	}
	if n > 1 {
		a.setU32(cell+textRefs, n-1)
		return a.err
	}
	if err := e.stringDestroy(cell + textString); err != nil {
		return err
	}
	a.setU32(cell+textRefs, 0)
	if a.err != nil {
		return a.err
	}
	e.heap.Free(cell, textCell, 4)
	return nil
}

// nameTable interns names. Index zero is "None".
type nameTable struct {
	index map[string]uint32
	names []string
}

func newNameTable() *nameTable {
	return &nameTable{
		index: map[string]uint32{"None": 0},
		names: []string{"None"},
	}
}

func (t *nameTable) intern(s string) uint32 {
	if s == "" {
		return 0
	}
	if i, ok := t.index[s]; ok {
		return i
	}
	i := uint32(len(t.names))
	t.names = append(t.names, s)
	t.index[s] = i
	return i
}

func (t *nameTable) lookup(i uint32) (string, error) {
	if int(i) >= len(t.names) {
		return "", errors.New(errors.PhaseNative, errors.KindNotFound).
			Detail("name index %d is not interned", i).
			Value(i).
			Build()
	}
	return t.names[i], nil
}

// EncodeString converts s to native UTF-16 code units.
func EncodeString(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// DecodeString converts native UTF-16 code units to a Go string.
func DecodeString(units []uint16) string {
	return string(utf16.Decode(units))
}
