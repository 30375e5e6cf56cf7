package native

import (
	nativebind "github.com/wippyai/nativebind"
)

// access wraps heap reads and writes with a sticky error so a sequence of
// field accesses can be checked once at the end.
type access struct {
	m   nativebind.Memory
	err error
}

func (a *access) u8(p Ptr) uint8 {
	if a.err != nil {
		return 0
	}
	v, err := a.m.ReadU8(p)
	a.err = err
	return v
}

func (a *access) u32(p Ptr) uint32 {
	if a.err != nil {
		return 0
	}
	v, err := a.m.ReadU32(p)
	a.err = err
	return v
}

func (a *access) i32(p Ptr) int32 {
	return int32(a.u32(p))
}

func (a *access) setU8(p Ptr, v uint8) {
	if a.err != nil {
		return
	}
	a.err = a.m.WriteU8(p, v)
}

func (a *access) setU32(p Ptr, v uint32) {
	if a.err != nil {
		return
	}
	a.err = a.m.WriteU32(p, v)
}

func (a *access) setI32(p Ptr, v int32) {
	a.setU32(p, uint32(v))
}

// bytes returns a copy; views into the heap are invalidated by growth.
func (a *access) bytes(p Ptr, n uint32) []byte {
	if a.err != nil || n == 0 {
		return nil
	}
	view, err := a.m.Read(p, n)
	if err != nil {
		a.err = err
		return nil
	}
	return append([]byte(nil), view...)
}

func (a *access) write(p Ptr, data []byte) {
	if a.err != nil || len(data) == 0 {
		return
	}
	a.err = a.m.Write(p, data)
}

func (a *access) fill(p Ptr, n uint32, b byte) {
	if a.err != nil || n == 0 {
		return
	}
	buf := make([]byte, n)
	if b != 0 {
		for i := range buf {
			buf[i] = b
		}
	}
	a.err = a.m.Write(p, buf)
}

func (a *access) zero(p Ptr, n uint32) {
	a.fill(p, n, 0)
}

// move copies n bytes from src to dst; overlapping ranges are safe.
func (a *access) move(dst, src Ptr, n uint32) {
	if dst == src || n == 0 {
		return
	}
	a.write(dst, a.bytes(src, n))
}

func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}
