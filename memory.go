package nativebind

// Ptr is an address in the native heap. Zero is the null pointer.
type Ptr = uint32

// Memory represents the native engine heap.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of the native heap in bytes.
type MemorySizer interface {
	Size() uint32
}

// GrowableMemory is a heap that can be extended by whole 64KiB pages.
type GrowableMemory interface {
	Memory
	MemorySizer
	// Grow adds delta pages and returns the previous page count.
	Grow(deltaPages uint32) (uint32, bool)
}

// Allocator allocates memory in the native heap
type Allocator interface {
	Alloc(size, align uint32) (Ptr, error)
	Free(ptr, size, align uint32)
}

// PageSize is the granularity of heap growth.
const PageSize = 65536
