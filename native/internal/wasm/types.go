package wasm

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01
)

// Section IDs. Sections must appear in increasing order by ID, except
// custom sections.
const (
	SectionCustom byte = 0
	SectionMemory byte = 5
	SectionExport byte = 7
)

// Export descriptor kinds.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
)

// Limits flags
const (
	LimitsNoMax    byte = 0x00
	LimitsHasMax   byte = 0x01
	LimitsShared   byte = 0x02
	LimitsMemory64 byte = 0x04
)

// Memory page limits
const (
	MemoryMaxPages32 uint64 = 65536
	MemoryMaxPages64 uint64 = 1 << 48
)

// Module is the subset of a WebAssembly module a heap needs.
type Module struct {
	Memories       []MemoryType
	Exports        []Export
	CustomSections []CustomSection
}

// MemoryType describes a linear memory.
type MemoryType struct {
	Limits Limits
}

// Limits describes size constraints in pages.
type Limits struct {
	Max      *uint64
	Min      uint64
	Shared   bool
	Memory64 bool
}

// Export names a definition of the module.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// CustomSection carries named opaque data.
type CustomSection struct {
	Name string
	Data []byte
}
