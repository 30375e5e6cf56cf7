package native

import (
	"context"

	"go.uber.org/zap"

	nativebind "github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/native/internal/memory"
)

// Default heap limits in pages.
const (
	DefaultInitialPages = 4
	DefaultMaxPages     = 1024
)

// Config configures an Engine.
type Config struct {
	// Memory backs the heap. A growable slice is used when nil.
	Memory nativebind.GrowableMemory
	// PoisonFreed fills freed blocks with 0xDD.
	PoisonFreed bool
}

// Engine is the reference native engine: heap, type registry, name table,
// object system and module registry. It is not safe for concurrent use; all
// calls belong on the game thread.
type Engine struct {
	mem     nativebind.GrowableMemory
	heap    *Heap
	types   *typeRegistry
	names   *nameTable
	exports *Exports

	classes    map[ClassID]*Class
	classNames map[string]ClassID
	nextClass  ClassID

	interfaces map[InterfaceID]*interfaceInfo
	nextIface  InterfaceID

	objects          map[Ptr]*objectRecord
	nextSerial       uint32
	destroyListeners []func(Ptr)

	modules    map[ModuleID]string
	nextModule ModuleID
}

// New creates an engine.
func New(cfg Config) *Engine {
	mem := cfg.Memory
	if mem == nil {
		mem = NewSliceMemory(DefaultInitialPages, DefaultMaxPages)
	}
	e := &Engine{
		mem:        mem,
		heap:       NewHeap(mem, cfg.PoisonFreed),
		types:      newTypeRegistry(),
		names:      newNameTable(),
		classes:    make(map[ClassID]*Class),
		classNames: make(map[string]ClassID),
		interfaces: make(map[InterfaceID]*interfaceInfo),
		objects:    make(map[Ptr]*objectRecord),
		modules:    make(map[ModuleID]string),
	}
	e.exports = e.buildExports()
	Logger().Debug("engine created",
		zap.Uint32("heap_bytes", mem.Size()),
		zap.Bool("poison", cfg.PoisonFreed))
	return e
}

func (e *Engine) acc() *access {
	return &access{m: e.mem}
}

// Exports returns the engine's function table.
func (e *Engine) Exports() *Exports {
	return e.exports
}

// Heap returns the engine allocator.
func (e *Engine) Heap() *Heap {
	return e.heap
}

// Memory returns the engine heap memory.
func (e *Engine) Memory() nativebind.GrowableMemory {
	return e.mem
}

// Name interns s.
func (e *Engine) Name(s string) uint32 {
	return e.names.intern(s)
}

// NameString resolves an interned name.
func (e *Engine) NameString(i uint32) (string, error) {
	return e.names.lookup(i)
}

// NewSliceMemory returns a heap backed by a Go byte slice.
func NewSliceMemory(initialPages, maxPages uint32) nativebind.GrowableMemory {
	return memory.NewSlice(initialPages, maxPages)
}

// WazeroMemory is a heap backed by the linear memory of a wazero module instance.
type WazeroMemory struct {
	nativebind.GrowableMemory
	inst *memory.Instance
}

// Close releases the wazero runtime.
func (m *WazeroMemory) Close(ctx context.Context) error {
	return m.inst.Close(ctx)
}

// OpenWazeroMemory instantiates a wazero linear memory to back the heap.
func OpenWazeroMemory(ctx context.Context, initialPages, maxPages uint32) (*WazeroMemory, error) {
	inst, err := memory.Instantiate(ctx, initialPages, maxPages)
	if err != nil {
		return nil, err
	}
	return &WazeroMemory{GrowableMemory: inst.Memory, inst: inst}, nil
}
