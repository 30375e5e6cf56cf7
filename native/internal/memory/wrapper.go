package memory

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/nativebind/native/internal/wasm"
)

// Wrapper adapts a wazero api.Memory to the native heap interface.
type Wrapper struct {
	Mem api.Memory
}

// Instance owns the wazero runtime hosting a heap-only module.
type Instance struct {
	runtime wazero.Runtime
	module  api.Module
	Memory  *Wrapper
}

// Instantiate compiles a module whose only content is an exported memory and
// returns it wrapped as a native heap.
func Instantiate(ctx context.Context, initialPages, maxPages uint32) (*Instance, error) {
	if maxPages == 0 {
		maxPages = 65536
	}
	heap, err := heapModule(initialPages, maxPages)
	if err != nil {
		return nil, fmt.Errorf("heap module: %w", err)
	}

	cfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(maxPages)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	mod, err := rt.Instantiate(ctx, heap.Encode())
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate heap module: %w", err)
	}

	mem := mod.ExportedMemory(HeapExport)
	if mem == nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("heap module has no exported memory")
	}

	return &Instance{
		runtime: rt,
		module:  mod,
		Memory:  &Wrapper{Mem: mem},
	}, nil
}

// Close releases the wazero runtime and the memory with it.
func (i *Instance) Close(ctx context.Context) error {
	return i.runtime.Close(ctx)
}

// HeapExport is the export name of the heap module's memory.
const HeapExport = "memory"

// heapModule describes (module (memory (export "memory") initial max)).
func heapModule(initialPages, maxPages uint32) (*wasm.Module, error) {
	maxLimit := uint64(maxPages)
	m := &wasm.Module{
		Memories: []wasm.MemoryType{{
			Limits: wasm.Limits{Min: uint64(initialPages), Max: &maxLimit},
		}},
		Exports: []wasm.Export{{Name: HeapExport, Kind: wasm.KindMemory, Idx: 0}},
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Wrapper) Size() uint32 {
	return m.Mem.Size()
}

// Grow adds delta pages and returns the previous page count.
func (m *Wrapper) Grow(deltaPages uint32) (uint32, bool) {
	return m.Mem.Grow(deltaPages)
}

// Read reads bytes from memory.
func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

// Write writes bytes to memory.
func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (m *Wrapper) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.Mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// ReadU16 reads an unsigned 16-bit little-endian value.
func (m *Wrapper) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.Mem.ReadUint16Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Wrapper) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (m *Wrapper) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.Mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// WriteU8 writes an unsigned 8-bit value.
func (m *Wrapper) WriteU8(offset uint32, value uint8) error {
	if !m.Mem.WriteByte(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// WriteU16 writes an unsigned 16-bit little-endian value.
func (m *Wrapper) WriteU16(offset uint32, value uint16) error {
	if !m.Mem.WriteUint16Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Wrapper) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (m *Wrapper) WriteU64(offset uint32, value uint64) error {
	if !m.Mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}
