// Package wasm encodes the WebAssembly modules that back wazero heaps.
//
// Only the sections a heap module needs are modelled: memories, exports and
// custom sections. Encode writes them in binary section order and Validate
// checks memory limits and export targets before a module is compiled.
//
//	m := &wasm.Module{
//	    Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: &max}}},
//	    Exports:  []wasm.Export{{Name: "memory", Kind: wasm.KindMemory}},
//	}
//	if err := m.Validate(); err != nil {
//	    return err
//	}
//	bin := m.Encode()
package wasm
