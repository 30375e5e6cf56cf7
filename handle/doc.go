// Package handle associates native object pointers with their Go wrappers.
//
// The native engine owns object lifetime; Go owns wrapper lifetime. The
// Table bridges the two without pretending either side is authoritative for
// the other:
//
//	table := handle.NewTable[Actor]()
//
//	// Weak: the wrapper may be collected once Go stops referencing it.
//	h, _ := table.Associate(ptr, actor, false, module)
//
//	// Lookup returns nil for "never registered" and "collected" alike.
//	// Both mean the caller should materialize a fresh wrapper.
//	if a := table.Lookup(ptr); a == nil {
//	    ...
//	}
//
// # Strong entries
//
// A strong association roots its wrapper. Pin makes an existing entry
// strong, Release makes it weak again. Neither touches the native object.
//
// # Handles
//
// A Handle packs a slot index with the slot's generation. Dropping an
// association bumps the generation, so every handle issued for it becomes
// stale and Get, Pin and Release reject it. Associating a native pointer
// that is already registered is allowed and replaces the previous entry.
//
// # Module unload
//
// OnModuleUnload drops every strong association owned by a module. Callers
// must run it before the module's native classes are torn down so that no
// rooted wrapper outlives the metadata it describes.
//
// # Collection
//
// Weak entries whose wrapper has been garbage collected linger until Sweep,
// a native destroy notification (Forget) or a replacement removes them. A
// Sweeper runs Sweep periodically in the background.
package handle
