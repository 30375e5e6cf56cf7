// Package native is the reference native engine the binding layer runs against.
//
// It owns a linear heap with 32-bit pointers, a registry of native types with
// their value semantics (construct, destroy, copy, hash, equality), interned
// names, a class and object system with function dispatch, and loadable
// modules. The binding layer never touches engine internals: it calls the
// fixed function table returned by [Engine.Exports].
//
// Native layouts, all little endian:
//
//	dynamic array     {data u32, num i32, max i32}
//	sparse set/map    {data, flags, maxIndex, num, capacity, buckets, bucketCount}
//	                  slot = payload + {hashNext i32, hash u32}
//	string            {data u32, num i32, max i32}, UTF-16, num counts the terminator
//	text              u32 pointer to {refs u32, string}
//	name              u32 interned index, 0 is "None"
//	object            u32
//	interface         {object u32, table u32}
//	delegate          {object u32, function name u32}
//	multicast         dynamic array of delegates
//	optional          payload, then isSet u8
//	instanced struct  {struct type u32, memory u32}
//
// The engine is single threaded. Callers serialize access on one thread.
package native
