// Package layout computes element addresses in the native heap.
//
// Every address a marshaller touches is derived here, from a base pointer,
// a stride and an index, with overflow-checked arithmetic. A View adds a
// count so indices are bounds checked before any memory access.
//
// # Usage
//
//	v, err := layout.NewView(data, stride, num)
//	p, err := v.At(i)
//
// This package is internal to marshal.
package layout
