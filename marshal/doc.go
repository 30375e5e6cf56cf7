// Package marshal converts values between Go and the native engine heap.
//
// Every conversion is a Marshaller: a pair of functions ToNative and
// FromNative addressing buf + index*Size(). Marshallers are generic strategy
// values, so containers compose structurally:
//
//	elem, _ := marshal.Struct[Hit](env, hitType,
//		marshal.Field("Damage", marshal.Float32(env), func(h *Hit) *float32 { return &h.Damage }),
//	)
//	hits, _ := marshal.Array[Hit](env, elem)
//	list, err := hits.FromNative(obj+offset, 0)
//
// # Copy and live containers
//
// Array, Map and Set copy whole containers. ToNative empties the native
// container and rebuilds it. ArrayViews, MapViews and SetViews instead hand
// out views that go through native memory on every call and cache nothing,
// so two views of the same slot always agree.
//
// Maps and sets never compute bucket placement in Go. The native hash and
// equality of the key type are passed to the native container as callbacks.
//
// # Ownership
//
// Strings, containers and instanced structs own native memory. Use
// Destructor.DestructInstance before discarding a slot that holds one.
// Text and InstancedStruct are scoped owners released with Close and
// Dispose; both are safe to release twice.
//
// # Errors
//
// Bounds violations, destroyed owners and protocol misuse are returned as
// *errors.Error. Expected outcomes such as a TryGet type mismatch or an
// interface the object does not implement are reported as false or nil.
package marshal
