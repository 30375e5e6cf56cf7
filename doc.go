// Package nativebind exposes a native engine's object model to Go.
//
// Every property access, container mutation and function call crosses a
// native-memory boundary. The native engine owns a linear heap addressed by
// 32-bit pointers; Go code sees typed wrappers produced by marshallers.
//
// # Architecture Overview
//
//	nativebind/          Root package with Memory, Allocator and Ptr
//	├── native/          Reference engine and the Exports function table
//	├── handle/          Native pointer to Go wrapper association table
//	├── marshal/         Scalar, string, container, object, delegate and struct marshallers
//	├── affinity/        Game-thread dispatcher (Post / Send)
//	├── bridge/          Runtime: config, modules, objects, properties, calls
//	├── errors/          Structured error types for debugging
//	└── cmd/bridgectl/   Demo, inspector and snapshot tool
//
// # Quick Start
//
//	rt, err := bridge.New(ctx, bridge.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod := rt.LoadModule("game")
//	cls, _ := rt.Engine().DefineClass(native.ClassSpec{
//	    Name:   "Pawn",
//	    Module: mod.ID(),
//	    Properties: []native.FieldSpec{
//	        {Name: "Health", Type: native.TypeFloat32},
//	    },
//	})
//
//	health, _ := bridge.BindProp(rt, cls, "Health", marshal.Float32(rt.Env()))
//	pawn, _ := rt.Spawn(cls)
//	_ = health.Set(pawn, 100)
//
// # Thread Safety
//
// The native engine is single-threaded for object-model mutation. All
// marshalling must run on the runtime's dispatcher thread: use Runtime.Send
// or Runtime.Post from other goroutines. The handle table is safe for
// concurrent use; native containers are not.
//
// # Memory Model
//
// The native heap can only grow. Freed blocks are recycled by the native
// allocator. With poisoning enabled, freed blocks are overwritten with 0xDD
// so stale reads are easy to spot in tests.
package nativebind
