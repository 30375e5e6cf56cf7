// Package bridge is the object-model layer on top of the native engine.
//
// A Runtime owns the engine, the export table, the association table and
// the game-thread dispatcher. It hands out Object wrappers for native
// objects and typed accessors for their properties and functions:
//
//	rt, _ := bridge.New(ctx, bridge.DefaultConfig())
//	defer rt.Close(ctx)
//
//	mod := rt.LoadModule("game")
//	cls, _ := rt.Engine().DefineClass(native.ClassSpec{Name: "Pawn", Module: mod.ID(), ...})
//	health, _ := bridge.BindProp(rt, cls, "Health", marshal.Float32(rt.Env()))
//
//	_ = rt.Send(ctx, func(ctx context.Context) error {
//	    pawn, err := rt.Spawn(cls)
//	    if err != nil {
//	        return err
//	    }
//	    return health.Set(pawn, 100)
//	})
//
// # Wrapper lifetime
//
// Wrappers are associated weakly unless they belong to a class default
// object or a module-owned class. A weak wrapper may be collected; Lookup
// then returns nil and Materialize builds a fresh one. Native destruction
// drops the association through the engine's destroy notification.
//
// # Modules
//
// UnloadModule invalidates the module's strong associations before the
// engine tears down its objects, classes and types.
//
// # Configuration
//
// Config is loaded from TOML with LoadConfig. Missing values take the
// defaults of DefaultConfig.
package bridge
