package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/wippyai/nativebind/bridge"
	"github.com/wippyai/nativebind/marshal"
	"github.com/wippyai/nativebind/native"
)

// world is the demo scene: an arena module with pawns and a spawner.
type world struct {
	rt      *bridge.Runtime
	arena   *bridge.Module
	pawn    *native.Class
	spawner *native.Class

	health    *bridge.Prop[float32]
	name      *bridge.Prop[string]
	inventory *bridge.Prop[[]int32]
	spawnWave *bridge.Func[waveArgs]

	// pinned keeps demo pawns reachable so their weak wrappers survive.
	pinned []*bridge.Object
}

type waveArgs struct {
	Count   int32
	Spawned int32
}

// buildWorld defines the demo classes. It must run on the game thread.
func buildWorld(rt *bridge.Runtime) (*world, error) {
	w := &world{rt: rt, arena: rt.LoadModule("arena")}
	e := rt.Engine()
	env := rt.Env()

	items, err := e.ArrayOf(native.TypeInt32)
	if err != nil {
		return nil, err
	}
	w.pawn, err = e.DefineClass(native.ClassSpec{
		Name:   "Pawn",
		Module: w.arena.ID(),
		Properties: []native.FieldSpec{
			{Name: "Name", Type: native.TypeString},
			{Name: "Health", Type: native.TypeFloat32},
			{Name: "Inventory", Type: items},
		},
	})
	if err != nil {
		return nil, err
	}
	w.spawner, err = e.DefineClass(native.ClassSpec{
		Name:        "Spawner",
		Module:      w.arena.ID(),
		ModuleOwned: true,
		Functions: []native.FunctionSpec{{
			Name: "SpawnWave",
			Params: []native.FieldSpec{
				{Name: "Count", Type: native.TypeInt32},
				{Name: "Spawned", Type: native.TypeInt32},
			},
			Impl: w.spawnWaveImpl,
		}},
	})
	if err != nil {
		return nil, err
	}

	if w.health, err = bridge.BindProp[float32](rt, w.pawn, "Health", marshal.Float32(env)); err != nil {
		return nil, err
	}
	if w.name, err = bridge.BindProp[string](rt, w.pawn, "Name", marshal.String(env)); err != nil {
		return nil, err
	}
	inv, err := marshal.Array[int32](env, marshal.Int32(env))
	if err != nil {
		return nil, err
	}
	if w.inventory, err = bridge.BindProp[[]int32](rt, w.pawn, "Inventory", inv); err != nil {
		return nil, err
	}
	w.spawnWave, err = bridge.BindFunc[waveArgs](rt, w.spawner, "SpawnWave",
		marshal.Field("Count", marshal.Marshaller[int32](marshal.Int32(env)), func(a *waveArgs) *int32 { return &a.Count }),
		marshal.Field("Spawned", marshal.Marshaller[int32](marshal.Int32(env)), func(a *waveArgs) *int32 { return &a.Spawned }),
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// spawnWaveImpl is the native side of Spawner.SpawnWave: it creates Count
// pawns and reports how many it made.
func (w *world) spawnWaveImpl(c native.Call) error {
	countPtr, err := c.Param("Count")
	if err != nil {
		return err
	}
	spawnedPtr, err := c.Param("Spawned")
	if err != nil {
		return err
	}
	count, err := c.Engine.Memory().ReadU32(countPtr)
	if err != nil {
		return err
	}
	spawned := uint32(0)
	for range int32(count) {
		if _, err := c.Engine.NewObject(w.pawn); err != nil {
			return err
		}
		spawned++
	}
	return c.Engine.Memory().WriteU32(spawnedPtr, spawned)
}

// populate spawns n named pawns through the spawner and fills their properties.
func (w *world) populate(ctx context.Context, n int) error {
	return w.rt.Send(ctx, func(context.Context) error {
		return w.populateLocked(n)
	})
}

// populateLocked is populate for callers already on the game thread.
func (w *world) populateLocked(n int) error {
	spawner, err := w.rt.DefaultObject(w.spawner)
	if err != nil {
		return err
	}
	existing := make(map[uint32]bool)
	for _, ptr := range w.rt.Engine().Objects() {
		existing[ptr] = true
	}
	out, err := w.spawnWave.Call(spawner, waveArgs{Count: int32(n)})
	if err != nil {
		return err
	}
	start := len(w.pinned)
	i := start
	for _, ptr := range w.rt.Engine().Objects() {
		if existing[ptr] {
			continue
		}
		o, err := w.rt.Materialize(ptr)
		if err != nil {
			return err
		}
		i++
		if err := w.name.Set(o, fmt.Sprintf("pawn-%02d", i)); err != nil {
			return err
		}
		if err := w.health.Set(o, float32(100-i*7)); err != nil {
			return err
		}
		if err := w.inventory.Set(o, []int32{int32(i), int32(i * 10)}); err != nil {
			return err
		}
		w.pinned = append(w.pinned, o)
	}
	if made := len(w.pinned) - start; made != int(out.Spawned) {
		return fmt.Errorf("spawner reported %d pawns, found %d", out.Spawned, made)
	}
	return nil
}

// unpin lets the wrapper of ptr be collected.
func (w *world) unpin(ptr uint32) {
	w.pinned = slices.DeleteFunc(w.pinned, func(o *bridge.Object) bool {
		return o.NativePtr() == ptr
	})
}

// objectRow is a rendered object for listings.
type objectRow struct {
	Ptr   uint32
	Class string
	Props []propRow
}

type propRow struct {
	Name  string
	Type  string
	Value string
}

// describe renders every live object. It must run on the game thread.
func (w *world) describe() []objectRow {
	e := w.rt.Engine()
	var rows []objectRow
	for _, ptr := range e.Objects() {
		cls, err := e.ClassOf(ptr)
		if err != nil {
			continue
		}
		row := objectRow{Ptr: ptr, Class: cls.Name}
		if e.IsDefaultObject(ptr) {
			row.Class += " (default)"
		}
		for _, f := range cls.Properties() {
			row.Props = append(row.Props, w.describeProp(ptr, f))
		}
		rows = append(rows, row)
	}
	return rows
}

func (w *world) describeProp(obj uint32, f native.Field) propRow {
	env := w.rt.Env()
	slot := obj + f.Offset
	pr := propRow{Name: f.Name}
	info, err := env.Native.Types.Info(f.Type)
	if err != nil {
		pr.Value = err.Error()
		return pr
	}
	pr.Type = info.Name

	var v any
	switch {
	case f.Type == native.TypeFloat32:
		v, err = marshal.Float32(env).FromNative(slot, 0)
	case f.Type == native.TypeInt32:
		v, err = marshal.Int32(env).FromNative(slot, 0)
	case f.Type == native.TypeBool:
		v, err = marshal.Bool(env).FromNative(slot, 0)
	case f.Type == native.TypeString:
		var s string
		s, err = marshal.String(env).FromNative(slot, 0)
		v = fmt.Sprintf("%q", s)
	case info.Kind == native.KindArray && info.Elem == native.TypeInt32:
		var m *marshal.ArrayMarshaller[int32]
		if m, err = marshal.Array[int32](env, marshal.Int32(env)); err == nil {
			v, err = m.FromNative(slot, 0)
		}
	default:
		v = "<" + info.Kind.String() + ">"
	}
	if err != nil {
		pr.Value = "error: " + err.Error()
		return pr
	}
	pr.Value = fmt.Sprint(v)
	return pr
}

func formatRows(rows []objectRow) string {
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "0x%08x  %s\n", r.Ptr, r.Class)
		for _, p := range r.Props {
			fmt.Fprintf(&b, "    %-10s %-12s %s\n", p.Name, p.Type, p.Value)
		}
	}
	return b.String()
}
