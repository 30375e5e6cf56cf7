package marshal

import (
	stderrors "errors"
	"slices"
	"testing"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/native"
)

type actor struct {
	ptr Ptr
}

func (a *actor) NativePtr() Ptr {
	if a == nil {
		return 0
	}
	return a.ptr
}

type damageable interface {
	Handle
	TakeDamage()
}

type crate struct {
	actor
}

func (c *crate) TakeDamage() {}

type registry map[Ptr]Handle

func (r registry) lookup(ptr Ptr) Handle {
	return r[ptr]
}

func TestObject_WriteAndLookup(t *testing.T) {
	e, env := newTestEnv(t)
	cls, _ := e.DefineClass(native.ClassSpec{Name: "Pawn"})
	obj, _ := e.NewObject(cls)
	stranger, _ := e.NewObject(cls)

	wrapper := &actor{ptr: obj}
	reg := registry{obj: wrapper}
	m := Object[Handle](env, ResolverFunc[Handle](reg.lookup))
	buf := allocBuf(t, env, m.Size()*3)

	if err := m.ToNative(buf, 0, wrapper); err != nil {
		t.Fatal(err)
	}
	if err := m.ToNative(buf, 1, nil); err != nil {
		t.Fatal(err)
	}
	_ = env.Mem.WriteU32(buf+8, stranger)

	got, err := m.FromNative(buf, 0)
	if err != nil || got != Handle(wrapper) {
		t.Fatalf("FromNative = %v, %v", got, err)
	}
	if got, _ := m.FromNative(buf, 1); got != nil {
		t.Fatalf("null slot resolved to %v", got)
	}
	if got, _ := m.FromNative(buf, 2); got != nil {
		t.Fatal("FromNative materialized an unregistered object")
	}
	if raw, _ := m.RawPointer(buf, 2); raw != stranger {
		t.Fatalf("RawPointer = %d", raw)
	}

	var typedNil *actor
	if err := m.ToNative(buf, 0, typedNil); err != nil {
		t.Fatal(err)
	}
	if raw, _ := m.RawPointer(buf, 0); raw != 0 {
		t.Fatal("typed nil wrote a pointer")
	}
}

func TestInterface_NarrowByCapability(t *testing.T) {
	e, env := newTestEnv(t)
	iface, _ := e.DefineInterface("Damageable", 0)
	crateCls, _ := e.DefineClass(native.ClassSpec{Name: "Crate", Interfaces: []native.InterfaceID{iface}})
	rockCls, _ := e.DefineClass(native.ClassSpec{Name: "Rock"})
	crateObj, _ := e.NewObject(crateCls)
	rockObj, _ := e.NewObject(rockCls)

	c := &crate{actor{ptr: crateObj}}
	rock := &actor{ptr: rockObj}
	reg := registry{crateObj: c, rockObj: rock}
	m := Interface[damageable, Handle](env, iface, ResolverFunc[Handle](reg.lookup))
	buf := allocBuf(t, env, m.Size())

	if err := m.ToNative(buf, 0, c); err != nil {
		t.Fatal(err)
	}
	table, _ := env.Mem.ReadU32(buf + 4)
	if table == 0 {
		t.Fatal("interface table not written")
	}
	got, err := m.FromNative(buf, 0)
	if err != nil || got != damageable(c) {
		t.Fatalf("FromNative = %v, %v", got, err)
	}

	// The rock's class does not implement the interface, so reading it
	// narrows to nil rather than failing.
	_ = env.Mem.WriteU32(buf, rockObj)
	got, err = m.FromNative(buf, 0)
	if err != nil || got != nil {
		t.Fatalf("unsupported capability = %v, %v", got, err)
	}

	if err := m.ToNative(buf, 0, nil); err != nil {
		t.Fatal(err)
	}
	if obj, _ := env.Mem.ReadU32(buf); obj != 0 {
		t.Fatal("nil interface wrote an object")
	}
}

type hitParams struct {
	Amount int32
}

type delegateFixture struct {
	engine *native.Engine
	env    *Env
	params *StructMarshaller[hitParams]
	a, b   Ptr
	calls  map[Ptr][]int32
}

func newDelegateFixture(t *testing.T) *delegateFixture {
	t.Helper()
	e, env := newTestEnv(t)
	f := &delegateFixture{engine: e, env: env, calls: map[Ptr][]int32{}}
	cls, err := e.DefineClass(native.ClassSpec{
		Name: "Listener",
		Functions: []native.FunctionSpec{{
			Name:   "OnHit",
			Params: []native.FieldSpec{{Name: "Amount", Type: native.TypeInt32}},
			Impl: func(c native.Call) error {
				p, err := c.Param("Amount")
				if err != nil {
					return err
				}
				v, _ := c.Engine.Memory().ReadU32(p)
				f.calls[c.Self] = append(f.calls[c.Self], int32(v))
				return nil
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	fn, _ := cls.Function("OnHit")
	f.params, err = Struct[hitParams](env, fn.Params.ID,
		Field("Amount", Int32(env), func(p *hitParams) *int32 { return &p.Amount }),
	)
	if err != nil {
		t.Fatal(err)
	}
	f.a, _ = e.NewObject(cls)
	f.b, _ = e.NewObject(cls)
	return f
}

func TestDelegate_BindingExclusivity(t *testing.T) {
	f := newDelegateFixture(t)
	d := NewDelegate[hitParams](f.env, allocBuf(t, f.env, native.DelegateSize), f.params)
	handlerA := Handler{Target: f.a, Function: "OnHit"}
	handlerB := Handler{Target: f.b, Function: "OnHit"}

	if err := d.Add(handlerA); err != nil {
		t.Fatal(err)
	}
	if err := d.Add(handlerB); !stderrors.Is(err, errors.ErrInvalidOperation) {
		t.Fatalf("expected invalid operation, got %v", err)
	}

	if err := d.Remove(handlerB); err != nil {
		t.Fatal(err)
	}
	if bound, _ := d.IsBound(); !bound {
		t.Fatal("removing a non-matching handler unbound the delegate")
	}

	if err := d.Remove(handlerA); err != nil {
		t.Fatal(err)
	}
	if err := d.Add(handlerB); err != nil {
		t.Fatal(err)
	}
	if err := d.Invoke(hitParams{Amount: 9}); err != nil {
		t.Fatal(err)
	}
	if len(f.calls[f.a]) != 0 || !slices.Equal(f.calls[f.b], []int32{9}) {
		t.Fatalf("calls = %v", f.calls)
	}

	h, _ := d.Handler()
	if !h.Same(handlerB) || h.Serial == 0 {
		t.Fatalf("Handler = %+v", h)
	}
}

func TestDelegate_DestroyedTargetIsNoop(t *testing.T) {
	f := newDelegateFixture(t)
	d := NewDelegate[hitParams](f.env, allocBuf(t, f.env, native.DelegateSize), f.params)
	if err := d.BindUFunction(f.a, "OnHit"); err != nil {
		t.Fatal(err)
	}
	_ = f.engine.DestroyObject(f.a)

	if err := d.Invoke(hitParams{Amount: 1}); err != nil {
		t.Fatalf("Invoke on destroyed target = %v", err)
	}
	if bound, _ := d.IsBound(); bound {
		t.Fatal("delegate with destroyed target reports bound")
	}
	if err := d.Add(Handler{Target: f.b, Function: "OnHit"}); err != nil {
		t.Fatalf("rebinding after target destruction: %v", err)
	}
}

func TestDelegate_ReusedAddressIsNotTheTarget(t *testing.T) {
	f := newDelegateFixture(t)
	d := NewDelegate[hitParams](f.env, allocBuf(t, f.env, native.DelegateSize), f.params)
	if err := d.BindUFunction(f.a, "OnHit"); err != nil {
		t.Fatal(err)
	}
	stale, _ := d.Handler()

	cls, _ := f.engine.ClassOf(f.a)
	_ = f.engine.DestroyObject(f.a)
	successor, _ := f.engine.NewObject(cls)
	if successor != f.a {
		t.Fatalf("heap did not reuse the block: 0x%x vs 0x%x", successor, f.a)
	}

	if bound, _ := d.IsBound(); bound {
		t.Fatal("delegate reports bound to the successor object")
	}
	if err := d.Invoke(hitParams{Amount: 5}); err != nil {
		t.Fatal(err)
	}
	if len(f.calls[successor]) != 0 {
		t.Fatalf("successor received %v", f.calls[successor])
	}

	m := Multicasts[hitParams](f.env, f.params)
	mc, _ := m.FromNative(allocBuf(t, f.env, m.Size()), 0)
	if err := mc.Add(stale); !stderrors.Is(err, errors.ErrObjectDestroyed) {
		t.Fatalf("adding a stale handler = %v", err)
	}
}

func TestMulticastDelegate(t *testing.T) {
	f := newDelegateFixture(t)
	m := Multicasts[hitParams](f.env, f.params)
	slot := allocBuf(t, f.env, m.Size())
	d1, _ := m.FromNative(slot, 0)
	d2, _ := m.FromNative(slot, 0)

	_ = d1.Add(Handler{Target: f.a, Function: "OnHit"})
	_ = d1.Add(Handler{Target: f.b, Function: "OnHit"})
	_ = d1.Add(Handler{Target: f.a, Function: "OnHit"})
	if n, _ := d2.Len(); n != 2 {
		t.Fatalf("second wrapper sees %d bindings, want 2", n)
	}
	if err := d1.Add(Handler{Function: "OnHit"}); !stderrors.Is(err, &errors.Error{Kind: errors.KindNilPointer}) {
		t.Fatalf("expected nil pointer error, got %v", err)
	}

	invoked, err := d2.Broadcast(hitParams{Amount: 3})
	if err != nil || invoked != 2 {
		t.Fatalf("Broadcast = %d, %v", invoked, err)
	}

	_ = f.engine.DestroyObject(f.b)
	invoked, _ = d1.Broadcast(hitParams{Amount: 4})
	if invoked != 1 {
		t.Fatalf("Broadcast after destroy invoked %d", invoked)
	}
	if !slices.Equal(f.calls[f.a], []int32{3, 4}) {
		t.Fatalf("calls = %v", f.calls)
	}

	_ = d2.Remove(Handler{Target: f.a, Function: "OnHit"})
	if ok, _ := d1.Contains(Handler{Target: f.a, Function: "OnHit"}); ok {
		t.Fatal("removed handler still present")
	}
	handlers, _ := d1.Handlers()
	if len(handlers) != 1 || handlers[0].Target != f.b {
		t.Fatalf("Handlers = %+v", handlers)
	}
	_ = d1.Clear()
	if n, _ := d2.Len(); n != 0 {
		t.Fatalf("Len after Clear = %d", n)
	}
}

func TestHandlerMarshaller(t *testing.T) {
	f := newDelegateFixture(t)
	m := DelegateHandler(f.env)
	buf := allocBuf(t, f.env, m.Size())
	h := Handler{Target: f.a, Function: "OnHit"}
	if err := m.ToNative(buf, 0, h); err != nil {
		t.Fatal(err)
	}
	got, _ := m.FromNative(buf, 0)
	if !got.Same(h) || got.Serial == 0 {
		t.Fatalf("got %+v", got)
	}
	_ = m.ToNative(buf, 0, Handler{})
	if got, _ := m.FromNative(buf, 0); got != (Handler{}) {
		t.Fatalf("cleared delegate reads %+v", got)
	}
}

type loadout struct {
	Name   string
	Ammo   []int32
	Active bool
}

func loadoutMarshaller(t *testing.T, e *native.Engine, env *Env) *StructMarshaller[loadout] {
	t.Helper()
	arr, _ := e.ArrayOf(native.TypeInt32)
	id, err := e.DefineStruct("Loadout", 0,
		native.FieldSpec{Name: "Name", Type: native.TypeString},
		native.FieldSpec{Name: "Active", Type: native.TypeBool},
		native.FieldSpec{Name: "Ammo", Type: arr},
	)
	if err != nil {
		t.Fatal(err)
	}
	ammo, err := Array[int32](env, Int32(env))
	if err != nil {
		t.Fatal(err)
	}
	m, err := Struct[loadout](env, id,
		Field("Name", String(env), func(l *loadout) *string { return &l.Name }),
		Field("Ammo", Marshaller[[]int32](ammo), func(l *loadout) *[]int32 { return &l.Ammo }),
		Field("Active", Bool(env), func(l *loadout) *bool { return &l.Active }),
	)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestStruct_RoundTripWithNestedArray(t *testing.T) {
	e, env := newTestEnv(t)
	m := loadoutMarshaller(t, e, env)
	buf := allocBuf(t, env, m.Size()*2)
	baseline := e.Heap().Stats().LiveCount

	values := []loadout{
		{Name: "rifle", Ammo: []int32{30, 30, 12}, Active: true},
		{},
	}
	for i, v := range values {
		if err := m.ToNative(buf, i, v); err != nil {
			t.Fatal(err)
		}
	}
	for i, want := range values {
		got, err := m.FromNative(buf, i)
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != want.Name || got.Active != want.Active || !slices.Equal(got.Ammo, want.Ammo) {
			t.Fatalf("element %d: got %+v, want %+v", i, got, want)
		}
	}

	for i := range values {
		_ = m.DestructInstance(buf, i)
	}
	if live := e.Heap().Stats().LiveCount; live != baseline {
		t.Fatalf("struct leaked: live %d baseline %d", live, baseline)
	}
}

func TestStruct_BindingErrors(t *testing.T) {
	e, env := newTestEnv(t)
	id, _ := e.DefineStruct("Pair", 0,
		native.FieldSpec{Name: "A", Type: native.TypeInt32},
	)
	type pair struct{ A int32 }

	_, err := Struct[pair](env, id, Field("B", Int32(env), func(p *pair) *int32 { return &p.A }))
	if !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = Struct[pair](env, id, Field("A", Marshaller[float32](Float32(env)), func(p *pair) *float32 { return new(float32) }))
	if !stderrors.Is(err, errors.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	_, err = Struct[pair](env, native.TypeInt32)
	if !stderrors.Is(err, errors.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch for non-struct, got %v", err)
	}
}

type other struct{ A int32 }

func TestInstancedStruct(t *testing.T) {
	e, env := newTestEnv(t)
	m := loadoutMarshaller(t, e, env)
	otherID, _ := e.DefineStruct("Other", 0, native.FieldSpec{Name: "A", Type: native.TypeInt32})
	otherM, err := Struct[other](env, otherID, Field("A", Int32(env), func(o *other) *int32 { return &o.A }))
	if err != nil {
		t.Fatal(err)
	}
	baseline := e.Heap().Stats().LiveCount

	lazy := NewInstancedStruct(env)
	if _, ok := TryGet(lazy, m); ok {
		t.Fatal("empty value read successfully")
	}
	if lazy.IsValid() {
		t.Fatal("empty value reports valid")
	}
	_ = lazy.Dispose()

	def, err := Make(env, m)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := TryGet(def, m); !ok || v.Name != "" || len(v.Ammo) != 0 {
		t.Fatalf("Make produced %+v, %v", v, ok)
	}
	_ = def.Dispose()

	want := loadout{Name: "smg", Ammo: []int32{1, 2, 3}, Active: true}
	val, err := MakeFrom(env, m, want)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := TryGet(val, m)
	if !ok || got.Name != want.Name || !slices.Equal(got.Ammo, want.Ammo) {
		t.Fatalf("TryGet = %+v, %v", got, ok)
	}
	if _, ok := TryGet(val, otherM); ok {
		t.Fatal("TryGet succeeded across types")
	}
	if _, err := Get(val, otherM); !stderrors.Is(err, errors.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}

	im := Instanced(env)
	slot := allocBuf(t, env, im.Size())
	if err := im.ToNative(slot, 0, val); err != nil {
		t.Fatal(err)
	}
	if err := val.Dispose(); err != nil {
		t.Fatal(err)
	}
	if err := val.Dispose(); err != nil {
		t.Fatal("second Dispose must be a no-op")
	}
	if _, ok := TryGet(val, m); ok {
		t.Fatal("disposed value still readable")
	}

	copied, err := im.FromNative(slot, 0)
	if err != nil {
		t.Fatal(err)
	}
	got, ok = TryGet(copied, m)
	if !ok || !slices.Equal(got.Ammo, want.Ammo) {
		t.Fatalf("slot copy = %+v, %v", got, ok)
	}
	_ = copied.Dispose()

	if err := im.ToNative(slot, 0, val); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("writing a disposed value = %v", err)
	}
	kept, _ := im.FromNative(slot, 0)
	if got, ok := TryGet(kept, m); !ok || got.Name != want.Name {
		t.Fatalf("disposed write reset the slot: %+v, %v", got, ok)
	}
	_ = kept.Dispose()
	_ = im.DestructInstance(slot, 0)
	env.Native.Memory.Free(slot, im.Size(), 8)

	if live := e.Heap().Stats().LiveCount; live != baseline {
		t.Fatalf("instanced values leaked: live %d baseline %d", live, baseline)
	}
}
