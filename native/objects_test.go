package native

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/nativebind/errors"
)

func int32Callbacks(e *Engine, setType TypeID) SparseCallbacks {
	cb, _ := e.nativeCallbacks(e.types.types[setType])
	return cb
}

func TestSparseSet_AddFindRemove(t *testing.T) {
	e := newTestEngine(t)
	x := e.Exports()
	setType, err := e.SetOf(TypeInt32)
	if err != nil {
		t.Fatal(err)
	}
	set := alloc(t, e, SparseHeaderSize)
	scratch := alloc(t, e, 4)
	cb := int32Callbacks(e, setType)

	add := func(v uint32) (int, bool) {
		t.Helper()
		_ = e.Memory().WriteU32(scratch, v)
		i, added, err := x.Sparse.Add(set, setType, cb, scratch)
		if err != nil {
			t.Fatalf("Add(%d) failed: %v", v, err)
		}
		return i, added
	}
	find := func(v uint32) int {
		t.Helper()
		_ = e.Memory().WriteU32(scratch, v)
		h, _ := cb.Hash(scratch)
		i, err := x.Sparse.FindIndex(set, setType, h, func(slot Ptr) (bool, error) {
			return cb.Equals(slot, scratch)
		})
		if err != nil {
			t.Fatal(err)
		}
		return i
	}

	for v := uint32(0); v < 20; v++ {
		if _, added := add(v * 7); !added {
			t.Fatalf("value %d reported as present", v*7)
		}
	}
	if _, added := add(14); added {
		t.Fatal("duplicate add constructed a new element")
	}
	if n, _ := x.Sparse.Num(set); n != 20 {
		t.Fatalf("Num = %d, want 20", n)
	}

	i := find(21)
	if i < 0 {
		t.Fatal("21 not found")
	}
	if err := x.Sparse.RemoveAt(set, setType, i); err != nil {
		t.Fatal(err)
	}
	if find(21) >= 0 {
		t.Fatal("21 still found after removal")
	}
	if valid, _ := x.Sparse.IsValidIndex(set, i); valid {
		t.Fatal("removed slot still valid")
	}
	if maxIndex, _ := x.Sparse.MaxIndex(set); maxIndex != 20 {
		t.Fatalf("MaxIndex = %d, removal must leave a hole", maxIndex)
	}

	reused, _ := add(1000)
	if reused != i {
		t.Fatalf("hole not reused: got %d want %d", reused, i)
	}
	for v := uint32(0); v < 20; v++ {
		if v*7 == 21 {
			continue
		}
		if find(v*7) < 0 {
			t.Fatalf("%d lost after rehash", v*7)
		}
	}
}

func TestSparseMap_PairsAndCopy(t *testing.T) {
	e := newTestEngine(t)
	x := e.Exports()
	mapType, err := e.MapOf(TypeString, TypeInt32)
	if err != nil {
		t.Fatal(err)
	}
	mt, _ := e.Type(mapType)
	pairType, _ := e.Type(mt.Elem)

	m := alloc(t, e, SparseHeaderSize)
	pair := alloc(t, e, pairType.Size)
	cb, err := e.nativeCallbacks(mt)
	if err != nil {
		t.Fatal(err)
	}

	for i, k := range []string{"one", "two", "three"} {
		_ = x.String.Set(pair, EncodeString(k))
		_ = e.Memory().WriteU32(pair+mt.ValueOffset, uint32(i+1))
		if _, _, err := x.Sparse.Add(m, mapType, cb, pair); err != nil {
			t.Fatal(err)
		}
	}
	_ = x.Types.Destroy(mt.Elem, pair)

	clone := alloc(t, e, SparseHeaderSize)
	if err := x.Types.Copy(mapType, clone, m); err != nil {
		t.Fatal(err)
	}
	if err := x.Types.Destroy(mapType, m); err != nil {
		t.Fatal(err)
	}

	maxIndex, _ := x.Sparse.MaxIndex(clone)
	got := map[string]uint32{}
	for i := 0; i < maxIndex; i++ {
		if ok, _ := x.Sparse.IsValidIndex(clone, i); !ok {
			continue
		}
		k, v, err := x.Map.PairPtr(clone, mapType, i)
		if err != nil {
			t.Fatal(err)
		}
		units, _ := x.String.Get(k)
		n, _ := e.Memory().ReadU32(v)
		got[DecodeString(units)] = n
	}
	if len(got) != 3 || got["one"] != 1 || got["two"] != 2 || got["three"] != 3 {
		t.Fatalf("unexpected map contents %v", got)
	}
}

func TestSetOf_RejectsUnhashable(t *testing.T) {
	e := newTestEngine(t)
	arr, _ := e.ArrayOf(TypeInt32)
	if _, err := e.SetOf(arr); err == nil {
		t.Fatal("expected error for unhashable element")
	}
}

func TestDefineStruct_Layout(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.DefineStruct("Hit", 0,
		FieldSpec{Name: "Flag", Type: TypeBool},
		FieldSpec{Name: "Damage", Type: TypeFloat64},
		FieldSpec{Name: "Tag", Type: TypeInt16},
	)
	if err != nil {
		t.Fatal(err)
	}
	st, _ := e.Type(id)
	wantOffsets := map[string]uint32{"Flag": 0, "Damage": 8, "Tag": 16}
	for name, off := range wantOffsets {
		f, ok := st.Field(name)
		if !ok || f.Offset != off {
			t.Fatalf("%s offset = %d, want %d", name, f.Offset, off)
		}
	}
	if st.Size != 24 || st.Align != 8 {
		t.Fatalf("size %d align %d", st.Size, st.Align)
	}

	if _, err := e.DefineStruct("Bad", 0, FieldSpec{Name: "X", Type: 9999}); err == nil {
		t.Fatal("expected error for unknown field type")
	}
}

func defineActor(t *testing.T, e *Engine, module ModuleID, calls *int) *Class {
	t.Helper()
	cls, err := e.DefineClass(ClassSpec{
		Name:   "Actor",
		Module: module,
		Properties: []FieldSpec{
			{Name: "Health", Type: TypeFloat32},
			{Name: "Label", Type: TypeString},
		},
		Functions: []FunctionSpec{{
			Name:   "Damage",
			Params: []FieldSpec{{Name: "Amount", Type: TypeInt32}},
			Impl: func(c Call) error {
				*calls++
				p, err := c.Param("Amount")
				if err != nil {
					return err
				}
				amount, _ := c.Engine.Memory().ReadU32(p)
				if amount == 0 {
					return stderrors.New("no damage")
				}
				return nil
			},
		}},
	})
	if err != nil {
		t.Fatalf("DefineClass failed: %v", err)
	}
	return cls
}

func TestObjects_Lifecycle(t *testing.T) {
	e := newTestEngine(t)
	calls := 0
	cls := defineActor(t, e, 0, &calls)

	if !e.IsDefaultObject(cls.Default) {
		t.Fatal("default object missing")
	}
	obj, err := e.NewObject(cls)
	if err != nil {
		t.Fatal(err)
	}
	if !e.IsValid(obj) || e.IsDefaultObject(obj) {
		t.Fatal("new object has wrong state")
	}
	got, _ := e.ClassOf(obj)
	if got != cls {
		t.Fatal("ClassOf mismatch")
	}

	label, _ := cls.Property("Label")
	if err := e.Exports().String.Set(obj+label.Offset, EncodeString("hero")); err != nil {
		t.Fatal(err)
	}

	var destroyed []Ptr
	e.OnDestroy(func(p Ptr) { destroyed = append(destroyed, p) })

	baseline := e.Heap().Stats().LiveCount
	if err := e.DestroyObject(obj); err != nil {
		t.Fatal(err)
	}
	if e.IsValid(obj) {
		t.Fatal("object still valid after destroy")
	}
	if len(destroyed) != 1 || destroyed[0] != obj {
		t.Fatalf("destroy listener saw %v", destroyed)
	}
	if live := e.Heap().Stats().LiveCount; live != baseline-2 {
		t.Fatalf("object storage not released: live %d baseline %d", live, baseline)
	}

	err = e.DestroyObject(obj)
	if !stderrors.Is(err, errors.ErrObjectDestroyed) {
		t.Fatalf("expected object destroyed error, got %v", err)
	}
}

func TestObjects_CallAndProcessEvent(t *testing.T) {
	e := newTestEngine(t)
	calls := 0
	cls := defineActor(t, e, 0, &calls)
	obj, _ := e.NewObject(cls)
	fn, ok := cls.Function("Damage")
	if !ok {
		t.Fatal("function not registered")
	}

	err := e.Call(obj, fn, func(params Ptr) error {
		return e.Memory().WriteU32(params, 5)
	}, nil)
	if err != nil || calls != 1 {
		t.Fatalf("Call = %v, calls %d", err, calls)
	}
	if err := e.Call(obj, fn, nil, nil); err == nil {
		t.Fatal("expected error from implementation")
	}

	if err := e.ProcessEvent(obj, e.Name("Missing"), 0); !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_ = e.DestroyObject(obj)
	if err := e.ProcessEvent(obj, fn.NameIndex, 0); !stderrors.Is(err, errors.ErrObjectDestroyed) {
		t.Fatalf("expected object destroyed, got %v", err)
	}
}

func TestObjects_Interfaces(t *testing.T) {
	e := newTestEngine(t)
	damageable, _ := e.DefineInterface("Damageable", 0)
	other, _ := e.DefineInterface("Other", 0)
	cls, err := e.DefineClass(ClassSpec{Name: "Crate", Interfaces: []InterfaceID{damageable}})
	if err != nil {
		t.Fatal(err)
	}
	obj, _ := e.NewObject(cls)

	vt, err := e.InterfaceOf(obj, damageable)
	if err != nil || vt == 0 {
		t.Fatalf("InterfaceOf = %d, %v", vt, err)
	}
	vt, err = e.InterfaceOf(obj, other)
	if err != nil || vt != 0 {
		t.Fatalf("unimplemented interface = %d, %v", vt, err)
	}
}

func TestModules_Unregister(t *testing.T) {
	e := newTestEngine(t)
	mod := e.RegisterModule("gameplay")
	calls := 0
	cls := defineActor(t, e, mod, &calls)
	structID, err := e.DefineStruct("Payload", mod, FieldSpec{Name: "A", Type: TypeInt32})
	if err != nil {
		t.Fatal(err)
	}
	arrID, _ := e.ArrayOf(structID)
	obj, _ := e.NewObject(cls)

	var destroyed int
	e.OnDestroy(func(Ptr) { destroyed++ })

	if err := e.UnregisterModule(mod); err != nil {
		t.Fatal(err)
	}
	if e.IsValid(obj) || e.IsValid(cls.Default) {
		t.Fatal("module objects survived unload")
	}
	if destroyed != 2 {
		t.Fatalf("destroyed %d objects, want 2", destroyed)
	}
	if _, ok := e.FindClass("Actor"); ok {
		t.Fatal("class survived unload")
	}
	if _, ok := e.Type(structID); ok {
		t.Fatal("struct type survived unload")
	}
	if _, ok := e.Type(arrID); ok {
		t.Fatal("composite type survived unload")
	}
	if err := e.UnregisterModule(0); err == nil {
		t.Fatal("core module must not unload")
	}
	if _, err := e.DefineStruct("Late", mod); err == nil {
		t.Fatal("expected error for unregistered module")
	}
}

func TestDelegates(t *testing.T) {
	e := newTestEngine(t)
	x := e.Exports()
	calls := 0
	cls := defineActor(t, e, 0, &calls)
	a, _ := e.NewObject(cls)
	b, _ := e.NewObject(cls)
	fn, _ := cls.Function("Damage")
	params := alloc(t, e, 4)
	_ = e.Memory().WriteU32(params, 1)

	d := alloc(t, e, DelegateSize)
	if bound, _ := x.Delegate.IsBound(d); bound {
		t.Fatal("zero delegate reported bound")
	}
	_ = x.Delegate.Bind(d, DelegateTarget{Object: a, Name: fn.NameIndex})
	ran, err := x.Delegate.Execute(d, params)
	if !ran || err != nil || calls != 1 {
		t.Fatalf("Execute = %v, %v, calls %d", ran, err, calls)
	}

	mc := alloc(t, e, ArrayHeaderSize)
	for _, obj := range []Ptr{a, b, a} {
		if err := x.Multicast.Add(mc, DelegateTarget{Object: obj, Name: fn.NameIndex}); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := x.Multicast.Num(mc); n != 2 {
		t.Fatalf("multicast holds %d targets, want 2", n)
	}

	_ = e.DestroyObject(b)
	calls = 0
	invoked, err := x.Multicast.Broadcast(mc, params)
	if err != nil || invoked != 1 || calls != 1 {
		t.Fatalf("Broadcast = %d, %v, calls %d", invoked, err, calls)
	}

	_ = e.DestroyObject(a)
	ran, err = x.Delegate.Execute(d, params)
	if ran || err != nil {
		t.Fatalf("Execute on destroyed target = %v, %v", ran, err)
	}

	_ = x.Multicast.Remove(mc, DelegateTarget{Object: b, Name: fn.NameIndex})
	if ok, _ := x.Multicast.Contains(mc, DelegateTarget{Object: b, Name: fn.NameIndex}); ok {
		t.Fatal("target still present after Remove")
	}
}

func TestObjects_SerialSurvivesAddressReuse(t *testing.T) {
	e := newTestEngine(t)
	calls := 0
	cls := defineActor(t, e, 0, &calls)
	fn, _ := cls.Function("Damage")

	old, _ := e.NewObject(cls)
	oldSerial, ok := e.Serial(old)
	if !ok || !e.IsAlive(old, oldSerial) {
		t.Fatal("new object has no serial")
	}
	d := alloc(t, e, DelegateSize)
	if err := e.Exports().Delegate.Bind(d, DelegateTarget{Object: old, Name: fn.NameIndex}); err != nil {
		t.Fatal(err)
	}

	_ = e.DestroyObject(old)
	fresh, _ := e.NewObject(cls)
	if fresh != old {
		t.Fatalf("heap did not reuse the block: old 0x%x fresh 0x%x", old, fresh)
	}
	freshSerial, _ := e.Serial(fresh)
	if freshSerial == oldSerial {
		t.Fatal("reused address kept the old serial")
	}
	if e.IsAlive(old, oldSerial) || !e.IsValid(old) {
		t.Fatal("liveness must follow the serial, not the address")
	}

	x := e.Exports()
	if bound, _ := x.Delegate.IsBound(d); bound {
		t.Fatal("delegate to the destroyed object is bound to its successor")
	}
	params := alloc(t, e, 4)
	if ran, err := x.Delegate.Execute(d, params); ran || err != nil || calls != 0 {
		t.Fatalf("Execute = %v, %v, calls %d", ran, err, calls)
	}
	stale := DelegateTarget{Object: old, Serial: oldSerial, Name: fn.NameIndex}
	if err := x.Delegate.Bind(d, stale); !stderrors.Is(err, errors.ErrObjectDestroyed) {
		t.Fatalf("binding a stale target = %v", err)
	}
}

func TestOptional(t *testing.T) {
	e := newTestEngine(t)
	x := e.Exports()
	optType, _ := e.OptionalOf(TypeString)
	ot, _ := e.Type(optType)
	if ot.Size != 16 {
		t.Fatalf("optional<string> size = %d", ot.Size)
	}
	p := alloc(t, e, ot.Size)
	baseline := e.Heap().Stats().LiveCount

	if set, _ := x.Optional.IsSet(p, TypeString); set {
		t.Fatal("fresh optional is set")
	}
	if _, err := x.Optional.ValuePtr(p, TypeString); err == nil {
		t.Fatal("expected error reading unset optional")
	}
	payload, err := x.Optional.MarkSetAndGetPointer(p, TypeString)
	if err != nil {
		t.Fatal(err)
	}
	_ = x.String.Set(payload, EncodeString("value"))
	if set, _ := x.Optional.IsSet(p, TypeString); !set {
		t.Fatal("optional not set")
	}
	if err := x.Optional.MarkUnset(p, TypeString); err != nil {
		t.Fatal(err)
	}
	if live := e.Heap().Stats().LiveCount; live != baseline {
		t.Fatal("unset did not destroy payload")
	}
}

func TestInstancedStruct(t *testing.T) {
	e := newTestEngine(t)
	x := e.Exports()
	st, _ := e.DefineStruct("Named", 0, FieldSpec{Name: "Name", Type: TypeString})
	src := alloc(t, e, 12)
	_ = x.String.Set(src, EncodeString("copy me"))

	cell := alloc(t, e, InstancedSize)
	if err := x.Instanced.InitializeAs(cell, st, src); err != nil {
		t.Fatal(err)
	}
	got, _ := x.Instanced.StructType(cell)
	if got != st {
		t.Fatalf("StructType = %d", got)
	}
	mem, _ := x.Instanced.Memory(cell)
	units, _ := x.String.Get(mem)
	if DecodeString(units) != "copy me" {
		t.Fatalf("got %q", DecodeString(units))
	}

	other := alloc(t, e, InstancedSize)
	if err := x.Types.Copy(TypeInstancedStruct, other, cell); err != nil {
		t.Fatal(err)
	}
	if err := x.Instanced.Reset(cell); err != nil {
		t.Fatal(err)
	}
	mem, _ = x.Instanced.Memory(other)
	units, _ = x.String.Get(mem)
	if DecodeString(units) != "copy me" {
		t.Fatal("copy shares storage with the original")
	}

	if err := x.Instanced.InitializeAs(cell, TypeInt32, 0); err == nil {
		t.Fatal("expected type mismatch for non-struct type")
	}
}
