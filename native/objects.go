package native

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
)

// ClassID identifies a registered class.
type ClassID uint32

// InterfaceID identifies a registered interface.
type InterfaceID uint32

// Every object starts with {class u32, flags u32}.
const (
	objClass      = 0
	objFlags      = 4
	objHeaderSize = 8

	flagDefault = 1 << 0
)

// NativeFunc is the native implementation of a class function.
type NativeFunc func(c Call) error

// FunctionSpec declares a class function and its parameter block.
type FunctionSpec struct {
	Name   string
	Params []FieldSpec
	Impl   NativeFunc
}

// ClassSpec declares a class.
type ClassSpec struct {
	Name       string
	Module     ModuleID
	Properties []FieldSpec
	Functions  []FunctionSpec
	Interfaces []InterfaceID
	// ModuleOwned objects are kept alive by their module rather than by host references.
	ModuleOwned bool
}

// Function is a registered class function.
type Function struct {
	Name string
	// NameIndex is the interned name used by delegates.
	NameIndex uint32
	Params    *TypeInfo
	impl      NativeFunc
}

// Class is a registered native class.
type Class struct {
	Name        string
	ID          ClassID
	Module      ModuleID
	ModuleOwned bool
	// Layout describes the whole object, header included.
	Layout *TypeInfo
	// Default is the class default object.
	Default Ptr

	functions map[uint32]*Function
	vtables   map[InterfaceID]Ptr
}

// Function returns the named function.
func (c *Class) Function(name string) (*Function, bool) {
	for _, f := range c.functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Functions lists function names in sorted order.
func (c *Class) Functions() []string {
	out := make([]string, 0, len(c.functions))
	for _, f := range c.functions {
		out = append(out, f.Name)
	}
	sort.Strings(out)
	return out
}

// Properties lists user-visible properties in layout order.
func (c *Class) Properties() []Field {
	return c.Layout.Fields[2:]
}

// Property returns a user-visible property.
func (c *Class) Property(name string) (Field, bool) {
	for _, f := range c.Properties() {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Call is the context passed to a native function.
type Call struct {
	Engine   *Engine
	Self     Ptr
	Function *Function
	// Params points at the parameter block laid out as Function.Params.
	Params Ptr
}

// Param returns the address of a named parameter.
func (c Call) Param(name string) (Ptr, error) {
	if c.Function.Params == nil {
		return 0, errors.NotFound(errors.PhaseNative, "parameter", name)
	}
	f, ok := c.Function.Params.Field(name)
	if !ok {
		return 0, errors.NotFound(errors.PhaseNative, "parameter", name)
	}
	return c.Params + f.Offset, nil
}

type interfaceInfo struct {
	name   string
	module ModuleID
}

// objectRecord is the engine's bookkeeping for a live object. serial is
// unique per allocation, so a reused address never matches an older serial.
type objectRecord struct {
	class  *Class
	serial uint32
}

// DefineInterface registers an interface type.
func (e *Engine) DefineInterface(name string, module ModuleID) (InterfaceID, error) {
	if err := e.checkModule(module); err != nil {
		return 0, err
	}
	e.nextIface++
	id := e.nextIface
	e.interfaces[id] = &interfaceInfo{name: name, module: module}
	return id, nil
}

// DefineClass registers a class and constructs its default object.
func (e *Engine) DefineClass(spec ClassSpec) (*Class, error) {
	if err := e.checkModule(spec.Module); err != nil {
		return nil, err
	}
	if _, dup := e.classNames[spec.Name]; dup {
		return nil, errors.InvalidInput(errors.PhaseNative, "class "+spec.Name+" already defined")
	}

	fields := append([]FieldSpec{
		{Name: "$class", Type: TypeUint32},
		{Name: "$flags", Type: TypeUint32},
	}, spec.Properties...)
	layout, err := e.layoutStruct(spec.Name, spec.Module, fields)
	if err != nil {
		return nil, err
	}

	e.nextClass++
	cls := &Class{
		Name:        spec.Name,
		ID:          e.nextClass,
		Module:      spec.Module,
		ModuleOwned: spec.ModuleOwned,
		Layout:      layout,
		functions:   make(map[uint32]*Function, len(spec.Functions)),
		vtables:     make(map[InterfaceID]Ptr, len(spec.Interfaces)),
	}

	for _, fs := range spec.Functions {
		params, err := e.layoutStruct(spec.Name+"."+fs.Name, spec.Module, fs.Params)
		if err != nil {
			e.freeVTables(cls)
			return nil, err
		}
		e.types.add(params)
		fn := &Function{Name: fs.Name, NameIndex: e.names.intern(fs.Name), Params: params, impl: fs.Impl}
		cls.functions[fn.NameIndex] = fn
	}
	for _, id := range spec.Interfaces {
		if _, ok := e.interfaces[id]; !ok {
			e.freeVTables(cls)
			return nil, errors.NotFound(errors.PhaseNative, "interface", fmt.Sprint(id))
		}
		vt, err := e.heap.Alloc(4, 4)
		if err != nil {
			e.freeVTables(cls)
			return nil, err
		}
		a := e.acc()
		a.setU32(vt, uint32(id))
		if a.err != nil {
			e.freeVTables(cls)
			return nil, a.err
		}
		cls.vtables[id] = vt
	}

	e.classes[cls.ID] = cls
	e.classNames[cls.Name] = cls.ID

	cdo, err := e.newObject(cls, flagDefault)
	if err != nil {
		delete(e.classes, cls.ID)
		delete(e.classNames, cls.Name)
		e.freeVTables(cls)
		return nil, err
	}
	cls.Default = cdo

	Logger().Debug("class defined",
		zap.String("class", cls.Name),
		zap.Uint32("id", uint32(cls.ID)),
		zap.Uint32("size", layout.Size),
		zap.Uint32("module", uint32(cls.Module)))
	return cls, nil
}

func (e *Engine) freeVTables(cls *Class) {
	for _, vt := range cls.vtables {
		e.heap.Free(vt, 4, 4)
	}
	cls.vtables = nil
}

// FindClass returns a class by name.
func (e *Engine) FindClass(name string) (*Class, bool) {
	id, ok := e.classNames[name]
	if !ok {
		return nil, false
	}
	return e.classes[id], true
}

// Class returns a class by ID.
func (e *Engine) Class(id ClassID) (*Class, bool) {
	cls, ok := e.classes[id]
	return cls, ok
}

// NewObject allocates and default-initializes an instance of cls.
func (e *Engine) NewObject(cls *Class) (Ptr, error) {
	if _, ok := e.classes[cls.ID]; !ok {
		return 0, errors.NotFound(errors.PhaseNative, "class", cls.Name)
	}
	return e.newObject(cls, 0)
}

func (e *Engine) newObject(cls *Class, flags uint32) (Ptr, error) {
	size := max(cls.Layout.Size, objHeaderSize)
	obj, err := e.heap.Alloc(size, max(cls.Layout.Align, 4))
	if err != nil {
		return 0, err
	}
	a := e.acc()
	a.zero(obj, size)
	a.setU32(obj+objClass, uint32(cls.ID))
	a.setU32(obj+objFlags, flags)
	if a.err != nil {
		e.heap.Free(obj, size, max(cls.Layout.Align, 4))
		return 0, a.err
	}
	e.nextSerial++
	if e.nextSerial == 0 {
		e.nextSerial = 1
	}
	e.objects[obj] = &objectRecord{class: cls, serial: e.nextSerial}
	return obj, nil
}

// DestroyObject destroys obj and notifies destroy listeners before its memory is released.
func (e *Engine) DestroyObject(obj Ptr) error {
	rec, ok := e.objects[obj]
	if !ok {
		return errors.ObjectDestroyed(errors.PhaseNative, obj, "object")
	}
	for _, l := range e.destroyListeners {
		l(obj)
	}
	delete(e.objects, obj)

	cls := rec.class
	var firstErr error
	for _, f := range cls.Properties() {
		ft, err := e.types.get(f.Type)
		if err == nil {
			err = e.destroy(ft, obj+f.Offset)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.heap.Free(obj, max(cls.Layout.Size, objHeaderSize), max(cls.Layout.Align, 4))
	return firstErr
}

// OnDestroy registers a listener invoked with every destroyed object pointer.
func (e *Engine) OnDestroy(fn func(obj Ptr)) {
	e.destroyListeners = append(e.destroyListeners, fn)
}

// IsValid reports whether some live object occupies obj. The address may
// have been reused since a caller last saw it; use IsAlive to tell.
func (e *Engine) IsValid(obj Ptr) bool {
	_, ok := e.objects[obj]
	return ok
}

// Serial returns the serial number of the live object at obj.
func (e *Engine) Serial(obj Ptr) (uint32, bool) {
	rec, ok := e.objects[obj]
	if !ok {
		return 0, false
	}
	return rec.serial, true
}

// IsAlive reports whether the object that was given serial still lives at obj.
func (e *Engine) IsAlive(obj Ptr, serial uint32) bool {
	rec, ok := e.objects[obj]
	return ok && rec.serial == serial
}

// IsDefaultObject reports whether obj is a class default object.
func (e *Engine) IsDefaultObject(obj Ptr) bool {
	rec, ok := e.objects[obj]
	return ok && rec.class.Default == obj
}

// ClassOf returns the class of a live object.
func (e *Engine) ClassOf(obj Ptr) (*Class, error) {
	rec, ok := e.objects[obj]
	if !ok {
		return nil, errors.ObjectDestroyed(errors.PhaseNative, obj, "object")
	}
	return rec.class, nil
}

// Objects lists live objects in address order.
func (e *Engine) Objects() []Ptr {
	out := make([]Ptr, 0, len(e.objects))
	for p := range e.objects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InterfaceOf returns the interface table of obj for iface, or zero when the
// class does not implement it.
func (e *Engine) InterfaceOf(obj Ptr, iface InterfaceID) (Ptr, error) {
	cls, err := e.ClassOf(obj)
	if err != nil {
		return 0, err
	}
	return cls.vtables[iface], nil
}

// InterfaceName returns the registered name of iface.
func (e *Engine) InterfaceName(iface InterfaceID) (string, bool) {
	info, ok := e.interfaces[iface]
	if !ok {
		return "", false
	}
	return info.name, true
}

// ProcessEvent invokes the function named by the interned name index on obj.
func (e *Engine) ProcessEvent(obj Ptr, name uint32, params Ptr) error {
	cls, err := e.ClassOf(obj)
	if err != nil {
		return err
	}
	fn, ok := cls.functions[name]
	if !ok {
		fnName, _ := e.names.lookup(name)
		return errors.NotFound(errors.PhaseNative, "function", cls.Name+"."+fnName)
	}
	if fn.impl == nil {
		return nil
	}
	return fn.impl(Call{Engine: e, Self: obj, Function: fn, Params: params})
}

// Call allocates a parameter block, lets fill populate it, invokes the
// function and lets read inspect the block before it is destroyed.
func (e *Engine) Call(obj Ptr, fn *Function, fill, read func(params Ptr) error) error {
	var params Ptr
	if fn.Params.Size > 0 {
		p, err := e.heap.Alloc(fn.Params.Size, max(fn.Params.Align, 1))
		if err != nil {
			return err
		}
		params = p
		defer func() {
			_ = e.destroy(fn.Params, params)
			e.heap.Free(params, fn.Params.Size, max(fn.Params.Align, 1))
		}()
	}
	if fill != nil {
		if err := fill(params); err != nil {
			return err
		}
	}
	if err := e.ProcessEvent(obj, fn.NameIndex, params); err != nil {
		return err
	}
	if read != nil {
		return read(params)
	}
	return nil
}

// RegisterModule adds a loadable module.
func (e *Engine) RegisterModule(name string) ModuleID {
	e.nextModule++
	id := e.nextModule
	e.modules[id] = name
	Logger().Debug("module registered", zap.String("module", name), zap.Uint32("id", uint32(id)))
	return id
}

// ModuleName returns the name of a registered module.
func (e *Engine) ModuleName(id ModuleID) (string, bool) {
	if id == 0 {
		return "core", true
	}
	name, ok := e.modules[id]
	return name, ok
}

// UnregisterModule destroys every object of the module's classes, then its
// classes, interfaces and types.
func (e *Engine) UnregisterModule(id ModuleID) error {
	if id == 0 {
		return errors.InvalidOperation(errors.PhaseNative, "the core module cannot be unloaded")
	}
	name, ok := e.modules[id]
	if !ok {
		return errors.NotFound(errors.PhaseNative, "module", fmt.Sprint(id))
	}

	var errs []error
	destroyed := 0
	for _, obj := range e.Objects() {
		rec := e.objects[obj]
		if rec.class.Module != id {
			continue
		}
		if err := e.DestroyObject(obj); err != nil {
			errs = append(errs, err)
		}
		destroyed++
	}
	for cid, cls := range e.classes {
		if cls.Module != id {
			continue
		}
		e.freeVTables(cls)
		delete(e.classes, cid)
		delete(e.classNames, cls.Name)
	}
	for iid, info := range e.interfaces {
		if info.module == id {
			delete(e.interfaces, iid)
		}
	}
	types := e.types.removeModule(id)
	delete(e.modules, id)

	Logger().Debug("module unregistered",
		zap.String("module", name),
		zap.Int("objects", destroyed),
		zap.Int("types", types))
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (e *Engine) checkModule(module ModuleID) error {
	if module == 0 {
		return nil
	}
	if _, ok := e.modules[module]; !ok {
		return errors.NotFound(errors.PhaseNative, "module", fmt.Sprint(module))
	}
	return nil
}
