package bridge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/handle"
	"github.com/wippyai/nativebind/marshal"
	"github.com/wippyai/nativebind/native"
)

// Object is the Go wrapper of a native object. It does not keep the native
// object alive; every access re-checks liveness and a destroyed object
// reports an ObjectDestroyed error. The native serial number ties the wrapper
// to one object, so a later object allocated at the same address is never
// reached through it.
type Object struct {
	rt     *Runtime
	ptr    Ptr
	serial uint32
	class  *native.Class
	handle handle.Handle
}

// NativePtr returns the native address, or zero for a nil wrapper.
func (o *Object) NativePtr() Ptr {
	if o == nil {
		return 0
	}
	return o.ptr
}

// NativeSerial returns the serial number of the wrapped native object.
func (o *Object) NativeSerial() uint32 {
	if o == nil {
		return 0
	}
	return o.serial
}

// Class returns the class the object was materialized with.
func (o *Object) Class() *native.Class { return o.class }

// Handle returns the association handle.
func (o *Object) Handle() handle.Handle { return o.handle }

// IsValid reports whether the native object still exists.
func (o *Object) IsValid() bool {
	return o != nil && o.ptr != 0 && o.rt.engine.IsAlive(o.ptr, o.serial)
}

// IsDefault reports whether this is a class default object.
func (o *Object) IsDefault() bool {
	return o.IsValid() && o.rt.engine.IsDefaultObject(o.ptr)
}

func (o *Object) check() error {
	if o == nil || o.ptr == 0 {
		return errors.NilPointer(errors.PhaseRuntime, nil, "object")
	}
	if err := o.rt.checkThread("access to " + o.class.Name); err != nil {
		return err
	}
	if !o.rt.engine.IsAlive(o.ptr, o.serial) {
		return errors.ObjectDestroyed(errors.PhaseRuntime, o.ptr, o.class.Name)
	}
	return nil
}

// Destroy destroys the native object. Its association is dropped by the
// engine's destroy notification.
func (o *Object) Destroy() error {
	if err := o.check(); err != nil {
		return err
	}
	if o.rt.engine.IsDefaultObject(o.ptr) {
		return errors.InvalidOperation(errors.PhaseRuntime, "cannot destroy the default object of %s", o.class.Name)
	}
	return o.rt.engine.DestroyObject(o.ptr)
}

// Pin roots the wrapper in the association table.
func (o *Object) Pin() error {
	if err := o.check(); err != nil {
		return err
	}
	return o.rt.handles.Pin(o.handle)
}

// Release drops the strong rooting; the wrapper may then be collected.
func (o *Object) Release() error {
	return o.rt.handles.Release(o.handle)
}

func (o *Object) String() string {
	if o == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s@0x%08x", o.class.Name, o.ptr)
}

// Spawn creates a native object of cls and returns its wrapper.
func (r *Runtime) Spawn(cls *native.Class) (*Object, error) {
	if cls == nil {
		return nil, errors.NilPointer(errors.PhaseRuntime, nil, "class")
	}
	if err := r.checkThread("Spawn"); err != nil {
		return nil, err
	}
	ptr, err := r.engine.NewObject(cls)
	if err != nil {
		return nil, err
	}
	return r.associate(ptr, cls)
}

// Lookup returns the registered wrapper of ptr, or nil. A nil result means
// the object was never materialized or its wrapper was collected.
func (r *Runtime) Lookup(ptr Ptr) *Object {
	return r.handles.Lookup(ptr)
}

// Resolver adapts Lookup for object and interface marshallers.
func (r *Runtime) Resolver() marshal.Resolver[*Object] {
	return marshal.ResolverFunc[*Object](r.Lookup)
}

// Materialize returns the wrapper of ptr, creating one if none is
// registered. Default objects and objects of module-owned classes are
// associated strongly; everything else is weak.
func (r *Runtime) Materialize(ptr Ptr) (*Object, error) {
	if ptr == 0 {
		return nil, errors.NilPointer(errors.PhaseRuntime, nil, "native object")
	}
	if err := r.checkThread("Materialize"); err != nil {
		return nil, err
	}
	if o := r.handles.Lookup(ptr); o.IsValid() {
		return o, nil
	}
	cls, err := r.engine.ClassOf(ptr)
	if err != nil {
		return nil, err
	}
	return r.associate(ptr, cls)
}

func (r *Runtime) associate(ptr Ptr, cls *native.Class) (*Object, error) {
	serial, ok := r.engine.Serial(ptr)
	if !ok {
		return nil, errors.ObjectDestroyed(errors.PhaseRuntime, ptr, cls.Name)
	}
	o := &Object{rt: r, ptr: ptr, serial: serial, class: cls}
	strong := cls.ModuleOwned || r.engine.IsDefaultObject(ptr)
	h, err := r.handles.Associate(ptr, o, strong, cls.Module)
	if err != nil {
		return nil, err
	}
	o.handle = h
	Logger().Debug("object materialized",
		zap.String("class", cls.Name),
		zap.Uint32("ptr", ptr),
		zap.Uint32("serial", serial),
		zap.Bool("strong", strong))
	return o, nil
}

// DefaultObject returns the wrapper of cls's default object.
func (r *Runtime) DefaultObject(cls *native.Class) (*Object, error) {
	return r.Materialize(cls.Default)
}

// SnapshotEntry describes one association for debugging.
type SnapshotEntry struct {
	Handle uint64 `cbor:"handle"`
	Ptr    uint32 `cbor:"ptr"`
	Class  string `cbor:"class"`
	Module string `cbor:"module"`
	Strong bool   `cbor:"strong"`
	// Alive is false when a weak wrapper was collected but not swept.
	Alive bool `cbor:"alive"`
	// Valid is false when the native object no longer exists.
	Valid bool `cbor:"valid"`
}

// Snapshot lists every association. It reads native class metadata and
// belongs on the game thread.
func (r *Runtime) Snapshot() []SnapshotEntry {
	entries := r.handles.Entries()
	out := make([]SnapshotEntry, 0, len(entries))
	for _, e := range entries {
		s := SnapshotEntry{
			Handle: uint64(e.Handle),
			Ptr:    e.Native,
			Strong: e.Strong,
			Alive:  e.Alive,
			Valid:  r.engine.IsValid(e.Native),
		}
		if cls, err := r.engine.ClassOf(e.Native); err == nil {
			s.Class = cls.Name
		}
		s.Module, _ = r.engine.ModuleName(e.Module)
		out = append(out, s)
	}
	return out
}
