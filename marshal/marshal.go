package marshal

import (
	"reflect"

	nativebind "github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/marshal/internal/layout"
	"github.com/wippyai/nativebind/native"
)

// Ptr is a native heap address.
type Ptr = nativebind.Ptr

// Env is what every marshaller needs: the heap and the native function table.
type Env struct {
	Mem    nativebind.Memory
	Native *native.Exports
}

// NewEnv binds an environment to an engine.
func NewEnv(e *native.Engine) *Env {
	return &Env{Mem: e.Memory(), Native: e.Exports()}
}

// Marshaller converts between a Go value and its native representation at
// buf + index*Size().
type Marshaller[T any] interface {
	Type() native.TypeID
	Size() uint32
	ToNative(buf Ptr, index int, v T) error
	FromNative(buf Ptr, index int) (T, error)
}

// Destructor releases what a native slot owns. Call it before a slot that
// holds strings, containers or other owning values is discarded.
type Destructor interface {
	DestructInstance(buf Ptr, index int) error
}

// OwnerBinder is implemented by live views so that every access can first
// check that the owning object is still alive.
type OwnerBinder interface {
	BindOwner(owner Ptr)
}

// base carries the native type of a marshaller.
type base struct {
	env  *Env
	id   native.TypeID
	size uint32
	name string
}

func newBase(env *Env, id native.TypeID) (base, error) {
	info, err := env.Native.Types.Info(id)
	if err != nil {
		return base{}, errors.Wrap(errors.PhaseRegister, errors.KindNotFound, err, "resolve native type")
	}
	return base{env: env, id: id, size: info.Size, name: info.Name}, nil
}

func (b base) Type() native.TypeID { return b.id }

func (b base) Size() uint32 { return b.size }

func (b base) slot(buf Ptr, index int) (Ptr, error) {
	return layout.Element(buf, index, b.size)
}

// DestructInstance runs the native destructor of the slot.
func (b base) DestructInstance(buf Ptr, index int) error {
	p, err := b.slot(buf, index)
	if err != nil {
		return err
	}
	return b.env.Native.Types.Destroy(b.id, p)
}

// checkElement verifies an inner marshaller against the native layout of its type.
func checkElement(env *Env, path string, size uint32, id native.TypeID) error {
	info, err := env.Native.Types.Info(id)
	if err != nil {
		return errors.Wrap(errors.PhaseRegister, errors.KindNotFound, err, "resolve element type of "+path)
	}
	return layout.CheckStride([]string{path}, info.Name, size, info.Size)
}

// owned tracks the object a live view belongs to. The serial is taken at
// bind time, so a new object at the owner's address does not revive the view.
type owned struct {
	env    *Env
	owner  Ptr
	serial uint32
}

// BindOwner makes every later access fail once owner is destroyed. Binding
// to an object that is already gone leaves the view permanently dead.
func (o *owned) BindOwner(owner Ptr) {
	o.owner = owner
	o.serial, _ = o.env.Native.Object.Serial(owner)
}

func (o *owned) check() error {
	if o.owner != 0 && !o.env.Native.Object.IsAlive(o.owner, o.serial) {
		return errors.ObjectDestroyed(errors.PhaseRuntime, o.owner, "owning object")
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
