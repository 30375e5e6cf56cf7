package bridge

import (
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/marshal"
	"github.com/wippyai/nativebind/native"
)

// Func is a typed binding of a class function. P mirrors the native
// parameter block; fields the native function writes back are visible in
// the value Call returns.
type Func[P any] struct {
	class  *native.Class
	fn     *native.Function
	params *marshal.StructMarshaller[P]
}

// BindFunc binds the function name of cls. fields map P's members onto the
// native parameter block.
func BindFunc[P any](rt *Runtime, cls *native.Class, name string, fields ...marshal.FieldBinding[P]) (*Func[P], error) {
	if cls == nil {
		return nil, errors.NilPointer(errors.PhaseRegister, nil, "class")
	}
	fn, ok := cls.Function(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRegister, "function", cls.Name+"."+name)
	}
	f := &Func[P]{class: cls, fn: fn}
	if fn.Params.Size == 0 {
		if len(fields) > 0 {
			return nil, errors.InvalidInput(errors.PhaseRegister, cls.Name+"."+name+" takes no parameters")
		}
		return f, nil
	}
	m, err := marshal.Struct[P](rt.env, fn.Params.ID, fields...)
	if err != nil {
		return nil, err
	}
	f.params = m
	return f, nil
}

// Call invokes the function on o with p and returns the parameter block as
// the function left it.
func (f *Func[P]) Call(o *Object, p P) (P, error) {
	var out P
	if err := o.check(); err != nil {
		return out, err
	}
	if o.class != f.class {
		return out, errors.TypeMismatch(errors.PhaseRuntime, []string{f.class.Name, f.fn.Name}, o.class.Name, f.class.Name)
	}
	var fill, read func(Ptr) error
	if f.params != nil {
		fill = func(params Ptr) error { return f.params.ToNative(params, 0, p) }
		read = func(params Ptr) (err error) {
			out, err = f.params.FromNative(params, 0)
			return err
		}
	}
	err := o.rt.engine.Call(o.ptr, f.fn, fill, read)
	return out, err
}

// Invoke calls a function that takes no parameters.
func (o *Object) Invoke(name string) error {
	if err := o.check(); err != nil {
		return err
	}
	fn, ok := o.class.Function(name)
	if !ok {
		return errors.NotFound(errors.PhaseRuntime, "function", o.class.Name+"."+name)
	}
	if fn.Params.Size != 0 {
		return errors.InvalidOperation(errors.PhaseRuntime, "%s.%s takes parameters; bind it with BindFunc", o.class.Name, name)
	}
	return o.rt.engine.Call(o.ptr, fn, nil, nil)
}
