package marshal

import (
	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/native"
)

// Handler names a function on a target object. A zero Serial means the
// object currently at Target.
type Handler struct {
	Target   Ptr
	Serial   uint32
	Function string
}

// HandlerOf builds a handler for a wrapper.
func HandlerOf(h Handle, function string) Handler {
	out := Handler{Target: handlePtr(h), Function: function}
	if g, ok := h.(Generational); ok && out.Target != 0 {
		out.Serial = g.NativeSerial()
	}
	return out
}

// Same reports whether h and other name the same binding. Serials are only
// compared when both sides carry one.
func (h Handler) Same(other Handler) bool {
	if h.Target != other.Target || h.Function != other.Function {
		return false
	}
	return h.Serial == 0 || other.Serial == 0 || h.Serial == other.Serial
}

func toTarget(env *Env, h Handler) native.DelegateTarget {
	return native.DelegateTarget{Object: h.Target, Serial: h.Serial, Name: env.Native.Name.Find(h.Function)}
}

func fromTarget(env *Env, t native.DelegateTarget) (Handler, error) {
	if t.Object == 0 {
		return Handler{}, nil
	}
	name, err := env.Native.Name.String(t.Name)
	if err != nil {
		return Handler{}, err
	}
	return Handler{Target: t.Object, Serial: t.Serial, Function: name}, nil
}

// withParams marshals p into a scratch parameter block for the duration of fn.
func withParams[P any](env *Env, m Marshaller[P], p P, fn func(params Ptr) error) error {
	if m == nil {
		return fn(0)
	}
	scratch := NewScratch(env)
	defer scratch.Release()
	buf, err := scratch.Value(m.Type())
	if err != nil {
		return err
	}
	if err := m.ToNative(buf, 0, p); err != nil {
		return err
	}
	return fn(buf)
}

// Delegate is a live single-cast delegate slot. It holds at most one
// binding; Add refuses to replace an active one.
type Delegate[P any] struct {
	owned
	slot   Ptr
	params Marshaller[P]
}

// NewDelegate wraps the delegate at slot. params may be nil for functions
// without parameters.
func NewDelegate[P any](env *Env, slot Ptr, params Marshaller[P]) *Delegate[P] {
	return &Delegate[P]{owned: owned{env: env}, slot: slot, params: params}
}

func (d *Delegate[P]) IsBound() (bool, error) {
	if err := d.check(); err != nil {
		return false, err
	}
	return d.env.Native.Delegate.IsBound(d.slot)
}

// Handler returns the current binding, which may target a destroyed object.
func (d *Delegate[P]) Handler() (Handler, error) {
	if err := d.check(); err != nil {
		return Handler{}, err
	}
	t, err := d.env.Native.Delegate.Get(d.slot)
	if err != nil {
		return Handler{}, err
	}
	return fromTarget(d.env, t)
}

// BindUFunction overwrites the binding.
func (d *Delegate[P]) BindUFunction(target Ptr, function string) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.env.Native.Delegate.Bind(d.slot, toTarget(d.env, Handler{Target: target, Function: function}))
}

// Add binds h. It fails with an invalid operation error while bound.
func (d *Delegate[P]) Add(h Handler) error {
	bound, err := d.IsBound()
	if err != nil {
		return err
	}
	if bound {
		return errors.InvalidOperation(errors.PhaseRuntime, "delegate is already bound to %s", h.Function)
	}
	return d.env.Native.Delegate.Bind(d.slot, toTarget(d.env, h))
}

// Remove unbinds h if it is the current binding; otherwise it does nothing.
func (d *Delegate[P]) Remove(h Handler) error {
	if err := d.check(); err != nil {
		return err
	}
	cur, err := d.Handler()
	if err != nil {
		return err
	}
	if h.Serial == 0 && h.Target != 0 {
		h.Serial, _ = d.env.Native.Object.Serial(h.Target)
	}
	if cur.Target == 0 || !cur.Same(h) {
		return nil
	}
	return d.env.Native.Delegate.Clear(d.slot)
}

func (d *Delegate[P]) Clear() error {
	if err := d.check(); err != nil {
		return err
	}
	return d.env.Native.Delegate.Clear(d.slot)
}

// Invoke calls the bound function. A destroyed target is logged and skipped.
func (d *Delegate[P]) Invoke(p P) error {
	if err := d.check(); err != nil {
		return err
	}
	t, err := d.env.Native.Delegate.Get(d.slot)
	if err != nil || t.Object == 0 {
		return err
	}
	return withParams(d.env, d.params, p, func(params Ptr) error {
		ran, err := d.env.Native.Delegate.Execute(d.slot, params)
		if !ran && err == nil {
			Logger().Warn("delegate target destroyed, invocation skipped",
				zap.Uint32("target", t.Object),
				zap.Uint32("function", t.Name))
		}
		return err
	})
}

// MulticastDelegate is a live multicast delegate slot. The invocation list
// lives only in native memory, so every wrapper of the slot sees the same set.
type MulticastDelegate[P any] struct {
	owned
	slot   Ptr
	params Marshaller[P]
}

// NewMulticastDelegate wraps the multicast delegate at slot.
func NewMulticastDelegate[P any](env *Env, slot Ptr, params Marshaller[P]) *MulticastDelegate[P] {
	return &MulticastDelegate[P]{owned: owned{env: env}, slot: slot, params: params}
}

// Add binds h unless it is already bound.
func (d *MulticastDelegate[P]) Add(h Handler) error {
	if err := d.check(); err != nil {
		return err
	}
	if h.Target == 0 {
		return errors.NilPointer(errors.PhaseRuntime, nil, "delegate target")
	}
	return d.env.Native.Multicast.Add(d.slot, toTarget(d.env, h))
}

func (d *MulticastDelegate[P]) Remove(h Handler) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.env.Native.Multicast.Remove(d.slot, toTarget(d.env, h))
}

func (d *MulticastDelegate[P]) Contains(h Handler) (bool, error) {
	if err := d.check(); err != nil {
		return false, err
	}
	return d.env.Native.Multicast.Contains(d.slot, toTarget(d.env, h))
}

func (d *MulticastDelegate[P]) Clear() error {
	if err := d.check(); err != nil {
		return err
	}
	return d.env.Native.Multicast.Clear(d.slot)
}

// Len counts bindings, including those whose target has been destroyed.
func (d *MulticastDelegate[P]) Len() (int, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	return d.env.Native.Multicast.Num(d.slot)
}

// Handlers lists the current bindings.
func (d *MulticastDelegate[P]) Handlers() ([]Handler, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	targets, err := d.env.Native.Multicast.Targets(d.slot)
	if err != nil {
		return nil, err
	}
	out := make([]Handler, 0, len(targets))
	for _, t := range targets {
		h, err := fromTarget(d.env, t)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Broadcast invokes every live binding and returns how many ran.
func (d *MulticastDelegate[P]) Broadcast(p P) (int, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	invoked := 0
	err := withParams(d.env, d.params, p, func(params Ptr) error {
		var err error
		invoked, err = d.env.Native.Multicast.Broadcast(d.slot, params)
		return err
	})
	if total, lerr := d.env.Native.Multicast.Num(d.slot); lerr == nil && total > invoked {
		Logger().Debug("broadcast skipped destroyed targets", zap.Int("skipped", total-invoked))
	}
	return invoked, err
}

// HandlerMarshaller copies a single-cast delegate binding as a Handler value.
type HandlerMarshaller struct {
	base
}

func DelegateHandler(env *Env) HandlerMarshaller {
	return HandlerMarshaller{base{env: env, id: native.TypeDelegate, size: native.DelegateSize, name: "delegate"}}
}

func (m HandlerMarshaller) ToNative(buf Ptr, index int, v Handler) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	if v.Target == 0 {
		return m.env.Native.Delegate.Clear(p)
	}
	return m.env.Native.Delegate.Bind(p, toTarget(m.env, v))
}

func (m HandlerMarshaller) FromNative(buf Ptr, index int) (Handler, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return Handler{}, err
	}
	t, err := m.env.Native.Delegate.Get(p)
	if err != nil {
		return Handler{}, err
	}
	return fromTarget(m.env, t)
}

// DelegateMarshaller hands out live single-cast delegates.
type DelegateMarshaller[P any] struct {
	base
	params Marshaller[P]
}

func Delegates[P any](env *Env, params Marshaller[P]) *DelegateMarshaller[P] {
	return &DelegateMarshaller[P]{
		base:   base{env: env, id: native.TypeDelegate, size: native.DelegateSize, name: "delegate"},
		params: params,
	}
}

func (m *DelegateMarshaller[P]) FromNative(buf Ptr, index int) (*Delegate[P], error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return nil, err
	}
	return NewDelegate(m.env, p, m.params), nil
}

// ToNative copies the binding of v; nil clears the slot.
func (m *DelegateMarshaller[P]) ToNative(buf Ptr, index int, v *Delegate[P]) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	if v == nil {
		return m.env.Native.Delegate.Clear(p)
	}
	return m.env.Native.Types.Copy(m.id, p, v.slot)
}

// MulticastMarshaller hands out live multicast delegates.
type MulticastMarshaller[P any] struct {
	base
	params Marshaller[P]
}

func Multicasts[P any](env *Env, params Marshaller[P]) *MulticastMarshaller[P] {
	return &MulticastMarshaller[P]{
		base:   base{env: env, id: native.TypeMulticastDelegate, size: native.ArrayHeaderSize, name: "multicast_delegate"},
		params: params,
	}
}

func (m *MulticastMarshaller[P]) FromNative(buf Ptr, index int) (*MulticastDelegate[P], error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return nil, err
	}
	return NewMulticastDelegate(m.env, p, m.params), nil
}

// ToNative copies the invocation list of v; nil clears the slot.
func (m *MulticastMarshaller[P]) ToNative(buf Ptr, index int, v *MulticastDelegate[P]) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	if v == nil {
		return m.env.Native.Multicast.Clear(p)
	}
	return m.env.Native.Types.Copy(m.id, p, v.slot)
}
