package native

import (
	goerrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
)

// Delegate: {object u32, object serial u32, function name u32}. The serial
// makes the binding a weak reference that a reused address cannot satisfy.
const (
	dlgObject = 0
	dlgSerial = 4
	dlgName   = 8
)

// DelegateTarget is one bound (object, function) pair. A zero Serial is
// filled from the live object when binding and matches any serial when
// searching a multicast list.
type DelegateTarget struct {
	Object Ptr
	Serial uint32
	Name   uint32
}

func (e *Engine) delegateGet(p Ptr) (DelegateTarget, error) {
	a := e.acc()
	t := DelegateTarget{
		Object: a.u32(p + dlgObject),
		Serial: a.u32(p + dlgSerial),
		Name:   a.u32(p + dlgName),
	}
	return t, a.err
}

// resolveTarget pins t to the serial of the object it names.
func (e *Engine) resolveTarget(t DelegateTarget) (DelegateTarget, error) {
	if t.Object == 0 {
		return t, errors.NilPointer(errors.PhaseNative, nil, "delegate target")
	}
	serial, ok := e.Serial(t.Object)
	if !ok || (t.Serial != 0 && t.Serial != serial) {
		return t, errors.ObjectDestroyed(errors.PhaseNative, t.Object, "delegate target")
	}
	t.Serial = serial
	return t, nil
}

func (e *Engine) delegateBind(p Ptr, t DelegateTarget) error {
	t, err := e.resolveTarget(t)
	if err != nil {
		return err
	}
	return e.delegateWrite(p, t)
}

func (e *Engine) delegateWrite(p Ptr, t DelegateTarget) error {
	a := e.acc()
	a.setU32(p+dlgObject, t.Object)
	a.setU32(p+dlgSerial, t.Serial)
	a.setU32(p+dlgName, t.Name)
	return a.err
}

func (e *Engine) delegateClear(p Ptr) error {
	a := e.acc()
	a.zero(p, DelegateSize)
	return a.err
}

func (e *Engine) targetAlive(t DelegateTarget) bool {
	return t.Object != 0 && e.IsAlive(t.Object, t.Serial)
}

// delegateIsBound reports whether the delegate targets a live object.
func (e *Engine) delegateIsBound(p Ptr) (bool, error) {
	t, err := e.delegateGet(p)
	if err != nil {
		return false, err
	}
	return e.targetAlive(t), nil
}

// delegateExecute invokes the target if it is still alive. It reports whether
// anything ran; a dead target is not an error.
func (e *Engine) delegateExecute(p, params Ptr) (bool, error) {
	t, err := e.delegateGet(p)
	if err != nil {
		return false, err
	}
	if t.Object == 0 {
		return false, nil
	}
	if !e.targetAlive(t) {
		Logger().Debug("delegate target destroyed",
			zap.Uint32("object", t.Object),
			zap.Uint32("serial", t.Serial))
		return false, nil
	}
	return true, e.ProcessEvent(t.Object, t.Name, params)
}

func (e *Engine) multicastTargets(p Ptr) ([]DelegateTarget, error) {
	data, num, _, err := e.arrayHeader(p)
	if err != nil {
		return nil, err
	}
	out := make([]DelegateTarget, 0, num)
	for i := 0; i < num; i++ {
		t, err := e.delegateGet(data + uint32(i)*DelegateSize)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// multicastIndex finds t in the list. When t carries no serial it names the
// live object at t.Object, or any binding of that address once it is dead.
func (e *Engine) multicastIndex(p Ptr, t DelegateTarget) (int, error) {
	targets, err := e.multicastTargets(p)
	if err != nil {
		return -1, err
	}
	if t.Serial == 0 {
		t.Serial, _ = e.Serial(t.Object)
	}
	for i, cur := range targets {
		if cur.Object == t.Object && cur.Name == t.Name && (t.Serial == 0 || cur.Serial == t.Serial) {
			return i, nil
		}
	}
	return -1, nil
}

// multicastAdd appends t unless it is already bound.
func (e *Engine) multicastAdd(p Ptr, t DelegateTarget) error {
	t, err := e.resolveTarget(t)
	if err != nil {
		return err
	}
	i, err := e.multicastIndex(p, t)
	if err != nil || i >= 0 {
		return err
	}
	at, err := e.arrayAddUninitialized(p, TypeDelegate, 1)
	if err != nil {
		return err
	}
	data, err := e.arrayData(p)
	if err != nil {
		return err
	}
	return e.delegateWrite(data+uint32(at)*DelegateSize, t)
}

// multicastRemove unbinds t; absent targets are ignored.
func (e *Engine) multicastRemove(p Ptr, t DelegateTarget) error {
	i, err := e.multicastIndex(p, t)
	if err != nil || i < 0 {
		return err
	}
	return e.arrayRemoveAt(p, TypeDelegate, i, 1)
}

func (e *Engine) multicastContains(p Ptr, t DelegateTarget) (bool, error) {
	i, err := e.multicastIndex(p, t)
	return i >= 0, err
}

// multicastBroadcast invokes every live target over a snapshot of the list,
// so handlers may rebind during dispatch. Dead targets are skipped.
func (e *Engine) multicastBroadcast(p, params Ptr) (int, error) {
	targets, err := e.multicastTargets(p)
	if err != nil {
		return 0, err
	}
	var errs []error
	invoked := 0
	for _, t := range targets {
		if !e.targetAlive(t) {
			continue
		}
		invoked++
		if err := e.ProcessEvent(t.Object, t.Name, params); err != nil {
			errs = append(errs, err)
		}
	}
	return invoked, goerrors.Join(errs...)
}
