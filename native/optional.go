package native

import (
	"github.com/wippyai/nativebind/errors"
)

func (e *Engine) optionalFlag(elem TypeID) (*TypeInfo, uint32, error) {
	et, err := e.types.get(elem)
	if err != nil {
		return nil, 0, err
	}
	return et, et.Size, nil
}

func (e *Engine) optionalIsSet(p Ptr, elem TypeID) (bool, error) {
	_, flag, err := e.optionalFlag(elem)
	if err != nil {
		return false, err
	}
	a := e.acc()
	set := a.u8(p+flag) != 0
	return set, a.err
}

// optionalMarkSet default-initializes the payload, destroying any previous
// one, sets the flag and returns the payload address for the caller to fill.
func (e *Engine) optionalMarkSet(p Ptr, elem TypeID) (Ptr, error) {
	et, flag, err := e.optionalFlag(elem)
	if err != nil {
		return 0, err
	}
	a := e.acc()
	if a.u8(p+flag) != 0 {
		if err := e.destroy(et, p); err != nil {
			return 0, err
		}
	}
	if err := e.construct(et, p); err != nil {
		return 0, err
	}
	a.setU8(p+flag, 1)
	return p, a.err
}

// optionalValuePtr returns the payload address of a set optional.
func (e *Engine) optionalValuePtr(p Ptr, elem TypeID) (Ptr, error) {
	set, err := e.optionalIsSet(p, elem)
	if err != nil {
		return 0, err
	}
	if !set {
		return 0, errors.InvalidOperation(errors.PhaseNative, "optional is not set")
	}
	return p, nil
}

// optionalUnset destroys the payload and clears the flag.
func (e *Engine) optionalUnset(p Ptr, elem TypeID) error {
	et, flag, err := e.optionalFlag(elem)
	if err != nil {
		return err
	}
	a := e.acc()
	if a.u8(p+flag) != 0 {
		if err := e.destroy(et, p); err != nil {
			return err
		}
	}
	a.setU8(p+flag, 0)
	return a.err
}

func (e *Engine) optionalCopy(dst, src Ptr, elem TypeID) error {
	set, err := e.optionalIsSet(src, elem)
	if err != nil {
		return err
	}
	if !set {
		return e.optionalUnset(dst, elem)
	}
	payload, err := e.optionalMarkSet(dst, elem)
	if err != nil {
		return err
	}
	et, _, err := e.optionalFlag(elem)
	if err != nil {
		return err
	}
	return e.copyValue(et, payload, src)
}
