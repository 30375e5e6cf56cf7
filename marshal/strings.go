package marshal

import (
	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/native"
)

// StringMarshaller converts Go strings to native UTF-16 strings. The native
// side copies into storage it owns; DestructInstance frees that storage.
type StringMarshaller struct {
	base
}

func String(env *Env) StringMarshaller {
	return StringMarshaller{base{env: env, id: native.TypeString, size: native.StringSize, name: "string"}}
}

func (m StringMarshaller) ToNative(buf Ptr, index int, v string) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	return m.env.Native.String.Set(p, native.EncodeString(v))
}

// FromNative returns "" for a null or empty native string.
func (m StringMarshaller) FromNative(buf Ptr, index int) (string, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return "", err
	}
	units, err := m.env.Native.String.Get(p)
	if err != nil {
		return "", err
	}
	return native.DecodeString(units), nil
}

// NameMarshaller stores interned names. The native None name (index zero)
// is the empty string on the Go side, so "" round-trips and writing "None"
// reads back as "".
type NameMarshaller struct {
	base
}

func Name(env *Env) NameMarshaller {
	return NameMarshaller{base{env: env, id: native.TypeName, size: 4, name: "name"}}
}

func (m NameMarshaller) ToNative(buf Ptr, index int, v string) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	return m.env.Mem.WriteU32(p, m.env.Native.Name.Find(v))
}

func (m NameMarshaller) FromNative(buf Ptr, index int) (string, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return "", err
	}
	i, err := m.env.Mem.ReadU32(p)
	if err != nil || i == 0 {
		return "", err
	}
	return m.env.Native.Name.String(i)
}

// Text owns one reference to a native shared text cell. Clone takes another
// reference and Close drops this one exactly once.
type Text struct {
	env    *Env
	cell   Ptr
	closed bool
}

// NewText creates a native text cell holding s.
func NewText(env *Env, s string) (*Text, error) {
	cell, err := env.Native.Text.Create(native.EncodeString(s))
	if err != nil {
		return nil, err
	}
	return &Text{env: env, cell: cell}, nil
}

func (t *Text) live() error {
	if t.closed {
		return errors.Closed(errors.PhaseRuntime, "text")
	}
	return nil
}

// Value returns the text contents.
func (t *Text) Value() (string, error) {
	if err := t.live(); err != nil {
		return "", err
	}
	units, err := t.env.Native.Text.Get(t.cell)
	if err != nil {
		return "", err
	}
	return native.DecodeString(units), nil
}

// Clone returns an independent owner of the same cell.
func (t *Text) Clone() (*Text, error) {
	if err := t.live(); err != nil {
		return nil, err
	}
	if err := t.env.Native.Text.AddRef(t.cell); err != nil {
		return nil, err
	}
	return &Text{env: t.env, cell: t.cell}, nil
}

// Cell returns the native cell address.
func (t *Text) Cell() Ptr {
	return t.cell
}

// Close releases the reference. Later calls do nothing.
func (t *Text) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.env.Native.Text.Release(t.cell)
}

// TextMarshaller stores *Text values. Writing a slot and reading it are
// ownership boundaries: the slot and the returned wrapper each hold a reference.
type TextMarshaller struct {
	base
}

func TextOf(env *Env) TextMarshaller {
	return TextMarshaller{base{env: env, id: native.TypeText, size: 4, name: "text"}}
}

func (m TextMarshaller) ToNative(buf Ptr, index int, v *Text) error {
	p, err := m.slot(buf, index)
	if err != nil {
		return err
	}
	var cell Ptr
	if v != nil {
		if err := v.live(); err != nil {
			return err
		}
		cell = v.cell
	}
	old, err := m.env.Mem.ReadU32(p)
	if err != nil {
		return err
	}
	if cell == old {
		return nil
	}
	if cell != 0 {
		if err := m.env.Native.Text.AddRef(cell); err != nil {
			return err
		}
	}
	if err := m.env.Mem.WriteU32(p, cell); err != nil {
		return err
	}
	if old != 0 {
		return m.env.Native.Text.Release(old)
	}
	return nil
}

// FromNative returns a new owner, or nil for an empty slot. The caller must Close it.
func (m TextMarshaller) FromNative(buf Ptr, index int) (*Text, error) {
	p, err := m.slot(buf, index)
	if err != nil {
		return nil, err
	}
	cell, err := m.env.Mem.ReadU32(p)
	if err != nil || cell == 0 {
		return nil, err
	}
	if err := m.env.Native.Text.AddRef(cell); err != nil {
		return nil, err
	}
	Logger().Debug("text reference taken", zap.Uint32("cell", cell))
	return &Text{env: m.env, cell: cell}, nil
}
