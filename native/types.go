package native

import (
	"fmt"

	nativebind "github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/errors"
)

// Ptr is a native heap address.
type Ptr = nativebind.Ptr

// TypeID identifies a registered native type.
type TypeID uint32

// ModuleID identifies a loadable module. Zero is the core module, which is never unloaded.
type ModuleID uint32

// Kind is the native representation family of a type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindEnum
	KindString
	KindText
	KindName
	KindObject
	KindInterface
	KindArray
	KindMap
	KindSet
	KindOptional
	KindStruct
	KindInstanced
	KindDelegate
	KindMulticast
)

var kindNames = [...]string{
	KindInvalid:   "invalid",
	KindBool:      "bool",
	KindInt8:      "int8",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindUint8:     "uint8",
	KindUint16:    "uint16",
	KindUint32:    "uint32",
	KindUint64:    "uint64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindEnum:      "enum",
	KindString:    "string",
	KindText:      "text",
	KindName:      "name",
	KindObject:    "object",
	KindInterface: "interface",
	KindArray:     "array",
	KindMap:       "map",
	KindSet:       "set",
	KindOptional:  "optional",
	KindStruct:    "struct",
	KindInstanced: "instanced_struct",
	KindDelegate:  "delegate",
	KindMulticast: "multicast_delegate",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Builtin type IDs. Composite and struct types are assigned after these.
const (
	TypeBool TypeID = iota + 1
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeEnum
	TypeString
	TypeText
	TypeName
	TypeObject
	TypeInterface
	TypeInstancedStruct
	TypeDelegate
	TypeMulticastDelegate
	firstDynamicType
)

// Native layout sizes of the fixed-shape containers.
const (
	ArrayHeaderSize  = 12 // data, num, max
	SparseHeaderSize = 28 // data, flags, maxIndex, num, capacity, buckets, bucketCount
	StringSize       = 12 // data, num (incl. terminator), max
	DelegateSize     = 12 // object, object serial, function name
	InterfaceSize    = 8  // object, interface table
	InstancedSize    = 8  // struct type, memory
)

// Field is a struct member at a fixed offset.
type Field struct {
	Name   string
	Type   TypeID
	Offset uint32
}

// FieldSpec declares a struct member; offsets are computed by the engine.
type FieldSpec struct {
	Name string
	Type TypeID
}

// TypeInfo is the native metadata of a registered type.
type TypeInfo struct {
	Name   string
	Fields []Field
	ID     TypeID
	Size   uint32
	Align  uint32
	Kind   Kind
	Module ModuleID

	// Elem is the element type of arrays, sets, optionals and multicast
	// delegates, and the pair struct of maps.
	Elem TypeID
	// Key and Value are the map key and value types.
	Key   TypeID
	Value TypeID
	// ValueOffset is the offset of the value inside a map pair.
	ValueOffset uint32
	// SlotStride and LinkOffset describe sparse set and map element slots.
	SlotStride uint32
	LinkOffset uint32
}

// Field returns the named struct member.
func (t *TypeInfo) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

type compositeKey struct {
	kind Kind
	a, b TypeID
}

type typeRegistry struct {
	types      map[TypeID]*TypeInfo
	composites map[compositeKey]TypeID
	next       TypeID
}

func newTypeRegistry() *typeRegistry {
	r := &typeRegistry{
		types:      make(map[TypeID]*TypeInfo),
		composites: make(map[compositeKey]TypeID),
		next:       firstDynamicType,
	}
	builtin := func(id TypeID, kind Kind, size, align uint32) {
		r.types[id] = &TypeInfo{ID: id, Name: kind.String(), Kind: kind, Size: size, Align: align}
	}
	builtin(TypeBool, KindBool, 1, 1)
	builtin(TypeInt8, KindInt8, 1, 1)
	builtin(TypeInt16, KindInt16, 2, 2)
	builtin(TypeInt32, KindInt32, 4, 4)
	builtin(TypeInt64, KindInt64, 8, 8)
	builtin(TypeUint8, KindUint8, 1, 1)
	builtin(TypeUint16, KindUint16, 2, 2)
	builtin(TypeUint32, KindUint32, 4, 4)
	builtin(TypeUint64, KindUint64, 8, 8)
	builtin(TypeFloat32, KindFloat32, 4, 4)
	builtin(TypeFloat64, KindFloat64, 8, 8)
	builtin(TypeEnum, KindEnum, 1, 1)
	builtin(TypeString, KindString, StringSize, 4)
	builtin(TypeText, KindText, 4, 4)
	builtin(TypeName, KindName, 4, 4)
	builtin(TypeObject, KindObject, 4, 4)
	builtin(TypeInterface, KindInterface, InterfaceSize, 4)
	builtin(TypeInstancedStruct, KindInstanced, InstancedSize, 4)
	builtin(TypeDelegate, KindDelegate, DelegateSize, 4)
	builtin(TypeMulticastDelegate, KindMulticast, ArrayHeaderSize, 4)
	r.types[TypeMulticastDelegate].Elem = TypeDelegate
	return r
}

func (r *typeRegistry) get(id TypeID) (*TypeInfo, error) {
	t, ok := r.types[id]
	if !ok {
		return nil, errors.New(errors.PhaseNative, errors.KindNotFound).
			Detail("native type %d is not registered", id).
			Value(id).
			Build()
	}
	return t, nil
}

func (r *typeRegistry) add(t *TypeInfo) TypeID {
	t.ID = r.next
	r.next++
	r.types[t.ID] = t
	return t.ID
}

func (r *typeRegistry) composite(key compositeKey, build func() (*TypeInfo, error)) (TypeID, error) {
	if id, ok := r.composites[key]; ok {
		return id, nil
	}
	t, err := build()
	if err != nil {
		return 0, err
	}
	id := r.add(t)
	r.composites[key] = id
	return id, nil
}

// removeModule drops every type owned by module, including composites built on them.
func (r *typeRegistry) removeModule(module ModuleID) int {
	removed := 0
	for id, t := range r.types {
		if t.Module == module {
			delete(r.types, id)
			removed++
		}
	}
	for key, id := range r.composites {
		if _, ok := r.types[id]; !ok {
			delete(r.composites, key)
		}
	}
	return removed
}

func ownerOf(types ...*TypeInfo) ModuleID {
	for _, t := range types {
		if t.Module != 0 {
			return t.Module
		}
	}
	return 0
}

// ArrayOf returns the dynamic array type of elem.
func (e *Engine) ArrayOf(elem TypeID) (TypeID, error) {
	return e.types.composite(compositeKey{kind: KindArray, a: elem}, func() (*TypeInfo, error) {
		et, err := e.types.get(elem)
		if err != nil {
			return nil, err
		}
		return &TypeInfo{
			Name:   "array<" + et.Name + ">",
			Kind:   KindArray,
			Size:   ArrayHeaderSize,
			Align:  4,
			Elem:   elem,
			Module: ownerOf(et),
		}, nil
	})
}

// SetOf returns the sparse set type of elem.
func (e *Engine) SetOf(elem TypeID) (TypeID, error) {
	return e.types.composite(compositeKey{kind: KindSet, a: elem}, func() (*TypeInfo, error) {
		et, err := e.types.get(elem)
		if err != nil {
			return nil, err
		}
		if !hashable(et) {
			return nil, errors.InvalidInput(errors.PhaseNative, "set element "+et.Name+" is not hashable")
		}
		link := alignTo(et.Size, 4)
		align := max(et.Align, 4)
		return &TypeInfo{
			Name:       "set<" + et.Name + ">",
			Kind:       KindSet,
			Size:       SparseHeaderSize,
			Align:      4,
			Elem:       elem,
			LinkOffset: link,
			SlotStride: alignTo(link+8, align),
			Module:     ownerOf(et),
		}, nil
	})
}

// MapOf returns the sparse map type from key to value.
func (e *Engine) MapOf(key, value TypeID) (TypeID, error) {
	return e.types.composite(compositeKey{kind: KindMap, a: key, b: value}, func() (*TypeInfo, error) {
		kt, err := e.types.get(key)
		if err != nil {
			return nil, err
		}
		vt, err := e.types.get(value)
		if err != nil {
			return nil, err
		}
		if !hashable(kt) {
			return nil, errors.InvalidInput(errors.PhaseNative, "map key "+kt.Name+" is not hashable")
		}
		pairName := "pair<" + kt.Name + "," + vt.Name + ">"
		pair, err := e.layoutStruct(pairName, ownerOf(kt, vt), []FieldSpec{
			{Name: "Key", Type: key},
			{Name: "Value", Type: value},
		})
		if err != nil {
			return nil, err
		}
		pairID := e.types.add(pair)
		link := alignTo(pair.Size, 4)
		align := max(pair.Align, 4)
		return &TypeInfo{
			Name:        "map<" + kt.Name + "," + vt.Name + ">",
			Kind:        KindMap,
			Size:        SparseHeaderSize,
			Align:       4,
			Elem:        pairID,
			Key:         key,
			Value:       value,
			ValueOffset: pair.Fields[1].Offset,
			LinkOffset:  link,
			SlotStride:  alignTo(link+8, align),
			Module:      pair.Module,
		}, nil
	})
}

// OptionalOf returns the optional type wrapping elem. The set flag follows the payload.
func (e *Engine) OptionalOf(elem TypeID) (TypeID, error) {
	return e.types.composite(compositeKey{kind: KindOptional, a: elem}, func() (*TypeInfo, error) {
		et, err := e.types.get(elem)
		if err != nil {
			return nil, err
		}
		return &TypeInfo{
			Name:   "optional<" + et.Name + ">",
			Kind:   KindOptional,
			Size:   alignTo(et.Size+1, et.Align),
			Align:  et.Align,
			Elem:   elem,
			Module: ownerOf(et),
		}, nil
	})
}

// DefineStruct registers a struct type with C-like field layout.
func (e *Engine) DefineStruct(name string, module ModuleID, fields ...FieldSpec) (TypeID, error) {
	if err := e.checkModule(module); err != nil {
		return 0, err
	}
	t, err := e.layoutStruct(name, module, fields)
	if err != nil {
		return 0, err
	}
	return e.types.add(t), nil
}

func (e *Engine) layoutStruct(name string, module ModuleID, fields []FieldSpec) (*TypeInfo, error) {
	t := &TypeInfo{Name: name, Kind: KindStruct, Align: 1, Module: module}
	offset := uint32(0)
	for _, spec := range fields {
		ft, err := e.types.get(spec.Type)
		if err != nil {
			return nil, errors.New(errors.PhaseNative, errors.KindNotFound).
				Path(name, spec.Name).
				Cause(err).
				Build()
		}
		if _, dup := t.Field(spec.Name); dup {
			return nil, errors.InvalidInput(errors.PhaseNative, "duplicate field "+name+"."+spec.Name)
		}
		offset = alignTo(offset, ft.Align)
		t.Fields = append(t.Fields, Field{Name: spec.Name, Type: spec.Type, Offset: offset})
		offset += ft.Size
		t.Align = max(t.Align, ft.Align)
	}
	t.Size = alignTo(offset, t.Align)
	return t, nil
}

// Type returns the metadata of a registered type.
func (e *Engine) Type(id TypeID) (*TypeInfo, bool) {
	t, ok := e.types.types[id]
	return t, ok
}

func hashable(t *TypeInfo) bool {
	switch t.Kind {
	case KindArray, KindMap, KindSet, KindOptional, KindInstanced, KindDelegate, KindMulticast, KindText:
		return false
	}
	return true
}
