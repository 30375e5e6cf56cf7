package native

// MemoryExports allocates native memory.
type MemoryExports struct {
	Alloc func(size, align uint32) (Ptr, error)
	Free  func(ptr Ptr, size, align uint32)
}

// TypeExports runs native value semantics for any registered type.
type TypeExports struct {
	Info      func(id TypeID) (*TypeInfo, error)
	Construct func(id TypeID, p Ptr) error
	Destroy   func(id TypeID, p Ptr) error
	Copy      func(id TypeID, dst, src Ptr) error
	Hash      func(id TypeID, p Ptr) (uint32, error)
	Equal     func(id TypeID, x, y Ptr) (bool, error)

	ArrayOf    func(elem TypeID) (TypeID, error)
	SetOf      func(elem TypeID) (TypeID, error)
	MapOf      func(key, value TypeID) (TypeID, error)
	OptionalOf func(elem TypeID) (TypeID, error)
}

// ArrayExports operates on dynamic array headers.
type ArrayExports struct {
	Num              func(arr Ptr) (int, error)
	Max              func(arr Ptr) (int, error)
	Data             func(arr Ptr) (Ptr, error)
	AddUninitialized func(arr Ptr, elem TypeID, count int) (int, error)
	InsertZeroed     func(arr Ptr, elem TypeID, index, count int) error
	RemoveAt         func(arr Ptr, elem TypeID, index, count int) error
	Resize           func(arr Ptr, elem TypeID, n int) error
	Empty            func(arr Ptr, elem TypeID) error
}

// SparseExports is shared by sets and maps. t is the container type.
type SparseExports struct {
	Num          func(s Ptr) (int, error)
	MaxIndex     func(s Ptr) (int, error)
	IsValidIndex func(s Ptr, index int) (bool, error)
	ElementPtr   func(s Ptr, t TypeID, index int) (Ptr, error)
	FindIndex    func(s Ptr, t TypeID, hash uint32, eq func(slot Ptr) (bool, error)) (int, error)
	Add          func(s Ptr, t TypeID, cb SparseCallbacks, src Ptr) (index int, added bool, err error)
	RemoveAt     func(s Ptr, t TypeID, index int) error
	Empty        func(s Ptr, t TypeID) error
}

// MapExports resolves map pairs.
type MapExports struct {
	PairPtr func(m Ptr, t TypeID, index int) (key, value Ptr, err error)
}

// StringExports reads and writes native strings.
type StringExports struct {
	Get     func(p Ptr) ([]uint16, error)
	Set     func(p Ptr, units []uint16) error
	Destroy func(p Ptr) error
}

// TextExports manages reference-counted text cells.
type TextExports struct {
	Create   func(units []uint16) (Ptr, error)
	Get      func(cell Ptr) ([]uint16, error)
	AddRef   func(cell Ptr) error
	Release  func(cell Ptr) error
	RefCount func(cell Ptr) (uint32, error)
}

// NameExports interns names.
type NameExports struct {
	Find   func(s string) uint32
	String func(index uint32) (string, error)
}

// ObjectExports queries the object system.
type ObjectExports struct {
	IsValid      func(obj Ptr) bool
	Serial       func(obj Ptr) (uint32, bool)
	IsAlive      func(obj Ptr, serial uint32) bool
	IsDefault    func(obj Ptr) bool
	ClassName    func(obj Ptr) (string, error)
	Interface    func(obj Ptr, iface InterfaceID) (Ptr, error)
	ProcessEvent func(obj Ptr, name uint32, params Ptr) error
}

// DelegateExports operates on single-cast delegates.
type DelegateExports struct {
	Get     func(p Ptr) (DelegateTarget, error)
	Bind    func(p Ptr, t DelegateTarget) error
	Clear   func(p Ptr) error
	IsBound func(p Ptr) (bool, error)
	Execute func(p, params Ptr) (bool, error)
}

// MulticastExports operates on multicast delegates.
type MulticastExports struct {
	Targets   func(p Ptr) ([]DelegateTarget, error)
	Add       func(p Ptr, t DelegateTarget) error
	Remove    func(p Ptr, t DelegateTarget) error
	Contains  func(p Ptr, t DelegateTarget) (bool, error)
	Clear     func(p Ptr) error
	Num       func(p Ptr) (int, error)
	Broadcast func(p, params Ptr) (int, error)
}

// OptionalExports operates on optionals. elem is the payload type.
type OptionalExports struct {
	IsSet                func(p Ptr, elem TypeID) (bool, error)
	MarkSetAndGetPointer func(p Ptr, elem TypeID) (Ptr, error)
	ValuePtr             func(p Ptr, elem TypeID) (Ptr, error)
	MarkUnset            func(p Ptr, elem TypeID) error
}

// InstancedExports operates on instanced struct cells.
type InstancedExports struct {
	StructType   func(p Ptr) (TypeID, error)
	Memory       func(p Ptr) (Ptr, error)
	InitializeAs func(p Ptr, st TypeID, src Ptr) error
	Reset        func(p Ptr) error
}

// Exports is the function table the binding layer calls. It is built once
// per engine and never changes.
type Exports struct {
	Memory    MemoryExports
	Types     TypeExports
	Array     ArrayExports
	Sparse    SparseExports
	Map       MapExports
	String    StringExports
	Text      TextExports
	Name      NameExports
	Object    ObjectExports
	Delegate  DelegateExports
	Multicast MulticastExports
	Optional  OptionalExports
	Instanced InstancedExports
}

func (e *Engine) typeOp(op func(t *TypeInfo, p Ptr) error) func(TypeID, Ptr) error {
	return func(id TypeID, p Ptr) error {
		t, err := e.types.get(id)
		if err != nil {
			return err
		}
		return op(t, p)
	}
}

func (e *Engine) sparseField(off uint32) func(Ptr) (int, error) {
	return func(s Ptr) (int, error) {
		a := e.acc()
		v := a.i32(s + off)
		return int(v), a.err
	}
}

func (e *Engine) buildExports() *Exports {
	return &Exports{
		Memory: MemoryExports{
			Alloc: e.heap.Alloc,
			Free:  e.heap.Free,
		},
		Types: TypeExports{
			Info:      e.types.get,
			Construct: e.typeOp(e.construct),
			Destroy:   e.typeOp(e.destroy),
			Copy: func(id TypeID, dst, src Ptr) error {
				t, err := e.types.get(id)
				if err != nil {
					return err
				}
				return e.copyValue(t, dst, src)
			},
			Hash: func(id TypeID, p Ptr) (uint32, error) {
				t, err := e.types.get(id)
				if err != nil {
					return 0, err
				}
				return e.hashValue(t, p)
			},
			Equal: func(id TypeID, x, y Ptr) (bool, error) {
				t, err := e.types.get(id)
				if err != nil {
					return false, err
				}
				return e.equalValue(t, x, y)
			},
			ArrayOf:    e.ArrayOf,
			SetOf:      e.SetOf,
			MapOf:      e.MapOf,
			OptionalOf: e.OptionalOf,
		},
		Array: ArrayExports{
			Num:              e.arrayNum,
			Max:              e.arrayMax,
			Data:             e.arrayData,
			AddUninitialized: e.arrayAddUninitialized,
			InsertZeroed:     e.arrayInsertZeroed,
			RemoveAt:         e.arrayRemoveAt,
			Resize:           e.arrayResize,
			Empty:            e.arrayEmpty,
		},
		Sparse: SparseExports{
			Num:          e.sparseField(spNum),
			MaxIndex:     e.sparseField(spMaxIndex),
			IsValidIndex: e.sparseIsValid,
			ElementPtr:   e.sparseElementPtr,
			FindIndex:    e.sparseFindIndex,
			Add:          e.sparseAdd,
			RemoveAt:     e.sparseRemoveAt,
			Empty: func(s Ptr, t TypeID) error {
				st, err := e.sparseType(t)
				if err != nil {
					return err
				}
				return e.sparseEmpty(s, st)
			},
		},
		Map: MapExports{
			PairPtr: func(m Ptr, t TypeID, index int) (Ptr, Ptr, error) {
				st, err := e.sparseType(t)
				if err != nil {
					return 0, 0, err
				}
				p, err := e.sparseElementPtr(m, t, index)
				if err != nil {
					return 0, 0, err
				}
				return p, p + st.ValueOffset, nil
			},
		},
		String: StringExports{
			Get:     e.stringUnits,
			Set:     e.stringAssign,
			Destroy: e.stringDestroy,
		},
		Text: TextExports{
			Create:   e.textCreate,
			Get:      func(cell Ptr) ([]uint16, error) { return e.stringUnits(cell + textString) },
			AddRef:   e.textAddRef,
			Release:  e.textRelease,
			RefCount: e.textRefCount,
		},
		Name: NameExports{
			Find:   e.names.intern,
			String: e.names.lookup,
		},
		Object: ObjectExports{
			IsValid:   e.IsValid,
			Serial:    e.Serial,
			IsAlive:   e.IsAlive,
			IsDefault: e.IsDefaultObject,
			ClassName: func(obj Ptr) (string, error) {
				cls, err := e.ClassOf(obj)
				if err != nil {
					return "", err
				}
				return cls.Name, nil
			},
			Interface:    e.InterfaceOf,
			ProcessEvent: e.ProcessEvent,
		},
		Delegate: DelegateExports{
			Get:     e.delegateGet,
			Bind:    e.delegateBind,
			Clear:   e.delegateClear,
			IsBound: e.delegateIsBound,
			Execute: e.delegateExecute,
		},
		Multicast: MulticastExports{
			Targets:   e.multicastTargets,
			Add:       e.multicastAdd,
			Remove:    e.multicastRemove,
			Contains:  e.multicastContains,
			Clear:     func(p Ptr) error { return e.arrayEmpty(p, TypeDelegate) },
			Num:       e.arrayNum,
			Broadcast: e.multicastBroadcast,
		},
		Optional: OptionalExports{
			IsSet:                e.optionalIsSet,
			MarkSetAndGetPointer: e.optionalMarkSet,
			ValuePtr:             e.optionalValuePtr,
			MarkUnset:            e.optionalUnset,
		},
		Instanced: InstancedExports{
			StructType: func(p Ptr) (TypeID, error) {
				t, _, err := e.instancedGet(p)
				return t, err
			},
			Memory: func(p Ptr) (Ptr, error) {
				_, mem, err := e.instancedGet(p)
				return mem, err
			},
			InitializeAs: e.instancedInitializeAs,
			Reset:        e.instancedReset,
		},
	}
}
