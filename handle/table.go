package handle

import (
	"slices"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
)

type slot[T any] struct {
	ref    weak.Pointer[T]
	strong *T
	native Ptr
	module ModuleID
	gen    uint32
	live   bool
}

func (s *slot[T]) value() *T {
	if s.strong != nil {
		return s.strong
	}
	return s.ref.Value()
}

// Table maps native object pointers to their managed wrappers.
//
// Weak entries let the wrapper be collected once nothing else references
// it; Lookup then reports nil and the caller re-materializes. Strong entries
// root the wrapper until Release, Forget or OnModuleUnload. The table never
// decides whether a native object is alive: associating a pointer that is
// already registered replaces the old entry, because native pools reuse
// addresses.
type Table[T any] struct {
	mu        sync.RWMutex
	slots     []slot[T]
	free      []int
	byNative  map[Ptr]int
	observers map[int]Observer
	nextObs   int
	closed    bool
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		slots:     make([]slot[T], 0, 64),
		free:      make([]int, 0, 16),
		byNative:  make(map[Ptr]int),
		observers: make(map[int]Observer),
	}
}

// Associate registers obj as the wrapper of native and returns its handle.
// A previous association of native is dropped and its handle goes stale.
func (t *Table[T]) Associate(native Ptr, obj *T, strong bool, module ModuleID) (Handle, error) {
	if native == 0 {
		return 0, errors.NilPointer(errors.PhaseHandle, nil, "native pointer")
	}
	if obj == nil {
		return 0, errors.NilPointer(errors.PhaseHandle, nil, "managed object")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errors.Closed(errors.PhaseHandle, "handle table")
	}

	var events []Event
	if old, ok := t.byNative[native]; ok {
		events = append(events, t.dropLocked(old, EventReplaced))
	}

	idx := t.allocLocked()
	s := &t.slots[idx]
	s.native = native
	s.module = module
	s.live = true
	s.ref = weak.Make(obj)
	if strong {
		s.strong = obj
	}
	t.byNative[native] = idx
	h := makeHandle(uint32(idx), s.gen)
	t.mu.Unlock()

	events = append(events, Event{Type: EventAssociated, Handle: h, Native: native, Module: module})
	t.notify(events...)
	return h, nil
}

func (t *Table[T]) allocLocked() int {
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		return idx
	}
	t.slots = append(t.slots, slot[T]{})
	return len(t.slots) - 1
}

// dropLocked clears a live slot and bumps its generation so outstanding
// handles go stale.
func (t *Table[T]) dropLocked(idx int, why EventType) Event {
	s := &t.slots[idx]
	e := Event{Type: why, Handle: makeHandle(uint32(idx), s.gen), Native: s.native, Module: s.module}
	if t.byNative[s.native] == idx {
		delete(t.byNative, s.native)
	}
	*s = slot[T]{gen: s.gen + 1}
	t.free = append(t.free, idx)
	return e
}

// resolveLocked returns the live slot a handle names.
func (t *Table[T]) resolveLocked(h Handle) (*slot[T], error) {
	idx := h.index()
	if h == 0 || idx < 0 || idx >= len(t.slots) {
		return nil, errors.StaleHandle(uint64(h))
	}
	s := &t.slots[idx]
	if !s.live || s.gen != h.generation() {
		return nil, errors.StaleHandle(uint64(h))
	}
	return s, nil
}

// Lookup returns the wrapper registered for native, or nil when it was
// never registered, has been removed, or has been collected.
func (t *Table[T]) Lookup(native Ptr) *T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byNative[native]
	if !ok {
		return nil
	}
	return t.slots[idx].value()
}

// HandleOf returns the current handle of native.
func (t *Table[T]) HandleOf(native Ptr) (Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byNative[native]
	if !ok {
		return 0, false
	}
	return makeHandle(uint32(idx), t.slots[idx].gen), true
}

// Get resolves a handle. A stale handle or a collected wrapper reports false.
func (t *Table[T]) Get(h Handle) (*T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, err := t.resolveLocked(h)
	if err != nil {
		return nil, false
	}
	v := s.value()
	return v, v != nil
}

// Pin roots the wrapper so it survives collection.
func (t *Table[T]) Pin(h Handle) error {
	t.mu.Lock()
	s, err := t.resolveLocked(h)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	v := s.value()
	if v == nil {
		t.mu.Unlock()
		return errors.New(errors.PhaseHandle, errors.KindStaleHandle).
			Value(uint64(h)).
			Detail("managed object of 0x%x was collected", s.native).
			Build()
	}
	s.strong = v
	e := Event{Type: EventPinned, Handle: h, Native: s.native, Module: s.module}
	t.mu.Unlock()

	t.notify(e)
	return nil
}

// Release drops the strong rooting of h. The entry stays registered as a
// weak association and the native object is untouched.
func (t *Table[T]) Release(h Handle) error {
	t.mu.Lock()
	s, err := t.resolveLocked(h)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	wasStrong := s.strong != nil
	s.strong = nil
	e := Event{Type: EventReleased, Handle: h, Native: s.native, Module: s.module}
	t.mu.Unlock()

	if wasStrong {
		t.notify(e)
	}
	return nil
}

// IsStrong reports whether h is live and rooted.
func (t *Table[T]) IsStrong(h Handle) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, err := t.resolveLocked(h)
	return err == nil && s.strong != nil
}

// Forget removes the association of a native object that has been destroyed.
func (t *Table[T]) Forget(native Ptr) bool {
	t.mu.Lock()
	idx, ok := t.byNative[native]
	if !ok {
		t.mu.Unlock()
		return false
	}
	e := t.dropLocked(idx, EventForgotten)
	t.mu.Unlock()

	t.notify(e)
	return true
}

// OnModuleUnload invalidates every strong association owned by module and
// returns how many were dropped. It must run before the module's native
// type metadata is freed. Weak entries of the module are left for the
// native destroy notification or the next Sweep.
func (t *Table[T]) OnModuleUnload(module ModuleID) int {
	t.mu.Lock()
	var events []Event
	for i := range t.slots {
		s := &t.slots[i]
		if s.live && s.module == module && s.strong != nil {
			events = append(events, t.dropLocked(i, EventUnloaded))
		}
	}
	t.mu.Unlock()

	if len(events) > 0 {
		Logger().Debug("module associations invalidated",
			zap.Uint32("module", uint32(module)),
			zap.Int("count", len(events)))
	}
	t.notify(events...)
	return len(events)
}

// Sweep drops weak entries whose wrapper has been collected.
func (t *Table[T]) Sweep() int {
	t.mu.Lock()
	var events []Event
	for i := range t.slots {
		s := &t.slots[i]
		if s.live && s.strong == nil && s.ref.Value() == nil {
			events = append(events, t.dropLocked(i, EventSwept))
		}
	}
	t.mu.Unlock()

	t.notify(events...)
	return len(events)
}

// Len returns the number of registered associations, including weak ones
// that have not been swept.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byNative)
}

// Entries returns a snapshot of every association.
func (t *Table[T]) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.byNative))
	for i := range t.slots {
		s := &t.slots[i]
		if !s.live {
			continue
		}
		out = append(out, Entry{
			Handle: makeHandle(uint32(i), s.gen),
			Native: s.native,
			Module: s.module,
			Strong: s.strong != nil,
			Alive:  s.value() != nil,
		})
	}
	return out
}

// Subscribe adds an observer and returns a function that removes it.
func (t *Table[T]) Subscribe(o Observer) (cancel func()) {
	t.mu.Lock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = o
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	}
}

func (t *Table[T]) notify(events ...Event) {
	if len(events) == 0 {
		return
	}
	t.mu.RLock()
	ids := make([]int, 0, len(t.observers))
	for id := range t.observers {
		ids = append(ids, id)
	}
	obs := make([]Observer, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		obs = append(obs, t.observers[id])
	}
	t.mu.RUnlock()

	for _, e := range events {
		for _, o := range obs {
			o.OnHandleEvent(e)
		}
	}
}

// Close drops every association. Later Associate calls fail.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	n := len(t.byNative)
	t.slots = nil
	t.free = nil
	t.byNative = make(map[Ptr]int)
	t.mu.Unlock()

	Logger().Debug("handle table closed", zap.Int("dropped", n))
	return nil
}
