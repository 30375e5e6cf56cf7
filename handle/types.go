package handle

import (
	nativebind "github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/native"
)

// Ptr is a native object address. Zero is never registered.
type Ptr = nativebind.Ptr

// ModuleID is the native module that owns an association.
type ModuleID = native.ModuleID

// Handle names one association: the slot index in the high half and the
// slot generation in the low half. A handle goes stale when its slot is
// reused or its association is dropped. Handle 0 is never issued.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(index+1)<<32 | uint64(gen))
}

func (h Handle) index() int {
	return int(uint32(h>>32)) - 1
}

func (h Handle) generation() uint32 {
	return uint32(h)
}

// EventType is an association lifecycle notification.
type EventType uint8

const (
	EventAssociated EventType = iota
	EventPinned
	EventReleased
	EventForgotten
	EventSwept
	EventUnloaded
	EventReplaced
)

var eventNames = [...]string{
	EventAssociated: "associated",
	EventPinned:     "pinned",
	EventReleased:   "released",
	EventForgotten:  "forgotten",
	EventSwept:      "swept",
	EventUnloaded:   "unloaded",
	EventReplaced:   "replaced",
}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// Event describes a change to one association.
type Event struct {
	Handle Handle
	Native Ptr
	Module ModuleID
	Type   EventType
}

// Observer receives association lifecycle events. Events are delivered
// after the table lock is released, so observers may call back into the table.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnHandleEvent(e Event) {
	f(e)
}

// Entry is a point-in-time view of one association.
type Entry struct {
	Handle Handle
	Native Ptr
	Module ModuleID
	Strong bool
	// Alive is false for a weak entry whose managed object was collected
	// but has not been swept yet.
	Alive bool
}
