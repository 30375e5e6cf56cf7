package affinity

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
)

// Work is a unit of work run on the dispatcher thread. ctx carries the
// dispatcher, so Send calls made from inside Work run inline.
type Work func(ctx context.Context) error

type threadKey struct{}

const (
	statePending int32 = iota
	stateRunning
	stateCanceled
)

type item struct {
	fn    Work
	done  chan error
	state atomic.Int32
	ctx   context.Context
}

// Dispatcher runs work on a single goroutine locked to one OS thread: the
// logical thread that owns native memory. Work items run strictly in
// submission order.
type Dispatcher struct {
	name    string
	mu      sync.Mutex
	queue   []*item
	wake    chan struct{}
	closing bool
	stopped chan struct{}
	base    context.Context
	ran     atomic.Uint64
	// tid is the OS thread the loop is locked to, zero when unknown.
	tid atomic.Int64
}

// New starts a dispatcher. name appears in logs.
func New(name string) *Dispatcher {
	d := &Dispatcher{
		name:    name,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	d.base = context.WithValue(context.Background(), threadKey{}, d)
	started := make(chan struct{})
	go d.loop(started)
	<-started
	return d
}

// OnThread reports whether ctx was handed out by this dispatcher, meaning
// the caller is already running on the dispatcher thread.
func (d *Dispatcher) OnThread(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(threadKey{}).(*Dispatcher)
	return owner == d
}

// IsCurrentThread reports whether the caller runs on the dispatcher's OS
// thread. The loop goroutine is locked to that thread, so no other goroutine
// can run there. known is false on platforms without thread ids, and after
// the dispatcher has stopped.
func (d *Dispatcher) IsCurrentThread() (on, known bool) {
	want := d.tid.Load()
	if want == 0 {
		return false, false
	}
	tid, ok := currentThread()
	if !ok {
		return false, false
	}
	return int64(tid) == want, true
}

// Post queues fn and returns immediately. Errors and panics from fn are logged.
func (d *Dispatcher) Post(fn Work) error {
	return d.enqueue(&item{fn: fn, ctx: d.base})
}

// Send runs fn on the dispatcher thread and waits for it to finish. When
// ctx already belongs to the dispatcher thread, fn runs inline. If ctx is
// done before fn starts, fn is skipped and ctx.Err() is returned; once fn
// has started, Send still returns early but fn runs to completion.
func (d *Dispatcher) Send(ctx context.Context, fn Work) error {
	if d.OnThread(ctx) {
		return d.run(ctx, fn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it := &item{fn: fn, done: make(chan error, 1), ctx: d.base}
	if err := d.enqueue(it); err != nil {
		return err
	}
	select {
	case err := <-it.done:
		return err
	case <-ctx.Done():
		if it.state.CompareAndSwap(statePending, stateCanceled) {
			return ctx.Err()
		}
		select {
		case err := <-it.done:
			return err
		default:
			return ctx.Err()
		}
	}
}

// Pending returns the number of queued items that have not started.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Executed returns the number of work items run so far.
func (d *Dispatcher) Executed() uint64 {
	return d.ran.Load()
}

// Close stops accepting work, runs everything already queued and waits for
// the thread to exit. It must not be called from the dispatcher thread.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		<-d.stopped
		return nil
	}
	d.closing = true
	d.mu.Unlock()

	d.signal()
	<-d.stopped
	return nil
}

func (d *Dispatcher) enqueue(it *item) error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return errors.Closed(errors.PhaseDispatch, "dispatcher "+d.name)
	}
	d.queue = append(d.queue, it)
	d.mu.Unlock()
	d.signal()
	return nil
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop(started chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(d.stopped)
	if tid, ok := currentThread(); ok {
		d.tid.Store(int64(tid))
	}
	defer d.tid.Store(0)

	Logger().Debug("dispatcher started", zap.String("name", d.name))
	close(started)

	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closing := d.closing
		d.mu.Unlock()

		for _, it := range batch {
			d.execute(it)
		}
		if len(batch) > 0 {
			continue
		}
		if closing {
			Logger().Debug("dispatcher stopped",
				zap.String("name", d.name),
				zap.Uint64("executed", d.ran.Load()))
			return
		}
		<-d.wake
	}
}

func (d *Dispatcher) execute(it *item) {
	if !it.state.CompareAndSwap(statePending, stateRunning) {
		return
	}
	err := d.run(it.ctx, it.fn)
	if it.done != nil {
		it.done <- err
		return
	}
	if err != nil {
		Logger().Error("posted work failed", zap.String("name", d.name), zap.Error(err))
	}
}

func (d *Dispatcher) run(ctx context.Context, fn Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseDispatch, errors.KindInvalidOperation).
				Value(r).
				Cause(fmt.Errorf("panic: %v", r)).
				Detail("work item panicked on %s", d.name).
				Build()
		}
	}()
	d.ran.Add(1)
	return fn(ctx)
}
