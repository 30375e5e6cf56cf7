package affinity

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/nativebind/errors"
)

func TestDispatcher_SendRunsOnThread(t *testing.T) {
	d := New("test")
	defer d.Close()

	var onThread bool
	err := d.Send(context.Background(), func(ctx context.Context) error {
		onThread = d.OnThread(ctx)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !onThread {
		t.Fatal("work context not bound to dispatcher")
	}
	if d.OnThread(context.Background()) {
		t.Fatal("foreign context reported on thread")
	}
}

func TestDispatcher_IsCurrentThread(t *testing.T) {
	d := New("test")

	if _, known := d.IsCurrentThread(); !known {
		d.Close()
		t.Skip("thread ids unavailable on this platform")
	}
	if on, _ := d.IsCurrentThread(); on {
		t.Fatal("test goroutine reported on the dispatcher thread")
	}
	var on bool
	if err := d.Send(context.Background(), func(context.Context) error {
		on, _ = d.IsCurrentThread()
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Fatal("work item not reported on the dispatcher thread")
	}

	d.Close()
	if _, known := d.IsCurrentThread(); known {
		t.Fatal("stopped dispatcher still reports a thread")
	}
}

func TestDispatcher_SendReturnsError(t *testing.T) {
	d := New("test")
	defer d.Close()

	want := stderrors.New("boom")
	if err := d.Send(context.Background(), func(context.Context) error { return want }); err != want {
		t.Fatalf("Send = %v", err)
	}
}

func TestDispatcher_ReentrantSendRunsInline(t *testing.T) {
	d := New("test")
	defer d.Close()

	var order []string
	err := d.Send(context.Background(), func(ctx context.Context) error {
		order = append(order, "outer")
		return d.Send(ctx, func(context.Context) error {
			order = append(order, "inner")
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[1] != "inner" {
		t.Fatalf("order = %v", order)
	}
}

func TestDispatcher_PostOrdering(t *testing.T) {
	d := New("test")
	var mu sync.Mutex
	var got []int
	for i := range 100 {
		if err := d.Post(func(context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Fatalf("Close did not drain: ran %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order at %d: %d", i, v)
		}
	}
}

func TestDispatcher_SingleThreadExecution(t *testing.T) {
	d := New("test")
	defer d.Close()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Send(context.Background(), func(context.Context) error {
				n := active.Add(1)
				if n > maxActive.Load() {
					maxActive.Store(n)
				}
				time.Sleep(100 * time.Microsecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if maxActive.Load() != 1 {
		t.Fatalf("work overlapped: %d concurrent", maxActive.Load())
	}
}

func TestDispatcher_PanicRecovered(t *testing.T) {
	d := New("test")
	defer d.Close()

	err := d.Send(context.Background(), func(context.Context) error {
		panic("native corruption")
	})
	if !stderrors.Is(err, errors.ErrInvalidOperation) {
		t.Fatalf("Send = %v", err)
	}
	if err := d.Post(func(context.Context) error { panic("posted") }); err != nil {
		t.Fatal(err)
	}
	if err := d.Send(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("dispatcher did not survive panic: %v", err)
	}
}

func TestDispatcher_SendCanceledBeforeStart(t *testing.T) {
	d := New("test")
	defer d.Close()

	release := make(chan struct{})
	_ = d.Post(func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	var ran atomic.Bool
	err := d.Send(ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	})
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send = %v", err)
	}
	close(release)
	_ = d.Send(context.Background(), func(context.Context) error { return nil })
	if ran.Load() {
		t.Fatal("canceled work still ran")
	}
}

func TestDispatcher_Closed(t *testing.T) {
	d := New("test")
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Post(func(context.Context) error { return nil }); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("Post after Close = %v", err)
	}
	if err := d.Send(context.Background(), func(context.Context) error { return nil }); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("Send after Close = %v", err)
	}
}
