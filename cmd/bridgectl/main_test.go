package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/nativebind/bridge"
)

func newWorld(t *testing.T) (*bridge.Runtime, *world) {
	t.Helper()
	ctx := context.Background()
	cfg := bridge.DefaultConfig()
	cfg.Handles.DisableSweeper = true
	rt, err := bridge.New(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })

	var w *world
	if err := rt.Send(ctx, func(context.Context) error {
		w, err = buildWorld(rt)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	return rt, w
}

func TestWorld_Populate(t *testing.T) {
	rt, w := newWorld(t)
	ctx := context.Background()
	if err := w.populate(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if len(w.pinned) != 3 {
		t.Fatalf("pinned = %d", len(w.pinned))
	}

	var out string
	_ = rt.Send(ctx, func(context.Context) error {
		out = formatRows(w.describe())
		return nil
	})
	for _, want := range []string{`"pawn-01"`, `"pawn-03"`, "Spawner (default)", "[2 20]"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %s:\n%s", want, out)
		}
	}
}

func TestWorld_DestroyAndUnpin(t *testing.T) {
	rt, w := newWorld(t)
	ctx := context.Background()
	_ = w.populate(ctx, 2)
	victim := w.pinned[0].NativePtr()

	err := rt.Send(ctx, func(context.Context) error {
		if err := w.pinned[0].Destroy(); err != nil {
			return err
		}
		w.unpin(victim)
		return w.populateLocked(1)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(w.pinned) != 2 {
		t.Fatalf("pinned = %d", len(w.pinned))
	}
	for _, o := range w.pinned {
		if o.NativePtr() == victim && !o.IsValid() {
			t.Fatal("destroyed pawn still pinned")
		}
	}
}

func TestSnapshotFile(t *testing.T) {
	rt, w := newWorld(t)
	ctx := context.Background()
	_ = w.populate(ctx, 2)

	var snap []bridge.SnapshotEntry
	_ = rt.Send(ctx, func(context.Context) error {
		snap = rt.Snapshot()
		return nil
	})
	path := filepath.Join(t.TempDir(), "snap.cbor")
	if err := writeSnapshot(path, snap); err != nil {
		t.Fatal(err)
	}
	got, err := readSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(snap) {
		t.Fatalf("read %d entries, wrote %d", len(got), len(snap))
	}
	for i := range snap {
		if got[i] != snap[i] {
			t.Fatalf("entry %d: %+v != %+v", i, got[i], snap[i])
		}
	}
}
