package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/term"

	"github.com/wippyai/nativebind/bridge"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to a TOML runtime config")
		pawns       = flag.Int("pawns", 5, "Number of demo pawns to spawn")
		snapshot    = flag.String("snapshot", "", "Write a CBOR snapshot of live associations to this file")
		dump        = flag.String("dump", "", "Print a snapshot file and exit")
		interactive = flag.Bool("i", false, "Interactive inspector")
	)
	flag.Parse()

	if *dump != "" {
		if err := printSnapshot(*dump); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg := bridge.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = bridge.LoadConfig(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs an interactive terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg, *pawns); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *pawns, *snapshot); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg bridge.Config, pawns int, snapshotFile string) error {
	ctx := context.Background()

	rt, err := bridge.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	var w *world
	if err := rt.Send(ctx, func(context.Context) error {
		w, err = buildWorld(rt)
		return err
	}); err != nil {
		return fmt.Errorf("build world: %w", err)
	}
	if err := w.populate(ctx, pawns); err != nil {
		return fmt.Errorf("populate: %w", err)
	}

	var rows []objectRow
	var snap []bridge.SnapshotEntry
	_ = rt.Send(ctx, func(context.Context) error {
		rows = w.describe()
		snap = rt.Snapshot()
		return nil
	})

	fmt.Printf("Backend: %s (%d pages)\n", cfg.Memory.Backend, cfg.Memory.InitialPages)
	fmt.Printf("Objects: %d\n", len(rows))
	fmt.Printf("Associations: %d\n\n", len(snap))
	fmt.Print(formatRows(rows))

	if snapshotFile != "" {
		if err := writeSnapshot(snapshotFile, snap); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		fmt.Printf("\nSnapshot written to %s\n", snapshotFile)
	}
	return nil
}

// snapshotFile is the on-disk snapshot format.
type snapshotFile struct {
	Version int                    `cbor:"version"`
	Entries []bridge.SnapshotEntry `cbor:"entries"`
}

func writeSnapshot(path string, entries []bridge.SnapshotEntry) error {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return err
	}
	data, err := em.Marshal(snapshotFile{Version: 1, Entries: entries})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readSnapshot(path string) ([]bridge.SnapshotEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s snapshotFile
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Version != 1 {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	return s.Entries, nil
}

func printSnapshot(path string) error {
	entries, err := readSnapshot(path)
	if err != nil {
		return err
	}
	fmt.Printf("%-18s %-10s %-10s %-8s %s\n", "HANDLE", "PTR", "CLASS", "MODULE", "FLAGS")
	for _, e := range entries {
		flags := ""
		if e.Strong {
			flags += "strong "
		}
		if !e.Alive {
			flags += "collected "
		}
		if !e.Valid {
			flags += "destroyed"
		}
		fmt.Printf("0x%016x 0x%08x %-10s %-8s %s\n", e.Handle, e.Ptr, e.Class, e.Module, flags)
	}
	return nil
}
