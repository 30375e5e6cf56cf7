// Package affinity confines native-memory work to one OS thread.
//
// Native containers are not synchronized, so every marshal call that
// touches the native heap must run on the engine's logical thread. A
// Dispatcher owns that thread:
//
//	d := affinity.New("game")
//	defer d.Close()
//
//	// Fire and forget.
//	_ = d.Post(func(ctx context.Context) error { return tick(ctx) })
//
//	// Block until done.
//	err := d.Send(ctx, func(ctx context.Context) error { return spawnWave(ctx) })
//
// The context passed to Work identifies the dispatcher thread. Passing it
// on to a nested Send runs the nested work inline instead of deadlocking.
package affinity
