package bridge

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/affinity"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/handle"
	"github.com/wippyai/nativebind/marshal"
	"github.com/wippyai/nativebind/native"
)

// Ptr is a native heap address.
type Ptr = marshal.Ptr

// Runtime ties a native engine to Go: the export table, the association
// table, the sweeper and the game-thread dispatcher.
//
// Methods that touch native memory (Spawn, Materialize, property and
// function access) must run on the dispatcher thread. Call them from work
// passed to Send or Post when other goroutines are involved. With
// Dispatcher.CheckThread set, calls from any other thread fail.
type Runtime struct {
	cfg     Config
	log     *zap.Logger
	engine  *native.Engine
	wazero  *native.WazeroMemory
	env     *marshal.Env
	handles *handle.Table[Object]
	sweeper *handle.Sweeper
	disp    *affinity.Dispatcher

	mu      sync.Mutex
	modules map[native.ModuleID]*Module
	closed  bool
}

// Module is a loaded native module.
type Module struct {
	id   native.ModuleID
	name string
}

func (m *Module) ID() native.ModuleID { return m.id }

func (m *Module) Name() string { return m.name }

// SetLoggers installs l as the logger of every nativebind package.
func SetLoggers(l *zap.Logger) {
	SetLogger(l)
	native.SetLogger(l)
	marshal.SetLogger(l)
	handle.SetLogger(l)
	affinity.SetLogger(l)
}

// New builds a runtime from cfg. Defaults are applied to zero fields.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := cfg.BuildLogger()
	if err != nil {
		return nil, err
	}
	if cfg.Log.Mode != "nop" {
		SetLoggers(log)
	}

	r := &Runtime{
		cfg:     cfg,
		log:     log,
		handles: handle.NewTable[Object](),
		modules: make(map[native.ModuleID]*Module),
	}

	ncfg := native.Config{PoisonFreed: cfg.Memory.Poison}
	switch cfg.Memory.Backend {
	case BackendWazero:
		mem, err := native.OpenWazeroMemory(ctx, cfg.Memory.InitialPages, cfg.Memory.MaxPages)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseRuntime, errors.KindAllocation, err, "open wazero memory")
		}
		r.wazero = mem
		ncfg.Memory = mem
	default:
		ncfg.Memory = native.NewSliceMemory(cfg.Memory.InitialPages, cfg.Memory.MaxPages)
	}

	r.engine = native.New(ncfg)
	r.env = marshal.NewEnv(r.engine)
	r.engine.OnDestroy(func(obj Ptr) {
		r.handles.Forget(obj)
	})

	if !cfg.Handles.DisableSweeper {
		r.sweeper = handle.NewSweeper(r.handles, cfg.Handles.SweepInterval)
		r.sweeper.Start()
	}
	r.disp = affinity.New(cfg.Dispatcher.Name)

	log.Info("runtime started",
		zap.String("backend", cfg.Memory.Backend),
		zap.Uint32("initial_pages", cfg.Memory.InitialPages),
		zap.Uint32("max_pages", cfg.Memory.MaxPages),
		zap.Bool("sweeper", r.sweeper != nil))
	return r, nil
}

// Close stops the dispatcher and the sweeper, drops every association and
// releases the heap backend.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	_ = r.disp.Close()
	if r.sweeper != nil {
		r.sweeper.Stop()
	}
	_ = r.handles.Close()
	if r.wazero != nil {
		if err := r.wazero.Close(ctx); err != nil {
			return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidOperation, err, "close wazero memory")
		}
	}
	r.log.Info("runtime closed")
	_ = r.log.Sync()
	return nil
}

// checkThread rejects native access from outside the game thread when the
// configuration asks for it.
func (r *Runtime) checkThread(op string) error {
	if !r.cfg.Dispatcher.CheckThread {
		return nil
	}
	if on, known := r.disp.IsCurrentThread(); known && !on {
		Logger().Error("native access off the game thread",
			zap.String("op", op),
			zap.String("thread", r.cfg.Dispatcher.Name))
		return errors.InvalidOperation(errors.PhaseDispatch, "%s called off the %s thread", op, r.cfg.Dispatcher.Name)
	}
	return nil
}

// Config returns the effective configuration.
func (r *Runtime) Config() Config { return r.cfg }

// Engine returns the native engine.
func (r *Runtime) Engine() *native.Engine { return r.engine }

// Env returns the marshalling environment.
func (r *Runtime) Env() *marshal.Env { return r.env }

// Handles returns the association table.
func (r *Runtime) Handles() *handle.Table[Object] { return r.handles }

// Sweeper returns the background sweeper, or nil when disabled.
func (r *Runtime) Sweeper() *handle.Sweeper { return r.sweeper }

// Send runs fn on the game thread and waits for it.
func (r *Runtime) Send(ctx context.Context, fn affinity.Work) error {
	return r.disp.Send(ctx, fn)
}

// Post queues fn on the game thread.
func (r *Runtime) Post(fn affinity.Work) error {
	return r.disp.Post(fn)
}

// Sweep prunes collected weak associations now.
func (r *Runtime) Sweep() int {
	return r.handles.Sweep()
}

// LoadModule registers a native module.
func (r *Runtime) LoadModule(name string) *Module {
	m := &Module{id: r.engine.RegisterModule(name), name: name}
	r.mu.Lock()
	r.modules[m.id] = m
	r.mu.Unlock()
	return m
}

// Modules lists loaded modules by id.
func (r *Runtime) Modules() []*Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// UnloadModule drops the module's strong associations, then tears down its
// native objects, classes and types on the game thread. The association
// sweep comes first so no rooted wrapper outlives its class metadata.
func (r *Runtime) UnloadModule(ctx context.Context, id native.ModuleID) error {
	r.mu.Lock()
	m, ok := r.modules[id]
	r.mu.Unlock()
	if !ok {
		return errors.NotFound(errors.PhaseRuntime, "module", strconv.FormatUint(uint64(id), 10))
	}
	return r.Send(ctx, func(context.Context) error {
		dropped := r.handles.OnModuleUnload(id)
		if err := r.engine.UnregisterModule(id); err != nil {
			return err
		}
		r.mu.Lock()
		delete(r.modules, id)
		r.mu.Unlock()
		r.log.Info("module unloaded",
			zap.String("module", m.name),
			zap.Int("associations", dropped))
		return nil
	})
}
