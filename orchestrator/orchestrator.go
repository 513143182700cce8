// Package orchestrator owns the lifecycle of the streaming chat core: it
// initializes the registry, connection pool, engine adapter, document
// processor and coordinator in fixed dependency order, exposes the streaming
// façade, and aggregates health. Nothing below this package is allowed to
// crash the process; per-turn failures terminate as chunks and only
// initialization errors propagate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatmesh/chatmesh/config"
	"github.com/chatmesh/chatmesh/connection"
	"github.com/chatmesh/chatmesh/coordinator"
	"github.com/chatmesh/chatmesh/core"
	"github.com/chatmesh/chatmesh/logging"
	"github.com/chatmesh/chatmesh/registry"
)

// State is the orchestrator lifecycle state.
type State int32

const (
	// StateUninitialized is the zero state; Start has not run (or rolled back).
	StateUninitialized State = iota
	// StateInitializing means Start is in progress.
	StateInitializing
	// StateReady is the only state in which StreamChat proceeds without waiting.
	StateReady
	// StateShuttingDown means Stop is in progress.
	StateShuttingDown
	// StateStopped means Stop completed.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrNoProcessor indicates HandleFileChat was called without a wired
// document processor.
var ErrNoProcessor = errors.New("no document processor configured")

// Options configure the Orchestrator.
type Options struct {
	// Settings overrides centralized config loading when non-nil.
	Settings *core.Settings
	// ConfigFile forces a specific config file when Settings is nil.
	ConfigFile string
	// EngineAdapter enables the agentic path when non-nil.
	EngineAdapter core.EngineAdapter
	// DocumentProcessor serves HandleFileChat when non-nil.
	DocumentProcessor core.DocumentProcessor
	// Logger overrides the default. When left nil the orchestrator stays
	// silent unless settings come from centralized config, in which case a
	// structured logger is built from the configured level and format.
	Logger logging.Logger

	// StartupWaitAttempts and StartupWaitInterval bound how long StreamChat
	// waits for Start to finish before giving up with an empty stream.
	StartupWaitAttempts int
	StartupWaitInterval time.Duration

	// SweepInterval and SweepMaxAge drive the background stale-turn sweep.
	SweepInterval time.Duration
	SweepMaxAge   time.Duration

	// HistoryLimit caps the per-client conversation buffer.
	HistoryLimit int
}

// Orchestrator is the root façade. Construct with New, then Start before
// streaming. Public methods are safe for concurrent use.
type Orchestrator struct {
	opts  Options
	state atomic.Int32

	mu          sync.Mutex // guards lifecycle transitions
	conn        *connection.Manager
	registry    *registry.Registry
	adapter     core.EngineAdapter
	docs        core.DocumentProcessor
	coordinator *coordinator.Coordinator
	settings    core.Settings
	logger      logging.Logger

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New constructs an Orchestrator. No resources are allocated until Start.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		StartupWaitAttempts: 30,
		StartupWaitInterval: time.Second,
		SweepInterval:       time.Minute,
		SweepMaxAge:         10 * time.Minute,
		HistoryLimit:        coordinator.DefaultHistoryLimit,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Orchestrator{opts: opts, logger: logger}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Start initializes sub-modules in dependency order: connection manager,
// registry, engine adapter, document processor, coordinator. Any failure
// rolls back the modules already initialized and returns the error.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.State() {
	case StateReady:
		return nil
	case StateInitializing, StateShuttingDown:
		return fmt.Errorf("start called in state %s", o.State())
	}
	o.state.Store(int32(StateInitializing))

	settings, err := o.loadSettings()
	if err != nil {
		o.state.Store(int32(StateUninitialized))
		return fmt.Errorf("failed to load settings: %w", err)
	}
	o.settings = settings

	var rollback []func()
	fail := func(step string, err error) error {
		o.logger.Error("initialization failed", "step", step, "error", err)
		for i := len(rollback) - 1; i >= 0; i-- {
			rollback[i]()
		}
		o.state.Store(int32(StateUninitialized))
		return fmt.Errorf("failed to initialize %s: %w", step, err)
	}

	o.conn = connection.New(func(c *connection.Options) { c.Logger = o.logger })
	rollback = append(rollback, func() { o.conn.Close(); o.conn = nil })

	o.registry = registry.New(func(r *registry.Options) { r.Logger = o.logger })
	rollback = append(rollback, func() { o.registry = nil })

	o.adapter = o.opts.EngineAdapter
	rollback = append(rollback, func() { o.adapter = nil })
	if o.adapter != nil {
		if cfg, ok := o.adapter.(interface{ Configure(core.Settings) error }); ok {
			if err := cfg.Configure(settings); err != nil {
				return fail("engine adapter", err)
			}
		}
		o.logger.Info("engine adapter wired")
	} else {
		o.logger.Info("no engine adapter; fallback path only")
	}

	o.docs = o.opts.DocumentProcessor
	rollback = append(rollback, func() { o.docs = nil })

	o.coordinator = coordinator.New(o.registry, o.conn, func(c *coordinator.Options) {
		c.EngineAdapter = o.adapter
		c.Settings = settings
		c.HistoryLimit = o.opts.HistoryLimit
		c.Logger = o.logger
	})
	rollback = append(rollback, func() { o.coordinator = nil })

	o.startSweeper()

	o.state.Store(int32(StateReady))
	o.logger.Info("orchestrator ready", "engine", o.adapter != nil)
	return nil
}

// Stop tears down modules in reverse order. Individual teardown failures are
// logged, never fatal, so shutdown always completes.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.State() == StateStopped || o.State() == StateUninitialized {
		return
	}
	o.state.Store(int32(StateShuttingDown))

	o.stopSweeper()

	o.coordinator = nil

	if closer, ok := o.docs.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			o.logger.Warn("document processor close failed", "error", err)
		}
	}
	o.docs = nil

	if o.adapter != nil {
		o.adapter.Interrupt()
		if closer, ok := o.adapter.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				o.logger.Warn("engine adapter close failed", "error", err)
			}
		}
		o.adapter = nil
	}

	if o.registry != nil {
		if n := o.registry.CancelAll(); n > 0 {
			o.logger.Info("cancelled in-flight turns on shutdown", "count", n)
		}
	}

	if o.conn != nil {
		o.conn.Close()
	}

	o.state.Store(int32(StateStopped))
	o.logger.Info("orchestrator stopped")
}

// StreamChat delegates to the coordinator once the orchestrator is ready. If
// startup has not finished it waits a bounded number of poll intervals; on
// timeout it terminates the stream with no chunks rather than raising, so a
// startup race never surfaces as a client-visible crash. Callers must treat
// an empty stream as a transient condition worth retrying.
func (o *Orchestrator) StreamChat(ctx context.Context, req coordinator.ChatRequest) <-chan core.Chunk {
wait:
	for i := 0; i < o.opts.StartupWaitAttempts; i++ {
		if c := o.readyCoordinator(); c != nil {
			return c.StreamChat(ctx, req)
		}
		select {
		case <-ctx.Done():
			break wait
		case <-time.After(o.opts.StartupWaitInterval):
		}
	}
	if c := o.readyCoordinator(); c != nil {
		return c.StreamChat(ctx, req)
	}

	o.logger.Warn("stream requested while not ready", "state", o.State().String(), "client_id", req.ClientID)
	empty := make(chan core.Chunk)
	close(empty)
	return empty
}

// StopGeneration cancels the turn and reports whether it was found. When
// found it additionally fans the cancellation out to every sink that could be
// serving the turn — the engine's interrupt, an explicit interrupt input
// frame, and a connection reset for the fallback path — each step guarded so
// one failure doesn't block the next.
func (o *Orchestrator) StopGeneration(turnID string) bool {
	o.mu.Lock()
	reg, adapter, conn := o.registry, o.adapter, o.conn
	o.mu.Unlock()

	if reg == nil || !reg.Cancel(turnID) {
		return false
	}

	if adapter != nil {
		adapter.Interrupt()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := adapter.Input(ctx, core.NewInterruptFrame()); err != nil {
			o.logger.Warn("interrupt input failed", "turn_id", turnID, "error", err)
		}
		cancel()
	}

	if conn != nil {
		conn.Reset()
	}

	o.logger.Info("generation stopped", "turn_id", turnID)
	return true
}

// HandleFileChat forwards a document request to the wired processor.
func (o *Orchestrator) HandleFileChat(ctx context.Context, req core.FileRequest) (core.FileResult, error) {
	o.mu.Lock()
	docs := o.docs
	o.mu.Unlock()

	if docs == nil {
		return core.FileResult{}, ErrNoProcessor
	}
	return docs.Process(ctx, req)
}

// ModuleHealth is one sub-module's health report.
type ModuleHealth struct {
	Available bool           `json:"available"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Health aggregates sub-module health. It never fails; missing modules
// report {available: false}.
type Health struct {
	State   string                  `json:"state"`
	Modules map[string]ModuleHealth `json:"modules"`
}

// GetHealth reports the orchestrator and sub-module status.
func (o *Orchestrator) GetHealth() Health {
	o.mu.Lock()
	defer o.mu.Unlock()

	h := Health{State: o.State().String(), Modules: make(map[string]ModuleHealth)}

	if o.registry != nil {
		h.Modules["registry"] = ModuleHealth{Available: true, Detail: map[string]any{"active_turns": o.registry.Count()}}
	} else {
		h.Modules["registry"] = ModuleHealth{}
	}

	if o.conn != nil {
		h.Modules["connection"] = ModuleHealth{Available: true, Detail: map[string]any{"client_created": o.conn.Available()}}
	} else {
		h.Modules["connection"] = ModuleHealth{}
	}

	if o.coordinator != nil {
		h.Modules["coordinator"] = ModuleHealth{Available: true}
	} else {
		h.Modules["coordinator"] = ModuleHealth{}
	}

	h.Modules["engine"] = ModuleHealth{Available: o.adapter != nil}
	h.Modules["documents"] = ModuleHealth{Available: o.docs != nil}
	return h
}

// Coordinator exposes the coordinator for history diagnostics. Nil until Start.
func (o *Orchestrator) Coordinator() *coordinator.Coordinator {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.coordinator
}

// readyCoordinator returns the coordinator only in the ready state; it blocks
// while a lifecycle transition holds the lock.
func (o *Orchestrator) readyCoordinator() *coordinator.Coordinator {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.State() != StateReady {
		return nil
	}
	return o.coordinator
}

func (o *Orchestrator) loadSettings() (core.Settings, error) {
	if o.opts.Settings != nil {
		return *o.opts.Settings, nil
	}
	cfg, err := config.Load(func(c *config.Options) { c.ConfigFile = o.opts.ConfigFile })
	if err != nil {
		return core.Settings{}, err
	}
	if o.opts.Logger == nil {
		o.logger = logging.New(&logging.Config{
			Level:  logging.ParseLevel(cfg.LogLevel),
			Format: cfg.LogFormat,
		})
	}
	return cfg.Settings(), nil
}

// startSweeper launches the periodic stale-turn sweep; callers hold o.mu.
func (o *Orchestrator) startSweeper() {
	o.sweepStop = make(chan struct{})
	o.sweepDone = make(chan struct{})
	reg := o.registry

	go func() {
		defer close(o.sweepDone)
		ticker := time.NewTicker(o.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-o.sweepStop:
				return
			case <-ticker.C:
				if n := reg.SweepStale(o.opts.SweepMaxAge); n > 0 {
					o.logger.Info("swept stale turns", "count", n)
				}
			}
		}
	}()
}

// stopSweeper halts the sweep goroutine; callers hold o.mu.
func (o *Orchestrator) stopSweeper() {
	if o.sweepStop == nil {
		return
	}
	close(o.sweepStop)
	<-o.sweepDone
	o.sweepStop = nil
	o.sweepDone = nil
}
