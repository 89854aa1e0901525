// Package modules defines the module-capability contract shared by the
// six gamification domain modules (points, levels, badges, streaks,
// quests, leaderboard) and a Base type providing their common lifecycle
// plumbing: context wiring, ticker-worker scheduling with idempotent
// shutdown, and a storage-backed health signal.
package modules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/platform/logging"
	"github.com/R3E-Network/gamification-engine/internal/rules"
	"github.com/R3E-Network/gamification-engine/internal/storage"
)

// Context bundles the shared collaborators every module is wired
// against: the storage backend, the event bus, the rule engine, and a
// logger. Modules never reach each other directly; all cross-module
// effects flow through Bus.
type Context struct {
	Storage storage.Interface
	Bus     *bus.Bus
	Rules   *rules.Engine
	Logger  *logging.Logger
}

// Module is the capability every domain module implements. Routes is
// optional: a module with no HTTP surface of its own returns nil.
type Module interface {
	Name() string
	SetContext(Context)
	Initialise(ctx context.Context) error
	GetUserStats(ctx context.Context, userID string) (map[string]interface{}, error)
	ResetUser(ctx context.Context, userID string) error
	Shutdown(ctx context.Context) error
	Routes() chi.Router
}

// Base provides the lifecycle plumbing shared by every concrete module:
// idempotent stop-channel shutdown, ticker-worker registration, and a
// storage-backed health check. Concrete modules embed Base and override
// GetUserStats/ResetUser/Routes/Initialise as needed.
type Base struct {
	name string
	ctx  Context

	stopCh   chan struct{}
	stopOnce sync.Once
	workers  []func(context.Context)

	mu        sync.RWMutex
	started   bool
	startTime time.Time
}

// NewBase constructs a Base for the named module.
func NewBase(name string) *Base {
	return &Base{
		name:   name,
		stopCh: make(chan struct{}),
	}
}

// Name returns the module's name.
func (b *Base) Name() string { return b.name }

// SetContext wires the shared collaborators. Must be called before
// Initialise.
func (b *Base) SetContext(ctx Context) { b.ctx = ctx }

// Storage returns the wired storage backend.
func (b *Base) Storage() storage.Interface { return b.ctx.Storage }

// Bus returns the wired event bus.
func (b *Base) Bus() *bus.Bus { return b.ctx.Bus }

// Rules returns the wired rule engine.
func (b *Base) Rules() *rules.Engine { return b.ctx.Rules }

// Logger returns the wired logger, falling back to an env-derived one
// if SetContext was never called with one (defensive for tests).
func (b *Base) Logger() *logging.Logger {
	if b.ctx.Logger != nil {
		return b.ctx.Logger
	}
	return logging.NewFromEnv(b.name)
}

type tickerWorkerConfig struct {
	label          string
	runImmediately bool
}

// TickerWorkerOption configures AddTickerWorker behavior.
type TickerWorkerOption func(*tickerWorkerConfig)

// WithWorkerLabel sets a label used in error log lines.
func WithWorkerLabel(label string) TickerWorkerOption {
	return func(cfg *tickerWorkerConfig) { cfg.label = label }
}

// WithImmediateRun causes the worker to run once immediately rather
// than waiting for the first tick.
func WithImmediateRun() TickerWorkerOption {
	return func(cfg *tickerWorkerConfig) { cfg.runImmediately = true }
}

// AddTickerWorker registers a periodic background worker that runs
// until Shutdown is called. Workers registered before Start are
// launched by Start; workers registered after Start has already run are
// started immediately.
func (b *Base) AddTickerWorker(interval time.Duration, fn func(context.Context) error, opts ...TickerWorkerOption) {
	cfg := tickerWorkerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	worker := func(ctx context.Context) {
		logErr := func(err error) {
			if err == nil {
				return
			}
			entry := b.Logger().WithContext(ctx)
			if cfg.label != "" {
				entry = entry.WithField("worker", cfg.label)
			}
			entry.WithError(err).Warn("module worker error")
		}

		if cfg.runImmediately {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			default:
			}
			logErr(fn(ctx))
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				logErr(fn(ctx))
			}
		}
	}

	b.mu.Lock()
	started := b.started
	b.mu.Unlock()

	if started {
		go worker(context.Background())
		return
	}
	b.workers = append(b.workers, worker)
}

// Start launches every registered worker. Safe to call once per module
// lifecycle; a second call is a no-op.
func (b *Base) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.startTime = time.Now()
	workers := b.workers
	b.mu.Unlock()

	for _, w := range workers {
		go w(ctx)
	}
}

// Shutdown signals every worker to stop and waits is not required since
// workers are expected to return promptly on stopCh; idempotent via
// sync.Once.
func (b *Base) Shutdown(ctx context.Context) error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	return nil
}

// Healthy reports whether the module's storage backend is connected.
func (b *Base) Healthy() bool {
	if b.ctx.Storage == nil {
		return false
	}
	return b.ctx.Storage.Connected()
}

// Uptime reports how long the module has been started.
func (b *Base) Uptime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.startTime.IsZero() {
		return 0
	}
	return time.Since(b.startTime)
}

// Routes returns nil by default; modules with an HTTP surface override it.
func (b *Base) Routes() chi.Router { return nil }

// Initialise is a no-op by default; modules override it for catalog or
// scheduler setup.
func (b *Base) Initialise(ctx context.Context) error { return nil }

// ErrUnimplemented is returned by stats/reset paths a module has chosen
// not to support.
func ErrUnimplemented(module, op string) error {
	return fmt.Errorf("modules: %s does not implement %s", module, op)
}
