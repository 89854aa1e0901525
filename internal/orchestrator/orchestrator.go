// Package orchestrator wires storage, the event bus, the rule engine,
// the six domain modules, the webhook dispatcher, the rate limiter, and
// the HTTP/WS surface into one process, and owns the startup and
// graceful-shutdown sequence between them.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/config"
	"github.com/R3E-Network/gamification-engine/internal/httpapi"
	"github.com/R3E-Network/gamification-engine/internal/modules"
	"github.com/R3E-Network/gamification-engine/internal/modules/badges"
	"github.com/R3E-Network/gamification-engine/internal/modules/leaderboard"
	"github.com/R3E-Network/gamification-engine/internal/modules/levels"
	"github.com/R3E-Network/gamification-engine/internal/modules/points"
	"github.com/R3E-Network/gamification-engine/internal/modules/quests"
	"github.com/R3E-Network/gamification-engine/internal/modules/streaks"
	"github.com/R3E-Network/gamification-engine/internal/platform/logging"
	"github.com/R3E-Network/gamification-engine/internal/platform/metrics"
	"github.com/R3E-Network/gamification-engine/internal/platform/security"
	"github.com/R3E-Network/gamification-engine/internal/ratelimit"
	"github.com/R3E-Network/gamification-engine/internal/rules"
	"github.com/R3E-Network/gamification-engine/internal/storage"
	"github.com/R3E-Network/gamification-engine/internal/storage/memory"
	"github.com/R3E-Network/gamification-engine/internal/storage/mongostore"
	"github.com/R3E-Network/gamification-engine/internal/storage/postgres"
	"github.com/R3E-Network/gamification-engine/internal/storage/redisstore"
	"github.com/R3E-Network/gamification-engine/internal/webhook"
)

// Stores lets callers override individual storage-backed collaborators
// (primarily for tests); a nil field falls back to the backend selected
// by Config.StorageBackend.
type Stores struct {
	Storage storage.Interface
}

// Option customises the engine before it is built.
type Option func(*builderConfig)

type builderConfig struct {
	stores Stores
	logger *logging.Logger
}

// WithStores overrides the storage adapter, bypassing Config.StorageBackend.
func WithStores(s Stores) Option {
	return func(b *builderConfig) { b.stores = s }
}

// WithLogger injects a logger; omitted, the engine builds one from cfg.
func WithLogger(l *logging.Logger) Option {
	return func(b *builderConfig) { b.logger = l }
}

// Engine ties every collaborator together and manages their lifecycle:
// connect storage, build the bus/rule engine, construct and initialise
// the six domain modules, start the webhook dispatcher and rate
// limiter's purge scheduler, and bind the HTTP surface.
type Engine struct {
	cfg     *config.Config
	logger  *logging.Logger
	storage storage.Interface
	bus     *bus.Bus
	rules   *rules.Engine
	metrics *metrics.Metrics
	limiter *ratelimit.Limiter
	webhook *webhook.Dispatcher
	modules map[string]modules.Module
	points  *points.Module
	http    *httpapi.Service

	ready *bool
}

// New builds a fully wired Engine from cfg. The returned Engine has not
// started: call Start to connect storage, launch background workers,
// and bind the HTTP listener.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	var b builderConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}

	logger := b.logger
	if logger == nil {
		logger = logging.New("gamification-engine", cfg.LogLevel, cfg.LogFormat)
	}

	store := b.stores.Storage
	if store == nil {
		connected, err := connectStorage(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("connect storage: %w", err)
		}
		store = connected
	}

	eventBus := bus.New(bus.WithHistory(cfg.EventHistoryPerName), bus.WithLogger(logger))
	ruleEngine := rules.New(cfg.RuleCacheTTL)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New("gamification-engine")
	}

	limiter := ratelimit.New(ratelimit.Config{
		Algorithm:        rateLimitAlgorithm(cfg.RateLimitStrategy),
		Window:           cfg.RateLimitWindow,
		AuthenticatedMax: int64(cfg.RateLimitAuthMax),
		AnonymousMax:     int64(cfg.RateLimitAnonMax),
		Storage:          store,
	})

	whCfg := webhook.DefaultConfig()
	wh := webhook.New(whCfg, eventBus, logger)
	if len(cfg.EncryptionKey) > 0 {
		wh.SetEncryptionKey(cfg.EncryptionKey)
	}

	modCtx := modules.Context{Storage: store, Bus: eventBus, Rules: ruleEngine, Logger: logger}

	pointsMod := points.New(points.Config{})
	levelsMod := levels.New(levels.Config{
		Formula: levels.Formula{Kind: levels.FormulaExponential, BaseXP: 100, Growth: 1.5, MaxLevel: 100},
	})
	badgesMod := badges.New()
	streaksMod := streaks.New(streaks.Config{
		Types: map[string]streaks.TypeConfig{
			"daily": {
				Window:         24 * time.Hour,
				Grace:          4 * time.Hour,
				FreezeWindow:   7 * 24 * time.Hour,
				InitialFreezes: 1,
				Milestones:     []int{7, 30, 100, 365},
			},
		},
	})
	questsMod := quests.New(quests.Config{MaxActiveQuests: 10, DailyQuestLimit: 3})
	leaderboardMod := leaderboard.New()

	registry := map[string]modules.Module{
		"points":      pointsMod,
		"levels":      levelsMod,
		"badges":      badgesMod,
		"streaks":     streaksMod,
		"quests":      questsMod,
		"leaderboard": leaderboardMod,
	}
	for _, mod := range registry {
		mod.SetContext(modCtx)
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		storage: store,
		bus:     eventBus,
		rules:   ruleEngine,
		metrics: m,
		limiter: limiter,
		webhook: wh,
		modules: registry,
		points:  pointsMod,
	}

	ready := false
	e.ready = &ready
	e.http = httpapi.New(httpapi.Deps{
		Config:  cfg,
		Bus:     eventBus,
		Storage: store,
		Logger:  logger,
		Metrics: m,
		Limiter: limiter,
		Webhook: wh,
		Modules: registry,
		Points:  pointsMod,
		Ready:   e.ready,
	})

	return e, nil
}

// rateLimitAlgorithm maps GK_RATE_LIMIT_STRATEGY's short env-var spelling
// onto ratelimit's Algorithm constants; an unrecognised value falls back
// to the limiter's own fixed-window default.
func rateLimitAlgorithm(strategy string) ratelimit.Algorithm {
	switch strategy {
	case "sliding", "sliding_window":
		return ratelimit.AlgorithmSlidingWindow
	case "token", "token_bucket":
		return ratelimit.AlgorithmTokenBucket
	case "fixed", "fixed_window":
		return ratelimit.AlgorithmFixedWindow
	default:
		return ""
	}
}

func connectStorage(ctx context.Context, cfg *config.Config) (storage.Interface, error) {
	switch cfg.StorageBackend {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return redisstore.New(client), nil
	case config.StoragePostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	case config.StorageMongo:
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return memory.New(), nil
	}
}

// Start initialises every module, starts the webhook dispatcher and
// rate limiter purge scheduler, and binds the HTTP listener at addr.
func (e *Engine) Start(ctx context.Context, addr string) error {
	for name, mod := range e.modules {
		if err := mod.Initialise(ctx); err != nil {
			return fmt.Errorf("initialise %s module: %w", name, err)
		}
	}

	if err := e.webhook.Start(ctx); err != nil {
		return fmt.Errorf("start webhook dispatcher: %w", err)
	}

	e.limiter.StartPurge()

	if err := e.http.Start(addr); err != nil {
		return fmt.Errorf("start http listener: %w", err)
	}

	e.logger.WithContext(ctx).WithField("addr", addr).Info("gamification engine started")
	return nil
}

// Stop runs the shutdown sequence spec.md §5 names: stop accepting
// HTTP/WS, flush the webhook queue, stop modules and their schedulers,
// disconnect storage, and destroy the bus. It always attempts every
// step even if an earlier one fails, returning the first error seen.
func (e *Engine) Stop(ctx context.Context) error {
	var firstErr error
	record := func(step string, err error) {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", step, err)
		}
		if err != nil {
			e.logger.WithContext(ctx).WithField("step", step).WithField("error", security.SanitizeError(err)).Error("shutdown step failed")
		}
	}

	record("stop http", e.http.Stop(ctx))

	flushCtx, cancel := context.WithTimeout(ctx, e.cfg.WebhookFlushTimeout)
	record("flush webhooks", e.webhook.Shutdown(flushCtx))
	cancel()

	for name, mod := range e.modules {
		record(fmt.Sprintf("stop module %s", name), mod.Shutdown(ctx))
	}

	e.limiter.Shutdown()

	record("disconnect storage", e.storage.Disconnect(ctx))

	e.bus.Destroy()

	return firstErr
}

// MarkReady flips the readiness flag the HTTP health endpoint reports.
// The orchestrator's caller invokes this once Start has returned
// successfully.
func (e *Engine) MarkReady() { *e.ready = true }
