// Package config provides environment-aware configuration management for the
// gamification engine.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/gamification-engine/internal/platform/runtime"
)

func decodeEncryptionKey(raw string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %w", err)
	}
	return key, nil
}

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// ParseEnvironment parses a raw environment name, defaulting to false on an
// unrecognised value.
func ParseEnvironment(raw string) (Environment, bool) {
	switch Environment(strings.ToLower(raw)) {
	case Development:
		return Development, true
	case Testing:
		return Testing, true
	case Production:
		return Production, true
	default:
		return "", false
	}
}

// StorageBackend selects which storage.Interface adapter the orchestrator wires.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageRedis    StorageBackend = "redis"
	StoragePostgres StorageBackend = "postgres"
	StorageMongo    StorageBackend = "mongo"
)

// Config holds all application configuration for the gamification engine.
type Config struct {
	Env Environment

	// Storage
	StorageBackend StorageBackend
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PostgresDSN    string
	MongoURI       string
	MongoDatabase  string

	// HTTP
	HTTPPort  int
	HTTPMount string

	// Authentication
	APIKeys      []string
	AdminAPIKeys []string

	// Encryption / webhooks
	EncryptionKey []byte
	WebhookSecret string

	// Rate limiting
	RateLimitAnonMax  int
	RateLimitAuthMax  int
	RateLimitWindow   time.Duration
	RateLimitStrategy string

	// Logging
	LogLevel  string
	LogFormat string

	// Features
	MetricsEnabled  bool
	TestMode        bool
	PublicEndpoints bool

	// Shutdown
	ShutdownTimeout       time.Duration
	WebhookFlushTimeout   time.Duration
	EventHistoryPerName   int
	BodySizeLimitBytes    int64
	RuleCacheTTL          time.Duration
	LeaderboardPageMax    int
}

// Load loads configuration based on the GK_ENV environment variable, applying
// an optional config/<env>.env file before falling back to process env vars.
func Load() (*Config, error) {
	envStr := os.Getenv("GK_ENV")
	if envStr == "" {
		envStr = string(Development)
	}

	env, ok := ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid GK_ENV: %s (must be development, testing, or production)", envStr)
	}

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.StorageBackend = StorageBackend(runtime.ResolveString("", "GK_STORAGE_BACKEND", string(StorageMemory)))
	c.RedisAddr = runtime.ResolveString("", "GK_REDIS_ADDR", "localhost:6379")
	c.RedisPassword = runtime.ResolveString("", "GK_REDIS_PASSWORD", "")
	c.RedisDB = runtime.ResolveInt(0, "GK_REDIS_DB", 0)
	c.PostgresDSN = runtime.ResolveString("", "GK_POSTGRES_DSN", "")
	c.MongoURI = runtime.ResolveString("", "GK_MONGO_URI", "mongodb://localhost:27017")
	c.MongoDatabase = runtime.ResolveString("", "GK_MONGO_DATABASE", "gamification")

	c.HTTPPort = runtime.ResolveInt(0, "GK_HTTP_PORT", 8080)
	c.HTTPMount = runtime.ResolveString("", "GK_HTTP_MOUNT", "/gamification")

	c.APIKeys = splitNonEmpty(runtime.ResolveString("", "GK_API_KEYS", ""))
	c.AdminAPIKeys = splitNonEmpty(runtime.ResolveString("", "GK_ADMIN_API_KEYS", ""))

	c.WebhookSecret = runtime.ResolveString("", "GK_WEBHOOK_SECRET", "")
	encKey := runtime.ResolveString("", "GK_ENCRYPTION_KEY", "")
	if encKey != "" {
		key, err := decodeEncryptionKey(encKey)
		if err != nil {
			return fmt.Errorf("invalid GK_ENCRYPTION_KEY: %w", err)
		}
		c.EncryptionKey = key
	}

	c.RateLimitAnonMax = runtime.ResolveInt(0, "GK_RATE_LIMIT_ANON_MAX", 60)
	c.RateLimitAuthMax = runtime.ResolveInt(0, "GK_RATE_LIMIT_AUTH_MAX", 600)
	c.RateLimitWindow = runtime.ResolveDuration(0, "GK_RATE_LIMIT_WINDOW", time.Minute)
	c.RateLimitStrategy = runtime.ResolveString("", "GK_RATE_LIMIT_STRATEGY", "sliding")

	c.LogLevel = runtime.ResolveString("", "GK_LOG_LEVEL", "info")
	c.LogFormat = runtime.ResolveString("", "GK_LOG_FORMAT", "json")

	c.MetricsEnabled = runtime.ResolveBool(true, "GK_METRICS_ENABLED")
	c.TestMode = runtime.ResolveBool(false, "GK_TEST_MODE")
	c.PublicEndpoints = runtime.ResolveBool(false, "GK_PUBLIC_ENDPOINTS")

	c.ShutdownTimeout = runtime.ResolveDuration(0, "GK_SHUTDOWN_TIMEOUT", 30*time.Second)
	c.WebhookFlushTimeout = runtime.ResolveDuration(0, "GK_WEBHOOK_FLUSH_TIMEOUT", 10*time.Second)

	c.EventHistoryPerName = runtime.ResolveInt(0, "GK_EVENT_HISTORY_PER_NAME", 100)
	c.BodySizeLimitBytes = int64(runtime.ResolveInt(0, "GK_BODY_SIZE_LIMIT_BYTES", 1<<20))

	c.RuleCacheTTL = runtime.ResolveDuration(0, "GK_RULE_CACHE_TTL", 30*time.Second)
	c.LeaderboardPageMax = runtime.ResolveInt(0, "GK_LEADERBOARD_PAGE_MAX", 100)

	return nil
}

// IsDevelopment reports whether the engine is configured for development.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsTesting reports whether the engine is configured for testing.
func (c *Config) IsTesting() bool { return c.Env == Testing }

// IsProduction reports whether the engine is configured for production.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate validates the configuration, applying stricter checks in production.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory, StorageRedis, StoragePostgres, StorageMongo:
	default:
		return fmt.Errorf("invalid GK_STORAGE_BACKEND: %s", c.StorageBackend)
	}

	if c.IsProduction() {
		if c.StorageBackend == StorageMemory {
			return fmt.Errorf("GK_STORAGE_BACKEND must not be memory in production")
		}
		if len(c.AdminAPIKeys) == 0 {
			return fmt.Errorf("GK_ADMIN_API_KEYS must be set in production")
		}
		if len(c.EncryptionKey) == 0 {
			return fmt.Errorf("GK_ENCRYPTION_KEY must be set in production")
		}
	}

	if c.PublicEndpoints && runtime.StrictIdentityMode() {
		return fmt.Errorf("GK_PUBLIC_ENDPOINTS must not be enabled in strict identity mode")
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid GK_HTTP_PORT: %d", c.HTTPPort)
	}
	if len(c.EncryptionKey) != 0 && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("GK_ENCRYPTION_KEY must decode to exactly 32 bytes, got %d", len(c.EncryptionKey))
	}

	return nil
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

