package config

import (
	"testing"

	"github.com/R3E-Network/gamification-engine/internal/platform/runtime"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GK_ENV", "")
	t.Setenv("GK_STORAGE_BACKEND", "")
	t.Setenv("GK_ADMIN_API_KEYS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Env != Development {
		t.Fatalf("Env = %q, want development", cfg.Env)
	}
	if cfg.StorageBackend != StorageMemory {
		t.Fatalf("StorageBackend = %q, want memory", cfg.StorageBackend)
	}
	if cfg.HTTPMount != "/gamification" {
		t.Fatalf("HTTPMount = %q", cfg.HTTPMount)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("GK_ENV", "bogus")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid GK_ENV")
	}
}

func TestValidate_ProductionRequiresNonMemoryStorage(t *testing.T) {
	cfg := &Config{
		Env:            Production,
		StorageBackend: StorageMemory,
		HTTPPort:       8080,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for memory storage in production")
	}
}

func TestValidate_ProductionRequiresAdminKeysAndEncryptionKey(t *testing.T) {
	cfg := &Config{
		Env:            Production,
		StorageBackend: StorageRedis,
		HTTPPort:       8080,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing admin keys / encryption key")
	}

	cfg.AdminAPIKeys = []string{"admin-key"}
	cfg.EncryptionKey = make([]byte, 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_RejectsWrongEncryptionKeyLength(t *testing.T) {
	cfg := &Config{
		Env:            Development,
		StorageBackend: StorageMemory,
		HTTPPort:       8080,
		EncryptionKey:  make([]byte, 16),
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for wrong-length encryption key")
	}
}

func TestValidate_RejectsPublicEndpointsInStrictIdentityMode(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	runtime.ResetStrictIdentityModeCache()
	defer runtime.ResetStrictIdentityModeCache()

	cfg := &Config{
		Env:             Development,
		StorageBackend:  StorageMemory,
		HTTPPort:        8080,
		PublicEndpoints: true,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for public endpoints under strict identity mode")
	}
}

func TestSplitNonEmpty(t *testing.T) {
	got := splitNonEmpty(" a, b ,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitNonEmpty() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitNonEmpty()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if splitNonEmpty("") != nil {
		t.Fatalf("splitNonEmpty(\"\") should be nil")
	}
}
