package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/gamification-engine/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPMount:           "/gamification",
		APIKeys:             []string{"caller-key"},
		AdminAPIKeys:        []string{"admin-key"},
		BodySizeLimitBytes:  1 << 20,
		EventHistoryPerName: 10,
		RuleCacheTTL:        time.Minute,
		RateLimitAnonMax:    1000,
		RateLimitAuthMax:    1000,
		RateLimitWindow:     time.Minute,
		RateLimitStrategy:   "sliding",
		WebhookFlushTimeout: 2 * time.Second,
		LogLevel:            "error",
		LogFormat:           "text",
	}
}

func TestEngineStartAndStop(t *testing.T) {
	cfg := testConfig()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := e.Start(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.MarkReady()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/gamification/health/ready", nil)
	e.http.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("readiness status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestEngineWiresAllSixModules(t *testing.T) {
	cfg := testConfig()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []string{"points", "levels", "badges", "streaks", "quests", "leaderboard"}
	for _, name := range want {
		if _, ok := e.modules[name]; !ok {
			t.Fatalf("module %q not registered", name)
		}
	}
}
