package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/config"
	"github.com/R3E-Network/gamification-engine/internal/modules"
	"github.com/R3E-Network/gamification-engine/internal/modules/points"
	"github.com/R3E-Network/gamification-engine/internal/platform/logging"
	"github.com/R3E-Network/gamification-engine/internal/ratelimit"
	"github.com/R3E-Network/gamification-engine/internal/storage/memory"
	"github.com/R3E-Network/gamification-engine/internal/webhook"
)

func newTestService(t *testing.T) (*Service, *bus.Bus) {
	t.Helper()

	st := memory.New()
	b := bus.New()
	logger := logging.New("gamification-engine-test", "error", "text")

	pointsMod := points.New(points.Config{})
	pointsMod.SetContext(modules.Context{Storage: st, Bus: b})
	if err := pointsMod.Initialise(context.Background()); err != nil {
		t.Fatalf("points Initialise: %v", err)
	}

	wh := webhook.New(webhook.DefaultConfig(), b, logger)

	limiter := ratelimit.New(ratelimit.Config{
		Algorithm:        ratelimit.AlgorithmTokenBucket,
		AuthenticatedMax: 1000,
		AnonymousMax:     1000,
	})

	ready := true
	cfg := &config.Config{
		HTTPMount:          "/gamification",
		APIKeys:            []string{"caller-key"},
		AdminAPIKeys:       []string{"admin-key"},
		BodySizeLimitBytes: 1 << 20,
	}

	svc := New(Deps{
		Config:  cfg,
		Bus:     b,
		Storage: st,
		Logger:  logger,
		Limiter: limiter,
		Webhook: wh,
		Modules: map[string]modules.Module{"points": pointsMod},
		Points:  pointsMod,
		Ready:   &ready,
	})
	return svc, b
}

func doRequest(svc *Service, method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointOK(t *testing.T) {
	svc, _ := newTestService(t)
	rec := doRequest(svc, http.MethodGet, "/gamification/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestPostEventRejectsUnauthenticated(t *testing.T) {
	svc, _ := newTestService(t)
	rec := doRequest(svc, http.MethodPost, "/gamification/events", "", map[string]interface{}{
		"eventName": "points.awarded",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPostEventAcceptsValidEvent(t *testing.T) {
	svc, b := newTestService(t)

	received := make(chan bus.Event, 1)
	b.On("custom.thing", func(ev bus.Event) error {
		received <- ev
		return nil
	})

	rec := doRequest(svc, http.MethodPost, "/gamification/events", "caller-key", map[string]interface{}{
		"eventName": "custom.thing",
		"userId":    "u1",
		"amount":    5,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	select {
	case ev := <-received:
		data, ok := ev.Data.(map[string]interface{})
		if !ok || data["userId"] != "u1" {
			t.Fatalf("unexpected event data: %+v", ev.Data)
		}
	default:
		t.Fatal("handler was not invoked")
	}
}

func TestPostEventRejectsMalformedName(t *testing.T) {
	svc, _ := newTestService(t)
	rec := doRequest(svc, http.MethodPost, "/gamification/events", "caller-key", map[string]interface{}{
		"eventName": "Not Valid!!",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminAwardRequiresAdminKey(t *testing.T) {
	svc, _ := newTestService(t)
	rec := doRequest(svc, http.MethodPost, "/gamification/admin/award", "caller-key", map[string]interface{}{
		"userId": "u1",
		"points": 50,
		"reason": "test",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminAwardAppliesPoints(t *testing.T) {
	svc, _ := newTestService(t)
	rec := doRequest(svc, http.MethodPost, "/gamification/admin/award", "admin-key", map[string]interface{}{
		"userId": "u1",
		"points": 50,
		"reason": "test",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	statsRec := doRequest(svc, http.MethodGet, "/gamification/points/u1", "admin-key", nil)
	if statsRec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200: %s", statsRec.Code, statsRec.Body.String())
	}
}

func TestAdminAwardRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t)
	rec := doRequest(svc, http.MethodPost, "/gamification/admin/award", "admin-key", map[string]interface{}{
		"userId": "u1",
		"points": -5,
		"reason": "test",
	})
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 400/409: %s", rec.Code, rec.Body.String())
	}
}

func TestGetStatsRejectsCrossUserAccess(t *testing.T) {
	svc, _ := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/gamification/stats/someone-else", nil)
	req.Header.Set("X-API-Key", "caller-key")
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestGetStatsAllowsAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	rec := doRequest(svc, http.MethodGet, "/gamification/stats/anyone", "admin-key", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminResetClearsModules(t *testing.T) {
	svc, _ := newTestService(t)
	doRequest(svc, http.MethodPost, "/gamification/admin/award", "admin-key", map[string]interface{}{
		"userId": "u1",
		"points": 10,
		"reason": "seed",
	})

	rec := doRequest(svc, http.MethodPost, "/gamification/admin/reset/u1", "admin-key", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["reset"] != true {
		t.Fatalf("expected reset=true, got %+v", body)
	}
}

func TestUnknownModuleStats404(t *testing.T) {
	svc, _ := newTestService(t)
	rec := doRequest(svc, http.MethodGet, "/gamification/badges_typo/u1", "admin-key", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestPostEventRejectsReplayedRequestID(t *testing.T) {
	svc, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/gamification/events", bytes.NewBufferString(`{"eventName":"custom.thing"}`))
	req.Header.Set("X-API-Key", "caller-key")
	req.Header.Set("X-User-Id", "u1")
	req.Header.Set("X-Request-Id", "dup-1")
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first request status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodPost, "/gamification/events", bytes.NewBufferString(`{"eventName":"custom.thing"}`))
	req2.Header.Set("X-API-Key", "caller-key")
	req2.Header.Set("X-User-Id", "u1")
	req2.Header.Set("X-Request-Id", "dup-1")
	rec2 := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusConflict {
		t.Fatalf("replayed request status = %d, want 409: %s", rec2.Code, rec2.Body.String())
	}
}

func TestRateLimitHeadersPresent(t *testing.T) {
	svc, _ := newTestService(t)
	rec := doRequest(svc, http.MethodGet, "/gamification/stats/u1", "admin-key", nil)
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Fatal("expected X-RateLimit-Limit header to be set")
	}
}
