package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/R3E-Network/gamification-engine/internal/bus"
)

func TestCompilePatternEscapesDotsAsLiteral(t *testing.T) {
	re, err := compilePattern("user.points")
	if err != nil {
		t.Fatalf("compilePattern: %v", err)
	}
	if re.MatchString("user_points") {
		t.Fatal("expected '.' to match literally, not as a regex wildcard")
	}
	if !re.MatchString("user.points") {
		t.Fatal("expected exact literal match to succeed")
	}
}

func TestCompilePatternWildcardsMatch(t *testing.T) {
	re, err := compilePattern("points.*")
	if err != nil {
		t.Fatalf("compilePattern: %v", err)
	}
	if !re.MatchString("points.awarded") {
		t.Fatal("expected points.* to match points.awarded")
	}
	if re.MatchString("badge.awarded") {
		t.Fatal("points.* should not match badge.awarded")
	}
}

func TestDeliverySucceedsAndSignsBody(t *testing.T) {
	var received int32
	var gotSignature string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Signature")
		buf, _ := io.ReadAll(r.Body)
		gotBody = buf
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := bus.New()
	d := New(Config{QueueSize: 10, MaxRetries: 1, RequestTimeout: 2 * time.Second}, b, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.RegisterWebhook(Descriptor{
		ID: "hook1", URL: srv.URL, EventPatterns: []string{"points.*"},
		Secret: "topsecret", Enabled: true,
	}); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}

	b.Emit("points.awarded", map[string]interface{}{"userId": "u1", "amount": 100})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&received) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Fatal("expected exactly one delivery")
	}

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSignature != want {
		t.Fatalf("X-Signature = %q, want %q", gotSignature, want)
	}
}

func TestDeliveryRetriesThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := bus.New()
	d := New(Config{QueueSize: 10, MaxRetries: 3, RetryInitial: 5 * time.Millisecond, RequestTimeout: 2 * time.Second}, b, nil)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.RegisterWebhook(Descriptor{
		ID: "hook1", URL: srv.URL, EventPatterns: []string{"points.*"}, Enabled: true,
	}); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}

	b.Emit("points.awarded", map[string]interface{}{"userId": "u1"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&attempts) < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("attempts = %d, want exactly 2", atomic.LoadInt32(&attempts))
	}
}

func TestEnqueueDropsOldestWhenQueueFull(t *testing.T) {
	b := bus.New()
	d := New(Config{QueueSize: 2, MaxRetries: 1}, b, nil)
	if err := d.RegisterWebhook(Descriptor{ID: "hook1", URL: "http://example.invalid", Enabled: true}); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}

	d.enqueue("hook1", delivery{envelope: Envelope{ID: "1"}})
	d.enqueue("hook1", delivery{envelope: Envelope{ID: "2"}})
	d.enqueue("hook1", delivery{envelope: Envelope{ID: "3"}})

	depth, capacity := d.QueueDepth("hook1")
	if depth != 2 || capacity != 2 {
		t.Fatalf("depth=%d cap=%d, want depth=2 cap=2", depth, capacity)
	}
}

func TestEncryptedSecretStillSignsCorrectly(t *testing.T) {
	var gotSignature string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Signature")
		buf, _ := io.ReadAll(r.Body)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := bus.New()
	d := New(Config{QueueSize: 10, MaxRetries: 1, RequestTimeout: 2 * time.Second}, b, nil)
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	d.SetEncryptionKey(key)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.RegisterWebhook(Descriptor{
		ID: "hook1", URL: srv.URL, EventPatterns: []string{"points.*"},
		Secret: "topsecret", Enabled: true,
	}); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}

	d.mu.RLock()
	stored := d.hooks["hook1"].Secret
	d.mu.RUnlock()
	if stored == "topsecret" {
		t.Fatal("expected secret to be encrypted at rest, found plaintext")
	}

	b.Emit("points.awarded", map[string]interface{}{"userId": "u1", "amount": 100})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && gotSignature == "" {
		time.Sleep(10 * time.Millisecond)
	}
	if gotSignature == "" {
		t.Fatal("expected a delivery")
	}

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSignature != want {
		t.Fatalf("X-Signature = %q, want %q (decrypted secret must match original)", gotSignature, want)
	}
}

func TestDegradedAt90PercentCapacity(t *testing.T) {
	b := bus.New()
	d := New(Config{QueueSize: 10, MaxRetries: 1}, b, nil)
	if err := d.RegisterWebhook(Descriptor{ID: "hook1", URL: "http://example.invalid", Enabled: true}); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}
	for i := 0; i < 9; i++ {
		d.enqueue("hook1", delivery{envelope: Envelope{ID: "x"}})
	}
	if !d.Degraded() {
		t.Fatal("expected degraded signal at 90% capacity")
	}
}
