package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/gamification-engine/internal/storage/memory"
)

func TestFixedWindowAllowsUpToMaxThenDenies(t *testing.T) {
	l := New(Config{Algorithm: AlgorithmFixedWindow, Window: time.Minute, AnonymousMax: 2})
	ctx := context.Background()

	d1, err := l.Allow(ctx, "ip1", "/events", false)
	if err != nil || !d1.Allowed {
		t.Fatalf("first request should be allowed: %v %+v", err, d1)
	}
	d2, err := l.Allow(ctx, "ip1", "/events", false)
	if err != nil || !d2.Allowed {
		t.Fatalf("second request should be allowed: %v %+v", err, d2)
	}
	d3, err := l.Allow(ctx, "ip1", "/events", false)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d3.Allowed {
		t.Fatal("third request should be denied")
	}
	if d3.RetryAfter <= 0 {
		t.Fatal("expected positive RetryAfter on denial")
	}
}

// Mirrors the documented scenario: max=3, window=1s; four requests at
// t=0, 0.1, 0.2, 0.3 → first three allowed with remaining in {2,1,0},
// fourth denied with no state mutation and RetryAfter measured from the
// oldest counted request (≈0.7s), not a flat window (≈1s).
func TestSlidingWindowScenario(t *testing.T) {
	l := New(Config{Algorithm: AlgorithmSlidingWindow, Window: time.Second, AnonymousMax: 3})
	ctx := context.Background()
	const step = 100 * time.Millisecond

	var remainders []int64
	for i := 0; i < 3; i++ {
		if i > 0 {
			time.Sleep(step)
		}
		d, err := l.Allow(ctx, "ip1", "/events", false)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		remainders = append(remainders, d.Remaining)
	}
	if remainders[0] != 2 || remainders[1] != 1 || remainders[2] != 0 {
		t.Fatalf("remaining sequence = %v, want [2,1,0]", remainders)
	}

	before, err := l.Allow(ctx, "ip2", "/events", false)
	if err != nil || !before.Allowed {
		t.Fatalf("unrelated key should be unaffected: %v %+v", err, before)
	}

	time.Sleep(step)
	denied, err := l.Allow(ctx, "ip1", "/events", false)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if denied.Allowed {
		t.Fatal("fourth request should be denied")
	}
	// The oldest counted request is ~0.3s old (three steps), so
	// RetryAfter should be well under the full 1s window; a flat,
	// non-oldest-aware implementation would report ≈1s here.
	if denied.RetryAfter <= 0 || denied.RetryAfter > 900*time.Millisecond {
		t.Fatalf("RetryAfter = %v, want roughly 0.7s (not a flat window)", denied.RetryAfter)
	}
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	l := New(Config{Algorithm: AlgorithmTokenBucket, Window: 100 * time.Millisecond, AnonymousMax: 1})
	ctx := context.Background()

	d1, err := l.Allow(ctx, "ip1", "/events", false)
	if err != nil || !d1.Allowed {
		t.Fatalf("first request should consume the sole token: %v %+v", err, d1)
	}
	d2, err := l.Allow(ctx, "ip1", "/events", false)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d2.Allowed {
		t.Fatal("second immediate request should be denied (bucket empty)")
	}

	time.Sleep(120 * time.Millisecond)
	d3, err := l.Allow(ctx, "ip1", "/events", false)
	if err != nil || !d3.Allowed {
		t.Fatalf("request after refill window should be allowed: %v %+v", err, d3)
	}
}

func TestWhitelistSkipsLimiting(t *testing.T) {
	l := New(Config{Algorithm: AlgorithmFixedWindow, Window: time.Minute, AnonymousMax: 1, Whitelist: map[string]bool{"vip": true}})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "vip", "/events", false)
		if err != nil || !d.Allowed {
			t.Fatalf("whitelisted identity should always be allowed: %v %+v", err, d)
		}
	}
}

func TestBlacklistAlwaysDenies(t *testing.T) {
	l := New(Config{Algorithm: AlgorithmFixedWindow, Window: time.Minute, AnonymousMax: 100, Blacklist: map[string]bool{"bad": true}})
	ctx := context.Background()
	d, err := l.Allow(ctx, "bad", "/events", false)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("blacklisted identity should always be denied")
	}
}

func TestAuthenticatedAndAnonymousMaxAreIndependent(t *testing.T) {
	l := New(Config{Algorithm: AlgorithmFixedWindow, Window: time.Minute, AnonymousMax: 1, AuthenticatedMax: 10})
	ctx := context.Background()

	if _, err := l.Allow(ctx, "u1", "/events", false); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	d, err := l.Allow(ctx, "u1", "/events", false)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("anonymous second request should be denied at anonymousMax=1")
	}

	authed, err := l.Allow(ctx, "u1", "/events", true)
	if err != nil || !authed.Allowed {
		t.Fatalf("authenticated request shares the identity|endpoint counter (now at 2) but is checked against authenticatedMax=10; expect allowed: %v %+v", err, authed)
	}
}

func TestDistributedFixedWindowUsesSharedStorage(t *testing.T) {
	store := memory.New()
	l := New(Config{Algorithm: AlgorithmFixedWindow, Window: time.Minute, AnonymousMax: 2, Storage: store})
	ctx := context.Background()

	if _, err := l.Allow(ctx, "ip1", "/events", false); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if _, err := l.Allow(ctx, "ip1", "/events", false); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	d, err := l.Allow(ctx, "ip1", "/events", false)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("third request should be denied via shared storage state")
	}
}

func TestShutdownCancelsPurgeScheduler(t *testing.T) {
	l := New(Config{Algorithm: AlgorithmFixedWindow, Window: time.Minute, AnonymousMax: 10, PurgeInterval: 10 * time.Millisecond})
	l.StartPurge()
	l.Shutdown()
	// Calling Shutdown a second time must not panic or block.
	l.Shutdown()
}
