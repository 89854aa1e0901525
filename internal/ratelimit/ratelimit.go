// Package ratelimit implements the inbound request rate limiter: three
// selectable algorithms (fixed window, sliding window, token bucket),
// local or storage-backed distributed state, and whitelist/blacklist
// overrides keyed by (identity, endpoint).
//
// This is distinct from internal/platform/ratelimit, which throttles
// this service's own OUTBOUND HTTP calls to third parties; this package
// throttles INBOUND requests arriving at the HTTP API.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/gamification-engine/internal/storage"
)

// Algorithm selects the limiting strategy.
type Algorithm string

const (
	AlgorithmFixedWindow   Algorithm = "fixed_window"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmTokenBucket   Algorithm = "token_bucket"
)

// Config tunes a Limiter.
type Config struct {
	Algorithm        Algorithm
	Window           time.Duration
	AuthenticatedMax int64
	AnonymousMax     int64
	Whitelist        map[string]bool
	Blacklist        map[string]bool
	// Storage, when non-nil, puts algorithm state in shared storage so
	// multiple process instances share limits; nil means in-process only.
	Storage storage.Interface
	// PurgeInterval tunes the local-state purge scheduler; ignored in
	// distributed mode where storage TTL/trim handles expiry.
	PurgeInterval time.Duration
}

// Decision is the outcome of one Allow check.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

type localFixedEntry struct {
	count      int64
	windowEnds time.Time
}

type localTokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter enforces a rate-limit policy across a keyspace of
// (identity, endpoint) pairs.
type Limiter struct {
	cfg Config

	mu           sync.Mutex
	fixedLocal   map[string]*localFixedEntry
	slidingLocal map[string][]time.Time
	bucketLocal  map[string]*localTokenBucket

	purgeCancel context.CancelFunc
	purgeDone   chan struct{}
	stopOnce    sync.Once
}

// New constructs a Limiter. Window and algorithm default to 1 minute
// fixed-window if unset.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmFixedWindow
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = time.Minute
	}
	return &Limiter{
		cfg:          cfg,
		fixedLocal:   make(map[string]*localFixedEntry),
		slidingLocal: make(map[string][]time.Time),
		bucketLocal:  make(map[string]*localTokenBucket),
	}
}

// StartPurge launches the periodic local-state sweep. Its handle is
// retained on the Limiter and cancelled by Shutdown — the historic leak
// spec.md calls out was a purge goroutine with no way to stop it.
func (l *Limiter) StartPurge() {
	if l.cfg.Storage != nil {
		return // distributed state expires via TTL/trim, not a local sweep
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.purgeCancel = cancel
	l.purgeDone = make(chan struct{})

	go func() {
		defer close(l.purgeDone)
		ticker := time.NewTicker(l.cfg.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.purgeLocal()
			}
		}
	}()
}

// Shutdown cancels the purge scheduler and waits for it to exit.
func (l *Limiter) Shutdown() {
	l.stopOnce.Do(func() {
		if l.purgeCancel != nil {
			l.purgeCancel()
			<-l.purgeDone
		}
	})
}

func (l *Limiter) purgeLocal() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.fixedLocal {
		if now.After(e.windowEnds) {
			delete(l.fixedLocal, k)
		}
	}
	for k, timestamps := range l.slidingLocal {
		filtered := filterWithin(timestamps, now, l.cfg.Window)
		if len(filtered) == 0 {
			delete(l.slidingLocal, k)
		} else {
			l.slidingLocal[k] = filtered
		}
	}
}

func filterWithin(timestamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	out := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// key composes the keyspace identity: (authenticated userId OR client
// IP) × endpoint.
func key(identity, endpoint string) string {
	return identity + "|" + endpoint
}

// Allow checks and, if permitted, consumes one unit of the limit for
// (identity, endpoint). authenticated selects authenticatedMax vs
// anonymousMax.
func (l *Limiter) Allow(ctx context.Context, identity, endpoint string, authenticated bool) (Decision, error) {
	if l.cfg.Blacklist[identity] {
		return Decision{Allowed: false, Limit: 0, Remaining: 0, ResetAt: time.Now().Add(l.cfg.Window)}, nil
	}
	if l.cfg.Whitelist[identity] {
		return Decision{Allowed: true, Limit: -1, Remaining: -1}, nil
	}

	max := l.cfg.AnonymousMax
	if authenticated {
		max = l.cfg.AuthenticatedMax
	}
	if max <= 0 {
		return Decision{Allowed: true, Limit: -1, Remaining: -1}, nil
	}

	k := key(identity, endpoint)
	switch l.cfg.Algorithm {
	case AlgorithmSlidingWindow:
		return l.allowSlidingWindow(ctx, k, max)
	case AlgorithmTokenBucket:
		return l.allowTokenBucket(ctx, k, max)
	default:
		return l.allowFixedWindow(ctx, k, max)
	}
}

func (l *Limiter) allowFixedWindow(ctx context.Context, k string, max int64) (Decision, error) {
	now := time.Now()
	if l.cfg.Storage != nil {
		windowStart := now.Truncate(l.cfg.Window)
		storageKey := fmt.Sprintf("ratelimit:fixed:%s:%d", k, windowStart.Unix())
		count, err := l.cfg.Storage.Increment(ctx, storageKey, 1)
		if err != nil {
			return Decision{}, fmt.Errorf("ratelimit: increment: %w", err)
		}
		if count == 1 {
			if _, err := l.cfg.Storage.Expire(ctx, storageKey, l.cfg.Window); err != nil {
				return Decision{}, fmt.Errorf("ratelimit: expire: %w", err)
			}
		}
		resetAt := windowStart.Add(l.cfg.Window)
		return decisionFromCount(count, max, resetAt, now), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.fixedLocal[k]
	if !ok || now.After(entry.windowEnds) {
		entry = &localFixedEntry{count: 0, windowEnds: now.Add(l.cfg.Window)}
		l.fixedLocal[k] = entry
	}
	entry.count++
	return decisionFromCount(entry.count, max, entry.windowEnds, now), nil
}

func decisionFromCount(count, max int64, resetAt, now time.Time) Decision {
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	allowed := count <= max
	d := Decision{Allowed: allowed, Limit: max, Remaining: remaining, ResetAt: resetAt}
	if !allowed {
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}

// slidingDecision builds a denial whose RetryAfter is measured from the
// oldest request still counted in the window, not a flat window
// duration: the window empties request-by-request as old entries age
// out, so the caller can retry as soon as the oldest one does.
func slidingDecision(count, max int64, oldest, now time.Time, window time.Duration) Decision {
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: false, Limit: max, Remaining: remaining, ResetAt: now.Add(window)}
	d.RetryAfter = oldest.Add(window).Sub(now)
	if d.RetryAfter < 0 {
		d.RetryAfter = 0
	}
	return d
}

func (l *Limiter) allowSlidingWindow(ctx context.Context, k string, max int64) (Decision, error) {
	now := time.Now()

	if l.cfg.Storage != nil {
		storageKey := "ratelimit:sliding:" + k
		cutoff := now.Add(-l.cfg.Window)
		if err := l.trimSliding(ctx, storageKey, cutoff); err != nil {
			return Decision{}, err
		}
		members, err := l.cfg.Storage.ZRange(ctx, storageKey, 0, -1, storage.ZRangeOptions{WithScores: true})
		if err != nil {
			return Decision{}, fmt.Errorf("ratelimit: zrange: %w", err)
		}
		count := int64(len(members))
		if count >= max {
			oldest := now
			if len(members) > 0 {
				oldest = time.Unix(0, int64(members[0].Score))
			}
			return slidingDecision(count+1, max, oldest, now, l.cfg.Window), nil
		}
		if _, err := l.cfg.Storage.ZAdd(ctx, storageKey, float64(now.UnixNano()), uuid.NewString()); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: zadd: %w", err)
		}
		return decisionFromCount(count+1, max, now.Add(l.cfg.Window), now), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	timestamps := filterWithin(l.slidingLocal[k], now, l.cfg.Window)
	count := int64(len(timestamps))
	if count >= max {
		l.slidingLocal[k] = timestamps
		oldest := now
		if len(timestamps) > 0 {
			oldest = timestamps[0]
		}
		return slidingDecision(count+1, max, oldest, now, l.cfg.Window), nil
	}
	timestamps = append(timestamps, now)
	l.slidingLocal[k] = timestamps
	return decisionFromCount(int64(len(timestamps)), max, now.Add(l.cfg.Window), now), nil
}

// trimSliding removes every sliding-window member older than cutoff.
// storage.Interface has no range-delete for sorted sets, so this walks
// the (small, window-bounded) set and removes stale members one by one.
func (l *Limiter) trimSliding(ctx context.Context, storageKey string, cutoff time.Time) error {
	members, err := l.cfg.Storage.ZRange(ctx, storageKey, 0, -1, storage.ZRangeOptions{WithScores: true})
	if err != nil {
		return fmt.Errorf("ratelimit: zrange: %w", err)
	}
	for _, m := range members {
		if m.Score < float64(cutoff.UnixNano()) {
			if _, err := l.cfg.Storage.ZRem(ctx, storageKey, m.Member); err != nil {
				return fmt.Errorf("ratelimit: zrem: %w", err)
			}
		}
	}
	return nil
}

// allowTokenBucket refills at max/window tokens per second up to a
// capacity of max, consuming one token per request. The distributed
// path is best-effort: it reads-then-writes the bucket fields without a
// compare-and-swap primitive, so two concurrent requests against the
// shared backend can race past the nominal edge of the bucket under
// heavy concurrency — an accepted approximation given the storage
// abstraction has no atomic read-modify-write for float state.
func (l *Limiter) allowTokenBucket(ctx context.Context, k string, max int64) (Decision, error) {
	now := time.Now()
	refillRate := float64(max) / l.cfg.Window.Seconds()
	resetAt := now.Add(l.cfg.Window)

	if l.cfg.Storage != nil {
		storageKey := "ratelimit:bucket:" + k
		fields, err := l.cfg.Storage.HGetAll(ctx, storageKey)
		if err != nil {
			return Decision{}, fmt.Errorf("ratelimit: hgetall: %w", err)
		}
		tokens := float64(max)
		lastRefill := now
		if len(fields) > 0 {
			tokens = parseFloat(fields["tokens"], float64(max))
			lastRefill = parseTime(fields["lastRefill"], now)
		}
		tokens = refill(tokens, float64(max), refillRate, now.Sub(lastRefill))

		allowed := tokens >= 1
		if allowed {
			tokens--
		}
		if err := l.cfg.Storage.HSet(ctx, storageKey, "tokens", formatFloat(tokens)); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: hset tokens: %w", err)
		}
		if err := l.cfg.Storage.HSet(ctx, storageKey, "lastRefill", formatTime(now)); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: hset lastRefill: %w", err)
		}
		return tokenDecision(allowed, max, tokens, resetAt, now), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.bucketLocal[k]
	if !ok {
		bucket = &localTokenBucket{tokens: float64(max), lastRefill: now}
		l.bucketLocal[k] = bucket
	}
	bucket.tokens = refill(bucket.tokens, float64(max), refillRate, now.Sub(bucket.lastRefill))
	bucket.lastRefill = now
	allowed := bucket.tokens >= 1
	if allowed {
		bucket.tokens--
	}
	return tokenDecision(allowed, max, bucket.tokens, resetAt, now), nil
}

func refill(tokens, capacity, ratePerSecond float64, elapsed time.Duration) float64 {
	tokens += ratePerSecond * elapsed.Seconds()
	if tokens > capacity {
		tokens = capacity
	}
	return tokens
}

func tokenDecision(allowed bool, max int64, tokens float64, resetAt, now time.Time) Decision {
	remaining := int64(tokens)
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: allowed, Limit: max, Remaining: remaining, ResetAt: resetAt}
	if !allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d
}

func parseFloat(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseTime(s string, fallback time.Time) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fallback
	}
	return t
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
