// Package bus implements an in-process asynchronous event bus with
// wildcard subscriptions and bounded per-name history.
package bus

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/gamification-engine/internal/platform/logging"
)

// Handler receives an emitted Event. A handler returning an error does
// not affect other handlers or the emitting caller; the error is
// collected into the Emit result.
type Handler func(Event) error

// Event is the payload delivered to every matching handler.
type Event struct {
	ID        string
	Name      string
	Data      interface{}
	Timestamp time.Time
}

// EmitResult summarizes the outcome of a single Emit call.
type EmitResult struct {
	EventID       string
	ListenerCount int
	Errors        []error
}

const defaultHistoryLimit = 1000

type subscription struct {
	id      uint64
	handler Handler
}

type wildcardSubscription struct {
	subscription
	pattern *regexp.Regexp
	raw     string
}

// Bus is a concurrency-safe, error-isolating event dispatcher.
type Bus struct {
	mu         sync.RWMutex
	exact      map[string][]subscription
	wildcards  []wildcardSubscription
	nextID     uint64
	historyOn  bool
	historyCap int
	history    map[string][]Event
	logger     *logging.Logger
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithHistory enables bounded history, with cap entries retained per
// event name (0 uses the default of 1000).
func WithHistory(cap int) Option {
	return func(b *Bus) {
		b.historyOn = true
		if cap <= 0 {
			cap = defaultHistoryLimit
		}
		b.historyCap = cap
	}
}

// WithLogger attaches a logger used to report handler panics.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates a Bus. History is disabled by default.
func New(opts ...Option) *Bus {
	b := &Bus{
		exact:      make(map[string][]subscription),
		history:    make(map[string][]Event),
		historyCap: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On subscribes handler to the exact event name, returning a token that
// can later be passed to Off to remove this specific subscription.
func (b *Bus) On(name string, handler Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.exact[name] = append(b.exact[name], subscription{id: id, handler: handler})
	return id
}

// Off removes the subscription identified by token from name.
func (b *Bus) Off(name string, token uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.exact[name]
	for i, s := range subs {
		if s.id == token {
			b.exact[name] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// OnWildcard subscribes handler to every event whose name matches
// pattern. '*' matches any run of characters, '?' matches exactly one;
// every other regexp metacharacter in pattern is escaped before compile,
// so only those two characters are ever wild.
func (b *Bus) OnWildcard(pattern string, handler Handler) (uint64, error) {
	re, err := compileWildcard(pattern)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.wildcards = append(b.wildcards, wildcardSubscription{
		subscription: subscription{id: id, handler: handler},
		pattern:      re,
		raw:          pattern,
	})
	return id, nil
}

// OffWildcard removes the wildcard subscription identified by token.
func (b *Bus) OffWildcard(token uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.wildcards {
		if s.id == token {
			b.wildcards = append(b.wildcards[:i], b.wildcards[i+1:]...)
			return
		}
	}
}

func compileWildcard(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// Emit packages data under name and dispatches it to every exact and
// matching wildcard handler concurrently. Each handler runs inside an
// error-isolating wrapper: a panic or returned error is recorded but
// never propagated to another handler or to the caller. Emit blocks
// until every handler has settled.
func (b *Bus) Emit(name string, data interface{}) (EmitResult, error) {
	if strings.TrimSpace(name) == "" {
		return EmitResult{}, fmt.Errorf("bus: event name must not be empty")
	}

	ev := Event{
		ID:        uuid.New().String(),
		Name:      name,
		Data:      data,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.exact[name]))
	for _, s := range b.exact[name] {
		handlers = append(handlers, s.handler)
	}
	for _, w := range b.wildcards {
		if w.pattern.MatchString(name) {
			handlers = append(handlers, w.handler)
		}
	}
	b.mu.RUnlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, h := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("bus: handler panic: %v", r))
					mu.Unlock()
					if b.logger != nil {
						b.logger.WithFields(map[string]interface{}{
							"event": name,
							"panic": fmt.Sprintf("%v", r),
						}).Error("event handler panic recovered")
					}
				}
			}()
			if err := h(ev); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(h)
	}
	wg.Wait()

	if b.historyOn {
		b.appendHistory(ev)
	}

	return EmitResult{
		EventID:       ev.ID,
		ListenerCount: len(handlers),
		Errors:        errs,
	}, nil
}

func (b *Bus) appendHistory(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ring := append(b.history[ev.Name], ev)
	if len(ring) > b.historyCap {
		ring = ring[len(ring)-b.historyCap:]
	}
	b.history[ev.Name] = ring
}

// GetHistory returns up to limit of the most recent events recorded for
// name, oldest first. limit <= 0 returns the full retained ring.
func (b *Bus) GetHistory(name string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ring := b.history[name]
	if limit <= 0 || limit >= len(ring) {
		out := make([]Event, len(ring))
		copy(out, ring)
		return out
	}
	out := make([]Event, limit)
	copy(out, ring[len(ring)-limit:])
	return out
}

// ClearHistory discards retained history for name, or for every name
// when name is empty.
func (b *Bus) ClearHistory(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name == "" {
		b.history = make(map[string][]Event)
		return
	}
	delete(b.history, name)
}

// Destroy tears down every subscription and all retained history. The
// Bus is safe to keep using afterward, but starts empty.
func (b *Bus) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exact = make(map[string][]subscription)
	b.wildcards = nil
	b.history = make(map[string][]Event)
}
