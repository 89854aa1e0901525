// Package webhook implements the outbound webhook dispatcher: a
// registry of descriptors, one bounded delivery queue per webhook, HMAC
// request signing, and retrying delivery with a dead-letter fallback.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/platform/crypto"
	"github.com/R3E-Network/gamification-engine/internal/platform/logging"
	"github.com/R3E-Network/gamification-engine/internal/platform/resilience"
	"github.com/R3E-Network/gamification-engine/internal/platform/security"
)

const webhookSecretEnvelopeInfo = "webhook-secret"

// Descriptor is a registered webhook endpoint.
type Descriptor struct {
	ID            string
	URL           string
	EventPatterns []string
	Headers       map[string]string
	Secret        string
	Enabled       bool
}

// Envelope is the JSON body POSTed to every matching webhook.
type Envelope struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type delivery struct {
	envelope Envelope
	attempt  int
}

// Config tunes the dispatcher's queue/retry/client behavior.
type Config struct {
	QueueSize     int
	MaxRetries    int
	RetryInitial  time.Duration
	RetryMax      time.Duration
	RequestTimeout time.Duration
	Client        *http.Client
}

// DefaultConfig returns sensible defaults for the dispatcher.
func DefaultConfig() Config {
	return Config{
		QueueSize:      1000,
		MaxRetries:     5,
		RetryInitial:   200 * time.Millisecond,
		RetryMax:       30 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Dispatcher owns the webhook registry and one bounded queue + worker
// goroutine per registered webhook.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	logger *logging.Logger
	bus    *bus.Bus

	mu        sync.RWMutex
	hooks     map[string]Descriptor
	patterns  map[string][]*regexp.Regexp // descriptor ID -> compiled patterns
	queues    map[string]chan delivery
	wg        sync.WaitGroup
	stopCh    chan struct{}
	stopOnce  sync.Once

	// encryptionKey, when set, is a 32-byte master key used to envelope-encrypt
	// each descriptor's signing secret at rest in the hooks map; deliver
	// decrypts it just before computing the HMAC signature. Nil means
	// secrets are kept in plaintext (no GK_ENCRYPTION_KEY configured).
	encryptionKey []byte
}

// SetEncryptionKey enables at-rest envelope encryption of registered
// webhooks' signing secrets. Call it before RegisterWebhook; it has no
// effect on descriptors already registered.
func (d *Dispatcher) SetEncryptionKey(key []byte) {
	d.encryptionKey = key
}

// New constructs a Dispatcher. b may be nil in tests that drive
// deliveries directly rather than via event subscription.
func New(cfg Config, b *bus.Bus, logger *logging.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if logger == nil {
		logger = logging.NewFromEnv("webhook")
	}
	return &Dispatcher{
		cfg: cfg, client: client, logger: logger, bus: b,
		hooks: make(map[string]Descriptor), patterns: make(map[string][]*regexp.Regexp),
		queues: make(map[string]chan delivery), stopCh: make(chan struct{}),
	}
}

// Start subscribes to every bus event and fans each one out to matching
// webhooks' queues.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.bus == nil {
		return nil
	}
	_, err := d.bus.OnWildcard("*", func(ev bus.Event) error {
		d.fanOut(ev)
		return nil
	})
	return err
}

// RegisterWebhook adds or replaces a descriptor, compiling its event
// patterns with the same escaping rules as the event bus (only `*` and
// `?` are wild; every other rune, including `.`, is matched literally)
// so a subscription on "points.*" cannot be defeated by the historic bug
// of treating `.` as a regex metacharacter.
func (d *Dispatcher) RegisterWebhook(desc Descriptor) error {
	compiled := make([]*regexp.Regexp, 0, len(desc.EventPatterns))
	for _, p := range desc.EventPatterns {
		re, err := compilePattern(p)
		if err != nil {
			return fmt.Errorf("webhook: compile pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	if d.encryptionKey != nil && desc.Secret != "" {
		sealed, err := crypto.EncryptEnvelope(d.encryptionKey, []byte(desc.ID), webhookSecretEnvelopeInfo, []byte(desc.Secret))
		if err != nil {
			return fmt.Errorf("webhook: encrypt secret for %s: %w", desc.ID, err)
		}
		desc.Secret = string(sealed)
	}

	d.mu.Lock()
	d.hooks[desc.ID] = desc
	d.patterns[desc.ID] = compiled
	if _, exists := d.queues[desc.ID]; !exists {
		q := make(chan delivery, d.cfg.QueueSize)
		d.queues[desc.ID] = q
		d.wg.Add(1)
		go d.worker(desc.ID, q)
	}
	d.mu.Unlock()
	return nil
}

// UnregisterWebhook disables future enqueues for id. Deliveries already
// queued for id are discarded without an attempt when the worker reaches
// them, because deliver no longer finds the descriptor.
func (d *Dispatcher) UnregisterWebhook(id string) {
	d.mu.Lock()
	delete(d.hooks, id)
	delete(d.patterns, id)
	d.mu.Unlock()
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
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

func (d *Dispatcher) fanOut(ev bus.Event) {
	env := Envelope{ID: ev.ID, Name: ev.Name, Data: ev.Data, Timestamp: ev.Timestamp}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for id, desc := range d.hooks {
		if !desc.Enabled {
			continue
		}
		for _, re := range d.patterns[id] {
			if re.MatchString(ev.Name) {
				d.enqueue(id, delivery{envelope: env})
				break
			}
		}
	}
}

// enqueue drops the oldest pending delivery for this webhook when its
// queue is full, per spec: capacity is bounded, and a full queue sheds
// the stalest item rather than blocking the event bus or the caller.
func (d *Dispatcher) enqueue(id string, item delivery) {
	q, ok := d.queues[id]
	if !ok {
		return
	}
	select {
	case q <- item:
		return
	default:
	}
	select {
	case <-q:
	default:
	}
	select {
	case q <- item:
	default:
	}
}

// QueueDepth reports (current length, capacity) for id's queue.
func (d *Dispatcher) QueueDepth(id string) (int, int) {
	d.mu.RLock()
	q, ok := d.queues[id]
	d.mu.RUnlock()
	if !ok {
		return 0, 0
	}
	return len(q), cap(q)
}

// Degraded reports whether any registered webhook's queue has crossed
// 90% of capacity.
func (d *Dispatcher) Degraded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, q := range d.queues {
		if cap(q) == 0 {
			continue
		}
		if float64(len(q))/float64(cap(q)) >= 0.9 {
			return true
		}
	}
	return false
}

func (d *Dispatcher) worker(id string, q chan delivery) {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case item, ok := <-q:
			if !ok {
				return
			}
			d.deliver(id, item)
		}
	}
}

func (d *Dispatcher) deliver(id string, item delivery) {
	d.mu.RLock()
	desc, ok := d.hooks[id]
	d.mu.RUnlock()
	if !ok || !desc.Enabled {
		return
	}

	body, err := json.Marshal(item.envelope)
	if err != nil {
		d.logger.WithError(err).Warn("webhook envelope marshal failed")
		return
	}

	secret := desc.Secret
	if d.encryptionKey != nil && secret != "" {
		plain, err := crypto.DecryptEnvelope(d.encryptionKey, []byte(desc.ID), webhookSecretEnvelopeInfo, []byte(secret))
		if err != nil {
			d.logger.WithError(err).Warn("webhook secret decrypt failed")
			return
		}
		secret = string(plain)
	}
	signature := sign(secret, body)

	retryCfg := resilience.RetryConfig{
		MaxAttempts:  d.cfg.MaxRetries,
		InitialDelay: d.cfg.RetryInitial,
		MaxDelay:     d.cfg.RetryMax,
		Multiplier:   2.0,
		Jitter:       0.2,
	}

	err = resilience.Retry(context.Background(), retryCfg, func() error {
		return d.attemptOnce(desc, body, signature)
	})
	if err != nil {
		d.deadLetter(desc, item.envelope, err)
	}
}

func (d *Dispatcher) attemptOnce(desc Descriptor, body []byte, signature string) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, desc.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)
	for k, v := range desc.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver to %s: %w", desc.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s responded %d", desc.ID, resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) deadLetter(desc Descriptor, env Envelope, deliveryErr error) {
	sanitized := security.SanitizeError(deliveryErr)
	d.logger.WithField("error", sanitized).Warn("webhook delivery exhausted retries")
	if d.bus == nil {
		return
	}
	d.bus.Emit("webhook.dead_letter", map[string]interface{}{
		"webhookId": desc.ID, "eventId": env.ID, "eventName": env.Name,
		"error": sanitized,
	})
}

// sign returns the wire value of the X-Signature header: the algorithm
// name and the hex HMAC digest, e.g. "sha256=<hex>".
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver enqueues an ad hoc envelope directly, bypassing pattern
// matching — used by callers replaying a dead-lettered delivery.
func (d *Dispatcher) Deliver(id string, name string, data interface{}) {
	env := Envelope{ID: uuid.NewString(), Name: name, Data: data, Timestamp: time.Now()}
	d.mu.RLock()
	_, ok := d.hooks[id]
	d.mu.RUnlock()
	if !ok {
		return
	}
	d.enqueue(id, delivery{envelope: env})
}

// Shutdown waits until every queue is empty or the deadline passes (ctx's
// deadline, else 30s), then tears down every worker. It does not
// unsubscribe from the bus, so events emitted while it waits are still
// enqueued.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	deadline := time.Now().Add(30 * time.Second)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	for time.Now().Before(deadline) {
		if d.allQueuesEmpty() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) allQueuesEmpty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, q := range d.queues {
		if len(q) > 0 {
			return false
		}
	}
	return true
}
