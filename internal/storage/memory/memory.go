// Package memory provides an in-process storage.Interface adapter, the
// default backend for development and tests.
package memory

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/gamification-engine/internal/storage"
)

type stringEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e stringEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is an in-memory implementation of storage.Interface, safe for
// concurrent use.
type Store struct {
	mu sync.RWMutex

	strings map[string]stringEntry
	zsets   map[string]map[string]float64
	lists   map[string][]string
	sets    map[string]map[string]struct{}
	hashes  map[string]map[string]string

	connected bool

	cleanupOnce sync.Once
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// New constructs a connected, empty in-memory store.
func New() *Store {
	return &Store{
		strings:   make(map[string]stringEntry),
		zsets:     make(map[string]map[string]float64),
		lists:     make(map[string][]string),
		sets:      make(map[string]map[string]struct{}),
		hashes:    make(map[string]map[string]string),
		connected: true,
	}
}

func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ---- strings ----

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if !s.Connected() {
		return "", false, storage.ErrNotConnected
	}
	s.mu.RLock()
	e, ok := s.strings[key]
	s.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if !s.Connected() {
		return storage.ErrNotConnected
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.strings[key] = stringEntry{value: value, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if !s.Connected() {
		return false, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := s.keyExistsLocked(key)
	delete(s.strings, key)
	delete(s.zsets, key)
	delete(s.lists, key)
	delete(s.sets, key)
	delete(s.hashes, key)
	return existed, nil
}

func (s *Store) keyExistsLocked(key string) bool {
	if e, ok := s.strings[key]; ok && !e.expired(time.Now()) {
		return true
	}
	if _, ok := s.zsets[key]; ok {
		return true
	}
	if _, ok := s.lists[key]; ok {
		return true
	}
	if _, ok := s.sets[key]; ok {
		return true
	}
	if _, ok := s.hashes[key]; ok {
		return true
	}
	return false
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if !s.Connected() {
		return false, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keyExistsLocked(key), nil
}

func (s *Store) Increment(ctx context.Context, key string, n int64) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.strings[key]
	var cur int64
	if ok && !e.expired(time.Now()) {
		cur = parseInt(e.value)
	}
	cur += n
	// Increment preserves existing TTL.
	expiresAt := e.expiresAt
	if !ok {
		expiresAt = time.Time{}
	}
	s.strings[key] = stringEntry{value: formatInt(cur), expiresAt: expiresAt}
	return cur, nil
}

func (s *Store) Decrement(ctx context.Context, key string, n int64) (int64, error) {
	return s.Increment(ctx, key, -n)
}

func (s *Store) MGet(ctx context.Context, keys []string) (map[string]string, error) {
	if !s.Connected() {
		return nil, storage.ErrNotConnected
	}
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if e, ok := s.strings[k]; ok && !e.expired(now) {
			out[k] = e.value
		}
	}
	return out, nil
}

func (s *Store) MSet(ctx context.Context, values map[string]string) error {
	if !s.Connected() {
		return storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.strings[k] = stringEntry{value: v}
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, glob string) ([]string, error) {
	if !s.Connected() {
		return nil, storage.ErrNotConnected
	}
	re, err := globToRegexp(glob)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	add := func(k string) {
		if re.MatchString(k) {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	for k, e := range s.strings {
		if !e.expired(now) {
			add(k)
		}
	}
	for k := range s.zsets {
		add(k)
	}
	for k := range s.lists {
		add(k)
	}
	for k := range s.sets {
		add(k)
	}
	for k := range s.hashes {
		add(k)
	}
	return out, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !s.Connected() {
		return false, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.strings[key]
	if !ok || e.expired(time.Now()) {
		return false, nil
	}
	e.expiresAt = time.Now().Add(ttl)
	s.strings[key] = e
	return true, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.strings[key]
	if !ok || e.expired(time.Now()) {
		return -2 * time.Second, nil
	}
	if e.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	remaining := time.Until(e.expiresAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ---- sorted sets ----

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	_, existed := z[member]
	z[member] = score
	if existed {
		return 0, nil
	}
	return 1, nil
}

func (s *Store) ZRem(ctx context.Context, key string, member string) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		return 0, nil
	}
	if _, ok := z[member]; !ok {
		return 0, nil
	}
	delete(z, member)
	return 1, nil
}

func sortedMembers(z map[string]float64) []storage.ZMember {
	out := make([]storage.ZMember, 0, len(z))
	for m, sc := range z {
		out = append(out, storage.ZMember{Member: m, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

// normalizeRange converts Redis-style inclusive, possibly-negative indices
// into Go slice bounds over a slice of length n.
func normalizeRange(start, stop, n int64) (int, int) {
	if n == 0 {
		return 0, 0
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0
	}
	return int(start), int(stop) + 1
}

func (s *Store) ZRange(ctx context.Context, key string, start, stop int64, opts storage.ZRangeOptions) ([]storage.ZMember, error) {
	if !s.Connected() {
		return nil, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := sortedMembers(s.zsets[key])
	lo, hi := normalizeRange(start, stop, int64(len(members)))
	return append([]storage.ZMember(nil), members[lo:hi]...), nil
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64, opts storage.ZRangeOptions) ([]storage.ZMember, error) {
	if !s.Connected() {
		return nil, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := sortedMembers(s.zsets[key])
	for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
		members[i], members[j] = members[j], members[i]
	}
	lo, hi := normalizeRange(start, stop, int64(len(members)))
	return append([]storage.ZMember(nil), members[lo:hi]...), nil
}

func (s *Store) ZRank(ctx context.Context, key, member string) (int64, bool, error) {
	if !s.Connected() {
		return 0, false, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zsets[key]
	if !ok {
		return 0, false, nil
	}
	if _, ok := z[member]; !ok {
		return 0, false, nil
	}
	members := sortedMembers(z)
	for i, m := range members {
		if m.Member == member {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) ZRevRank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, ok, err := s.ZRank(ctx, key, member)
	if err != nil || !ok {
		return 0, ok, err
	}
	s.mu.RLock()
	n := int64(len(s.zsets[key]))
	s.mu.RUnlock()
	return n - 1 - rank, true, nil
}

func (s *Store) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	if !s.Connected() {
		return 0, false, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zsets[key]
	if !ok {
		return 0, false, nil
	}
	score, ok := z[member]
	return score, ok, nil
}

func (s *Store) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, sc := range s.zsets[key] {
		if sc >= min && sc <= max {
			count++
		}
	}
	return count, nil
}

func (s *Store) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] += delta
	return z[member], nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.zsets[key])), nil
}

// ---- lists ----

func (s *Store) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]
	for _, v := range values {
		l = append([]string{v}, l...)
	}
	s.lists[key] = l
	return int64(len(l)), nil
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := append(s.lists[key], values...)
	s.lists[key] = l
	return int64(len(l)), nil
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	if !s.Connected() {
		return "", false, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	v := l[0]
	s.lists[key] = l[1:]
	return v, true, nil
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	if !s.Connected() {
		return "", false, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	v := l[len(l)-1]
	s.lists[key] = l[:len(l)-1]
	return v, true, nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if !s.Connected() {
		return nil, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := s.lists[key]
	lo, hi := normalizeRange(start, stop, int64(len(l)))
	return append([]string(nil), l[lo:hi]...), nil
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.lists[key])), nil
}

// ---- sets ----

func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	var added int64
	for _, m := range members {
		if _, exists := set[m]; !exists {
			set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, m := range members {
		if _, exists := set[m]; exists {
			delete(set, m)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	if !s.Connected() {
		return nil, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	if !s.Connected() {
		return false, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sets[key][member]
	return ok, nil
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sets[key])), nil
}

// ---- hashes ----

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	if !s.Connected() {
		return storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	if !s.Connected() {
		return "", false, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.hashes[key][field]
	return v, ok, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if !s.Connected() {
		return nil, storage.ErrNotConnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) HDel(ctx context.Context, key string, field string) (bool, error) {
	if !s.Connected() {
		return false, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		return false, nil
	}
	if _, ok := h[field]; !ok {
		return false, nil
	}
	delete(h, field)
	return true, nil
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	if !s.Connected() {
		return 0, storage.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	cur := parseInt(h[field])
	cur += delta
	h[field] = formatInt(cur)
	return cur, nil
}

// ---- transaction ----

// Transaction holds the store's single write lock for the duration of the
// batch, so concurrent callers observe either all of the batch's effects
// or none of them. The first error aborts remaining ops and is returned
// alongside the results collected so far being discarded (all-or-nothing).
func (s *Store) Transaction(ctx context.Context, ops []storage.Op) ([]interface{}, error) {
	if !s.Connected() {
		return nil, storage.ErrNotConnected
	}

	// Snapshot state so a failing op can be rolled back atomically.
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	results := make([]interface{}, 0, len(ops))
	for _, op := range ops {
		res, err := s.dispatch(ctx, op)
		if err != nil {
			s.mu.Lock()
			s.restoreLocked(snapshot)
			s.mu.Unlock()
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

type txSnapshot struct {
	strings map[string]stringEntry
	zsets   map[string]map[string]float64
	lists   map[string][]string
	sets    map[string]map[string]struct{}
	hashes  map[string]map[string]string
}

func (s *Store) snapshotLocked() txSnapshot {
	snap := txSnapshot{
		strings: make(map[string]stringEntry, len(s.strings)),
		zsets:   make(map[string]map[string]float64, len(s.zsets)),
		lists:   make(map[string][]string, len(s.lists)),
		sets:    make(map[string]map[string]struct{}, len(s.sets)),
		hashes:  make(map[string]map[string]string, len(s.hashes)),
	}
	for k, v := range s.strings {
		snap.strings[k] = v
	}
	for k, z := range s.zsets {
		cp := make(map[string]float64, len(z))
		for m, sc := range z {
			cp[m] = sc
		}
		snap.zsets[k] = cp
	}
	for k, l := range s.lists {
		snap.lists[k] = append([]string(nil), l...)
	}
	for k, set := range s.sets {
		cp := make(map[string]struct{}, len(set))
		for m := range set {
			cp[m] = struct{}{}
		}
		snap.sets[k] = cp
	}
	for k, h := range s.hashes {
		cp := make(map[string]string, len(h))
		for f, v := range h {
			cp[f] = v
		}
		snap.hashes[k] = cp
	}
	return snap
}

func (s *Store) restoreLocked(snap txSnapshot) {
	s.strings = snap.strings
	s.zsets = snap.zsets
	s.lists = snap.lists
	s.sets = snap.sets
	s.hashes = snap.hashes
}

// dispatch maps a transaction op name to the corresponding method. Only
// the mutating primitives modules actually batch are wired; read-only
// calls belong outside a transaction.
func (s *Store) dispatch(ctx context.Context, op storage.Op) (interface{}, error) {
	switch op.Method {
	case "Set":
		return nil, s.Set(ctx, argStr(op.Args, 0), argStr(op.Args, 1), argDuration(op.Args, 2))
	case "Increment":
		return s.Increment(ctx, argStr(op.Args, 0), argInt64(op.Args, 1))
	case "Decrement":
		return s.Decrement(ctx, argStr(op.Args, 0), argInt64(op.Args, 1))
	case "Delete":
		return s.Delete(ctx, argStr(op.Args, 0))
	case "ZAdd":
		return s.ZAdd(ctx, argStr(op.Args, 0), argFloat(op.Args, 1), argStr(op.Args, 2))
	case "ZIncrBy":
		return s.ZIncrBy(ctx, argStr(op.Args, 0), argFloat(op.Args, 1), argStr(op.Args, 2))
	case "ZRem":
		return s.ZRem(ctx, argStr(op.Args, 0), argStr(op.Args, 1))
	case "SAdd":
		return s.SAdd(ctx, argStr(op.Args, 0), argStrSlice(op.Args, 1)...)
	case "HSet":
		return nil, s.HSet(ctx, argStr(op.Args, 0), argStr(op.Args, 1), argStr(op.Args, 2))
	case "HIncrBy":
		return s.HIncrBy(ctx, argStr(op.Args, 0), argStr(op.Args, 1), argInt64(op.Args, 2))
	case "RPush":
		return s.RPush(ctx, argStr(op.Args, 0), argStrSlice(op.Args, 1)...)
	default:
		return nil, storage.ErrNotConnected
	}
}

// ---- cleanup scheduler ----

func (s *Store) StartCleanup(interval time.Duration) {
	if interval < 60*time.Second {
		interval = 60 * time.Second
	}
	s.cleanupOnce.Do(func() {
		s.cleanupStop = make(chan struct{})
		s.cleanupDone = make(chan struct{})
		ticker := time.NewTicker(interval)
		go func() {
			defer ticker.Stop()
			defer close(s.cleanupDone)
			for {
				select {
				case <-ticker.C:
					s.sweepExpired()
				case <-s.cleanupStop:
					return
				}
			}
		}()
	})
}

func (s *Store) sweepExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.strings {
		if e.expired(now) {
			delete(s.strings, k)
		}
	}
}

func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = false
	stop := s.cleanupStop
	done := s.cleanupDone
	s.mu.Unlock()

	if stop != nil {
		select {
		case <-stop:
			// already closed
		default:
			close(stop)
		}
		if done != nil {
			<-done
		}
	}
	return nil
}

// ---- helpers ----

func parseInt(s string) int64 {
	var n int64
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func formatInt(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// globToRegexp compiles a glob pattern where only '*' and '?' are wild;
// every other regexp metacharacter is escaped so patterns never compile
// into something other than a literal match plus the two wildcards.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func argStr(args []interface{}, i int) string {
	if i >= len(args) {
		return ""
	}
	v, _ := args[i].(string)
	return v
}

func argInt64(args []interface{}, i int) int64 {
	if i >= len(args) {
		return 0
	}
	switch v := args[i].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func argFloat(args []interface{}, i int) float64 {
	if i >= len(args) {
		return 0
	}
	switch v := args[i].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func argDuration(args []interface{}, i int) time.Duration {
	if i >= len(args) {
		return 0
	}
	v, _ := args[i].(time.Duration)
	return v
}

func argStrSlice(args []interface{}, i int) []string {
	if i >= len(args) {
		return nil
	}
	v, _ := args[i].([]string)
	// never mutate the caller's slice
	return append([]string(nil), v...)
}
