// Package storage defines the Redis-like data primitives every gamification
// module is built against, independent of which backend actually holds the
// data.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by the memory adapter for any operation
// attempted after Disconnect. The redis, postgres and mongo adapters do not
// check their connected state per call; after Disconnect they return their
// driver's closed-connection error instead.
var ErrNotConnected = errors.New("storage: not connected")

// ZMember is the canonical shape returned by ZRange/ZRevRange with scores,
// shared by every adapter so callers never branch on backend.
type ZMember struct {
	Member string
	Score  float64
}

// ZRangeOptions controls ZRange/ZRevRange behavior.
type ZRangeOptions struct {
	WithScores bool
}

// Op describes a single call inside a Transaction: Method is the
// interface method name ("Set", "Increment", "ZAdd", ...), Args are its
// positional arguments in declaration order.
type Op struct {
	Method string
	Args   []interface{}
}

// Interface is the only vocabulary modules may use to read or write
// persistent state. Every method takes a context so callers may cancel or
// time out a blocking call; adapters must honor cancellation on the
// network path.
type Interface interface {
	// Strings
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Increment(ctx context.Context, key string, n int64) (int64, error)
	Decrement(ctx context.Context, key string, n int64) (int64, error)
	MGet(ctx context.Context, keys []string) (map[string]string, error)
	MSet(ctx context.Context, values map[string]string) error
	Keys(ctx context.Context, glob string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Sorted sets
	ZAdd(ctx context.Context, key string, score float64, member string) (int64, error)
	ZRem(ctx context.Context, key string, member string) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64, opts ZRangeOptions) ([]ZMember, error)
	ZRevRange(ctx context.Context, key string, start, stop int64, opts ZRangeOptions) ([]ZMember, error)
	ZRank(ctx context.Context, key, member string) (int64, bool, error)
	ZRevRank(ctx context.Context, key, member string) (int64, bool, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)
	ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Lists
	LPush(ctx context.Context, key string, values ...string) (int64, error)
	RPush(ctx context.Context, key string, values ...string) (int64, error)
	LPop(ctx context.Context, key string) (string, bool, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Sets
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Hashes
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, field string) (bool, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	// Transaction executes every op against one atomic context; on any
	// error all prior ops in the batch are rolled back and the error is
	// returned, with a partial (possibly nil) results slice.
	Transaction(ctx context.Context, ops []Op) ([]interface{}, error)

	// Connected reports whether the adapter currently holds a usable
	// connection.
	Connected() bool

	// StartCleanup launches the periodic expired-key scan (interval must
	// be >=60s; shorter values are clamped). Calling it a second time
	// while already running is a no-op.
	StartCleanup(interval time.Duration)

	// Disconnect cancels the cleanup scan and releases the connection.
	// It is safe to call multiple times.
	Disconnect(ctx context.Context) error
}
