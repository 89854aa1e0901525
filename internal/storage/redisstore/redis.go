// Package redisstore adapts storage.Interface to a Redis (or Redis-protocol
// compatible) backend via go-redis, grounded on the project's existing
// go-redis/v8 dependency.
package redisstore

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/gamification-engine/internal/storage"
)

// Store is a Redis-backed storage.Interface adapter.
type Store struct {
	client *redis.Client

	connected int32 // atomic bool

	cleanupCancel context.CancelFunc
	cleanupOnce   int32 // atomic, guards StartCleanup idempotency
}

// New wraps an existing *redis.Client. The caller owns the client's
// lifecycle for anything beyond what Disconnect tears down (the cleanup
// scan).
func New(client *redis.Client) *Store {
	return &Store{client: client, connected: 1}
}

func (s *Store) Connected() bool {
	return atomic.LoadInt32(&s.connected) == 1
}

func isNil(err error) bool { return err == redis.Nil }

// ---- strings ----

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if isNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	return n > 0, err
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *Store) Increment(ctx context.Context, key string, n int64) (int64, error) {
	return s.client.IncrBy(ctx, key, n).Result()
}

func (s *Store) Decrement(ctx context.Context, key string, n int64) (int64, error) {
	return s.client.DecrBy(ctx, key, n).Result()
}

func (s *Store) MGet(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

func (s *Store) MSet(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	pairs := make([]interface{}, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, k, v)
	}
	return s.client.MSet(ctx, pairs...).Err()
}

// redisGlobEscape escapes every Redis KEYS glob metacharacter except '*'
// and '?', so the contract's "only * and ? are wild" rule holds for this
// backend too (Redis additionally treats '[', ']', '^', '-' and '\' as
// special inside character classes).
func redisGlobEscape(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*', '?':
			b.WriteRune(r)
		case '\\', '[', ']', '^', '-':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *Store) Keys(ctx context.Context, glob string) ([]string, error) {
	return s.client.Keys(ctx, redisGlobEscape(glob)).Result()
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.Expire(ctx, key, ttl).Result()
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, key).Result()
}

// ---- sorted sets ----

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) (int64, error) {
	return s.client.ZAdd(ctx, key, &redis.Z{Score: score, Member: member}).Result()
}

func (s *Store) ZRem(ctx context.Context, key string, member string) (int64, error) {
	return s.client.ZRem(ctx, key, member).Result()
}

func toZMembers(zs []redis.Z) []storage.ZMember {
	out := make([]storage.ZMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, storage.ZMember{Member: member, Score: z.Score})
	}
	return out
}

func (s *Store) ZRange(ctx context.Context, key string, start, stop int64, opts storage.ZRangeOptions) ([]storage.ZMember, error) {
	zs, err := s.client.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return toZMembers(zs), nil
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64, opts storage.ZRangeOptions) ([]storage.ZMember, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return toZMembers(zs), nil
}

func (s *Store) ZRank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, err := s.client.ZRank(ctx, key, member).Result()
	if isNil(err) {
		return 0, false, nil
	}
	return rank, err == nil, err
}

func (s *Store) ZRevRank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, err := s.client.ZRevRank(ctx, key, member).Result()
	if isNil(err) {
		return 0, false, nil
	}
	return rank, err == nil, err
}

func (s *Store) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if isNil(err) {
		return 0, false, nil
	}
	return score, err == nil, err
}

func (s *Store) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	return s.client.ZCount(ctx, key, formatScore(min), formatScore(max)).Result()
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (s *Store) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	return s.client.ZIncrBy(ctx, key, delta, member).Result()
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, key).Result()
}

// ---- lists ----

func (s *Store) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	return s.client.LPush(ctx, key, toIface(values)...).Result()
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	return s.client.RPush(ctx, key, toIface(values)...).Result()
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.LPop(ctx, key).Result()
	if isNil(err) {
		return "", false, nil
	}
	return v, err == nil, err
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.RPop(ctx, key).Result()
	if isNil(err) {
		return "", false, nil
	}
	return v, err == nil, err
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}

// ---- sets ----

func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	return s.client.SAdd(ctx, key, toIface(members)...).Result()
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	return s.client.SRem(ctx, key, toIface(members)...).Result()
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, key, member).Result()
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	return s.client.SCard(ctx, key).Result()
}

// ---- hashes ----

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if isNil(err) {
		return "", false, nil
	}
	return v, err == nil, err
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *Store) HDel(ctx context.Context, key string, field string) (bool, error) {
	n, err := s.client.HDel(ctx, key, field).Result()
	return n > 0, err
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return s.client.HIncrBy(ctx, key, field, delta).Result()
}

// ---- transaction ----

// Transaction runs every op inside one MULTI/EXEC pipeline, so all writes
// land together or none do.
func (s *Store) Transaction(ctx context.Context, ops []storage.Op) ([]interface{}, error) {
	var results []interface{}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		results = make([]interface{}, 0, len(ops))
		for _, op := range ops {
			cmd, err := queue(pipe, ctx, op)
			if err != nil {
				return err
			}
			results = append(results, cmd)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func queue(pipe redis.Pipeliner, ctx context.Context, op storage.Op) (interface{}, error) {
	switch op.Method {
	case "Set":
		return pipe.Set(ctx, argStr(op.Args, 0), argStr(op.Args, 1), argDuration(op.Args, 2)), nil
	case "Increment":
		return pipe.IncrBy(ctx, argStr(op.Args, 0), argInt64(op.Args, 1)), nil
	case "Decrement":
		return pipe.DecrBy(ctx, argStr(op.Args, 0), argInt64(op.Args, 1)), nil
	case "Delete":
		return pipe.Del(ctx, argStr(op.Args, 0)), nil
	case "ZAdd":
		return pipe.ZAdd(ctx, argStr(op.Args, 0), &redis.Z{Score: argFloat(op.Args, 1), Member: argStr(op.Args, 2)}), nil
	case "ZIncrBy":
		return pipe.ZIncrBy(ctx, argStr(op.Args, 0), argFloat(op.Args, 1), argStr(op.Args, 2)), nil
	case "ZRem":
		return pipe.ZRem(ctx, argStr(op.Args, 0), argStr(op.Args, 1)), nil
	case "SAdd":
		return pipe.SAdd(ctx, argStr(op.Args, 0), toIface(argStrSlice(op.Args, 1))...), nil
	case "HSet":
		return pipe.HSet(ctx, argStr(op.Args, 0), argStr(op.Args, 1), argStr(op.Args, 2)), nil
	case "HIncrBy":
		return pipe.HIncrBy(ctx, argStr(op.Args, 0), argStr(op.Args, 1), argInt64(op.Args, 2)), nil
	case "RPush":
		return pipe.RPush(ctx, argStr(op.Args, 0), toIface(argStrSlice(op.Args, 1))...), nil
	default:
		return nil, storage.ErrNotConnected
	}
}

// ---- cleanup ----

// StartCleanup is a no-op beyond idempotency tracking: Redis expires keys
// natively, so there is no userspace sweep to schedule. The handle is
// still tracked and cancelled on Disconnect to satisfy the same lifecycle
// contract every adapter honors.
func (s *Store) StartCleanup(interval time.Duration) {
	if !atomic.CompareAndSwapInt32(&s.cleanupOnce, 0, 1) {
		return
	}
	_, cancel := context.WithCancel(context.Background())
	s.cleanupCancel = cancel
}

func (s *Store) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 1, 0) {
		return nil
	}
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	return s.client.Close()
}

// ---- arg helpers shared with the transaction dispatcher ----

func toIface(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
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
	return append([]string(nil), v...)
}
