// Package mongostore adapts storage.Interface to MongoDB via the official
// mongo-driver, emulating the Redis-like primitives over a handful of
// narrow collections.
package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/R3E-Network/gamification-engine/internal/storage"
)

const (
	collStrings = "kv_strings"
	collZSets   = "kv_zsets"
	collLists   = "kv_lists"
	collSets    = "kv_sets"
	collHashes  = "kv_hashes"
)

// Store is a MongoDB-backed storage.Interface adapter.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	connected int32

	cleanupCancel context.CancelFunc
	cleanupDone   chan struct{}
	cleanupOnce   int32
}

// Open connects to uri and selects database dbName.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	s := &Store{client: client, db: client.Database(dbName), connected: 1}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: indexes: %w", err)
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collStrings).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetSparse(true),
	})
	return err
}

func (s *Store) Connected() bool { return atomic.LoadInt32(&s.connected) == 1 }

type stringDoc struct {
	ID        string     `bson:"_id"`
	Value     string     `bson:"value"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty"`
}

// ---- strings ----

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var doc stringDoc
	err := s.db.Collection(collStrings).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if doc.ExpiresAt != nil && time.Now().After(*doc.ExpiresAt) {
		return "", false, nil
	}
	return doc.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	update := bson.M{"value": value}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		update["expiresAt"] = exp
	} else {
		update["expiresAt"] = nil
	}
	_, err := s.db.Collection(collStrings).UpdateOne(ctx,
		bson.M{"_id": key}, bson.M{"$set": update}, options.Update().SetUpsert(true))
	return err
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.Collection(collStrings).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return false, err
	}
	deleted := res.DeletedCount > 0
	for _, coll := range []string{collZSets, collLists, collSets, collHashes} {
		if _, err := s.db.Collection(coll).DeleteMany(ctx, bson.M{"key": key}); err != nil {
			return false, err
		}
	}
	return deleted, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Increment(ctx context.Context, key string, n int64) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	after := options.After
	err := s.db.Collection(collStrings).FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$inc": bson.M{"value": n}},
		&options.FindOneAndUpdateOptions{ReturnDocument: &after, Upsert: boolPtr(true)},
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Value, nil
}

func boolPtr(b bool) *bool { return &b }

func (s *Store) Decrement(ctx context.Context, key string, n int64) (int64, error) {
	return s.Increment(ctx, key, -n)
}

func (s *Store) MGet(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	cur, err := s.db.Collection(collStrings).Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make(map[string]string, len(keys))
	now := time.Now()
	for cur.Next(ctx) {
		var doc stringDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		if doc.ExpiresAt != nil && now.After(*doc.ExpiresAt) {
			continue
		}
		out[doc.ID] = doc.Value
	}
	return out, cur.Err()
}

func (s *Store) MSet(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(values))
	for k, v := range values {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": k}).
			SetUpdate(bson.M{"$set": bson.M{"value": v}}).
			SetUpsert(true))
	}
	_, err := s.db.Collection(collStrings).BulkWrite(ctx, models)
	return err
}

// globToMongoRegex builds a BSON regex matching a glob where only '*' and
// '?' are wild; every other regexp metacharacter is escaped.
func globToMongoRegex(glob string) string {
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
	return b.String()
}

func (s *Store) Keys(ctx context.Context, glob string) ([]string, error) {
	pattern := globToMongoRegex(glob)
	filter := bson.M{"_id": bson.M{"$regex": pattern}}
	seen := map[string]struct{}{}
	var out []string
	now := time.Now()

	cur, err := s.db.Collection(collStrings).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	for cur.Next(ctx) {
		var doc stringDoc
		if err := cur.Decode(&doc); err != nil {
			cur.Close(ctx)
			return nil, err
		}
		if doc.ExpiresAt != nil && now.After(*doc.ExpiresAt) {
			continue
		}
		if _, ok := seen[doc.ID]; !ok {
			seen[doc.ID] = struct{}{}
			out = append(out, doc.ID)
		}
	}
	cur.Close(ctx)

	for _, coll := range []string{collZSets, collLists, collSets, collHashes} {
		keyFilter := bson.M{"key": bson.M{"$regex": pattern}}
		keys, err := s.db.Collection(coll).Distinct(ctx, "key", keyFilter)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			ks, _ := k.(string)
			if _, ok := seen[ks]; !ok {
				seen[ks] = struct{}{}
				out = append(out, ks)
			}
		}
	}
	return out, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	exp := time.Now().Add(ttl)
	res, err := s.db.Collection(collStrings).UpdateOne(ctx,
		bson.M{"_id": key}, bson.M{"$set": bson.M{"expiresAt": exp}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	var doc stringDoc
	err := s.db.Collection(collStrings).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return -2 * time.Second, nil
	}
	if err != nil {
		return 0, err
	}
	if doc.ExpiresAt == nil {
		return -1 * time.Second, nil
	}
	if time.Now().After(*doc.ExpiresAt) {
		return -2 * time.Second, nil
	}
	remaining := time.Until(*doc.ExpiresAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ---- sorted sets ----

func zsetID(key, member string) string { return key + "\x00" + member }

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) (int64, error) {
	res, err := s.db.Collection(collZSets).UpdateOne(ctx,
		bson.M{"_id": zsetID(key, member)},
		bson.M{"$set": bson.M{"key": key, "member": member, "score": score}},
		options.Update().SetUpsert(true))
	if err != nil {
		return 0, err
	}
	if res.UpsertedCount > 0 {
		return 1, nil
	}
	return 0, nil
}

func (s *Store) ZRem(ctx context.Context, key string, member string) (int64, error) {
	res, err := s.db.Collection(collZSets).DeleteOne(ctx, bson.M{"_id": zsetID(key, member)})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

type zsetDoc struct {
	Member string  `bson:"member"`
	Score  float64 `bson:"score"`
}

func (s *Store) zRangeQuery(ctx context.Context, key string, start, stop int64, ascending bool) ([]storage.ZMember, error) {
	n, err := s.ZCard(ctx, key)
	if err != nil {
		return nil, err
	}
	offset, limit := resolveRange(start, stop, n)
	if limit <= 0 {
		return []storage.ZMember{}, nil
	}
	sortOrder := 1
	if !ascending {
		sortOrder = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "score", Value: sortOrder}, {Key: "member", Value: sortOrder}}).
		SetSkip(offset).SetLimit(limit)
	cur, err := s.db.Collection(collZSets).Find(ctx, bson.M{"key": key}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []storage.ZMember
	for cur.Next(ctx) {
		var doc zsetDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, storage.ZMember{Member: doc.Member, Score: doc.Score})
	}
	return out, cur.Err()
}

func resolveRange(start, stop, n int64) (offset, limit int64) {
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
	if start > stop || start >= n || n == 0 {
		return 0, 0
	}
	return start, stop - start + 1
}

func (s *Store) ZRange(ctx context.Context, key string, start, stop int64, opts storage.ZRangeOptions) ([]storage.ZMember, error) {
	return s.zRangeQuery(ctx, key, start, stop, true)
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64, opts storage.ZRangeOptions) ([]storage.ZMember, error) {
	return s.zRangeQuery(ctx, key, start, stop, false)
}

func (s *Store) ZRank(ctx context.Context, key, member string) (int64, bool, error) {
	score, ok, err := s.ZScore(ctx, key, member)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := s.db.Collection(collZSets).CountDocuments(ctx, bson.M{
		"key": key,
		"$or": bson.A{
			bson.M{"score": bson.M{"$lt": score}},
			bson.M{"score": score, "member": bson.M{"$lt": member}},
		},
	})
	return n, true, err
}

func (s *Store) ZRevRank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, ok, err := s.ZRank(ctx, key, member)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := s.ZCard(ctx, key)
	if err != nil {
		return 0, false, err
	}
	return n - 1 - rank, true, nil
}

func (s *Store) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	var doc zsetDoc
	err := s.db.Collection(collZSets).FindOne(ctx, bson.M{"_id": zsetID(key, member)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, false, nil
	}
	return doc.Score, err == nil, err
}

func (s *Store) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	return s.db.Collection(collZSets).CountDocuments(ctx, bson.M{
		"key": key, "score": bson.M{"$gte": min, "$lte": max},
	})
}

func (s *Store) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	var doc zsetDoc
	after := options.After
	err := s.db.Collection(collZSets).FindOneAndUpdate(ctx,
		bson.M{"_id": zsetID(key, member)},
		bson.M{"$inc": bson.M{"score": delta}, "$set": bson.M{"key": key, "member": member}},
		&options.FindOneAndUpdateOptions{ReturnDocument: &after, Upsert: boolPtr(true)},
	).Decode(&doc)
	return doc.Score, err
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	return s.db.Collection(collZSets).CountDocuments(ctx, bson.M{"key": key})
}

// ---- lists ----

type listBounds struct {
	ID  string `bson:"_id"`
	Min int64  `bson:"min"`
	Max int64  `bson:"max"`
}

func (s *Store) push(ctx context.Context, key string, values []string, left bool) (int64, error) {
	if len(values) == 0 {
		return s.LLen(ctx, key)
	}
	boundsColl := s.db.Collection("kv_list_bounds")
	listColl := s.db.Collection(collLists)

	for _, v := range values {
		field := "max"
		inc := int64(1)
		if left {
			field = "min"
			inc = -1
		}
		after := options.After
		var b listBounds
		err := boundsColl.FindOneAndUpdate(ctx,
			bson.M{"_id": key},
			bson.M{"$inc": bson.M{field: inc}},
			&options.FindOneAndUpdateOptions{ReturnDocument: &after, Upsert: boolPtr(true)},
		).Decode(&b)
		if err != nil {
			return 0, err
		}
		seq := b.Max
		if left {
			seq = b.Min
		}
		if _, err := listColl.InsertOne(ctx, bson.M{"key": key, "seq": seq, "value": v}); err != nil {
			return 0, err
		}
	}
	return s.LLen(ctx, key)
}

func (s *Store) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	return s.push(ctx, key, values, true)
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	return s.push(ctx, key, values, false)
}

func (s *Store) pop(ctx context.Context, key string, left bool) (string, bool, error) {
	sortOrder := 1
	if !left {
		sortOrder = -1
	}
	var doc struct {
		Value string `bson:"value"`
	}
	err := s.db.Collection(collLists).FindOneAndDelete(ctx,
		bson.M{"key": key},
		options.FindOneAndDelete().SetSort(bson.D{{Key: "seq", Value: sortOrder}}),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.Value, true, nil
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) { return s.pop(ctx, key, true) }
func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	return s.pop(ctx, key, false)
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	n, err := s.LLen(ctx, key)
	if err != nil {
		return nil, err
	}
	offset, limit := resolveRange(start, stop, n)
	if limit <= 0 {
		return []string{}, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}).SetSkip(offset).SetLimit(limit)
	cur, err := s.db.Collection(collLists).Find(ctx, bson.M{"key": key}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []string
	for cur.Next(ctx) {
		var doc struct {
			Value string `bson:"value"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Value)
	}
	return out, cur.Err()
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	return s.db.Collection(collLists).CountDocuments(ctx, bson.M{"key": key})
}

// ---- sets ----

func setID(key, member string) string { return key + "\x00" + member }

func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	var added int64
	for _, m := range members {
		res, err := s.db.Collection(collSets).UpdateOne(ctx,
			bson.M{"_id": setID(key, m)},
			bson.M{"$set": bson.M{"key": key, "member": m}},
			options.Update().SetUpsert(true))
		if err != nil {
			return added, err
		}
		if res.UpsertedCount > 0 {
			added++
		}
	}
	return added, nil
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = setID(key, m)
	}
	res, err := s.db.Collection(collSets).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	cur, err := s.db.Collection(collSets).Find(ctx, bson.M{"key": key})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []string
	for cur.Next(ctx) {
		var doc struct {
			Member string `bson:"member"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Member)
	}
	return out, cur.Err()
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	n, err := s.db.Collection(collSets).CountDocuments(ctx, bson.M{"_id": setID(key, member)})
	return n > 0, err
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	return s.db.Collection(collSets).CountDocuments(ctx, bson.M{"key": key})
}

// ---- hashes ----

func hashID(key, field string) string { return key + "\x00" + field }

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	_, err := s.db.Collection(collHashes).UpdateOne(ctx,
		bson.M{"_id": hashID(key, field)},
		bson.M{"$set": bson.M{"key": key, "field": field, "value": value}},
		options.Update().SetUpsert(true))
	return err
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	err := s.db.Collection(collHashes).FindOne(ctx, bson.M{"_id": hashID(key, field)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	return doc.Value, err == nil, err
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cur, err := s.db.Collection(collHashes).Find(ctx, bson.M{"key": key})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := map[string]string{}
	for cur.Next(ctx) {
		var doc struct {
			Field string `bson:"field"`
			Value string `bson:"value"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.Field] = doc.Value
	}
	return out, cur.Err()
}

func (s *Store) HDel(ctx context.Context, key string, field string) (bool, error) {
	res, err := s.db.Collection(collHashes).DeleteOne(ctx, bson.M{"_id": hashID(key, field)})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	after := options.After
	err := s.db.Collection(collHashes).FindOneAndUpdate(ctx,
		bson.M{"_id": hashID(key, field)},
		bson.M{"$inc": bson.M{"value": delta}, "$set": bson.M{"key": key, "field": field}},
		&options.FindOneAndUpdateOptions{ReturnDocument: &after, Upsert: boolPtr(true)},
	).Decode(&doc)
	return doc.Value, err
}

// ---- transaction ----

// Transaction runs ops inside a MongoDB session transaction, which
// requires the backing deployment to be a replica set or sharded
// cluster; standalone mongod rejects it, surfaced as a plain error.
func (s *Store) Transaction(ctx context.Context, ops []storage.Op) ([]interface{}, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer session.EndSession(ctx)

	results, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		out := make([]interface{}, 0, len(ops))
		for _, op := range ops {
			res, err := s.dispatch(sc, op)
			if err != nil {
				return nil, err
			}
			out = append(out, res)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return results.([]interface{}), nil
}

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
		return nil, fmt.Errorf("mongostore: unsupported transaction op %q", op.Method)
	}
}

// ---- cleanup ----

func (s *Store) StartCleanup(interval time.Duration) {
	if interval < 60*time.Second {
		interval = 60 * time.Second
	}
	if !atomic.CompareAndSwapInt32(&s.cleanupOnce, 0, 1) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cleanupCancel = cancel
	s.cleanupDone = make(chan struct{})
	go func() {
		defer close(s.cleanupDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.db.Collection(collStrings).DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": time.Now()}})
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Store) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 1, 0) {
		return nil
	}
	if s.cleanupCancel != nil {
		s.cleanupCancel()
		<-s.cleanupDone
	}
	return s.client.Disconnect(ctx)
}

// ---- arg helpers ----

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
