// Package postgres adapts storage.Interface to PostgreSQL via sqlx and
// lib/pq, emulating the Redis-like primitives over a handful of narrow
// tables. Schema is managed with golang-migrate against the embedded
// migrations/ directory.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/gamification-engine/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a PostgreSQL-backed storage.Interface adapter.
type Store struct {
	db *sqlx.DB

	connected int32

	cleanupCancel context.CancelFunc
	cleanupDone   chan struct{}
	cleanupOnce   int32
}

// Open connects to dsn, applies pending migrations, and returns a ready
// Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := migrate0(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &Store{db: db, connected: 1}, nil
}

func migrate0(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *Store) Connected() bool { return atomic.LoadInt32(&s.connected) == 1 }

// ---- strings ----

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM kv_strings WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_strings (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_strings WHERE key = $1`, key)
	if err != nil {
		return false, err
	}
	for _, table := range []string{"kv_zsets", "kv_lists", "kv_list_bounds", "kv_sets", "kv_hashes"} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, table), key); err != nil {
			return false, err
		}
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Increment(ctx context.Context, key string, n int64) (int64, error) {
	var newValue int64
	err := s.db.GetContext(ctx, &newValue, `
		INSERT INTO kv_strings (key, value, expires_at) VALUES ($1, $2::TEXT, NULL)
		ON CONFLICT (key) DO UPDATE SET value = (COALESCE(NULLIF(kv_strings.value, '')::BIGINT, 0) + $2::BIGINT)::TEXT
		RETURNING value::BIGINT`, key, n)
	return newValue, err
}

func (s *Store) Decrement(ctx context.Context, key string, n int64) (int64, error) {
	return s.Increment(ctx, key, -n)
}

func (s *Store) MGet(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	rows, err := s.db.QueryxContext(ctx,
		`SELECT key, value FROM kv_strings WHERE key = ANY($1) AND (expires_at IS NULL OR expires_at > now())`,
		pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string, len(keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) MSet(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv_strings (key, value, expires_at) VALUES ($1, $2, NULL)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Keys(ctx context.Context, glob string) ([]string, error) {
	pattern := globToLike(glob)
	var keys []string
	err := s.db.SelectContext(ctx, &keys, `
		SELECT key FROM kv_strings WHERE key LIKE $1 ESCAPE '\' AND (expires_at IS NULL OR expires_at > now())
		UNION SELECT DISTINCT key FROM kv_zsets WHERE key LIKE $1 ESCAPE '\'
		UNION SELECT DISTINCT key FROM kv_lists WHERE key LIKE $1 ESCAPE '\'
		UNION SELECT DISTINCT key FROM kv_sets WHERE key LIKE $1 ESCAPE '\'
		UNION SELECT DISTINCT key FROM kv_hashes WHERE key LIKE $1 ESCAPE '\'`, pattern)
	return keys, err
}

// globToLike converts a glob (only * and ? wild) to a SQL LIKE pattern,
// binding the result as a query parameter rather than concatenating it
// into the statement text, and backslash-escaping every LIKE
// metacharacter ('%', '_', '\') that appears literally in the glob.
func globToLike(glob string) string {
	out := make([]byte, 0, len(glob)*2)
	for _, r := range glob {
		switch r {
		case '*':
			out = append(out, '%')
		case '?':
			out = append(out, '_')
		case '%', '_', '\\':
			out = append(out, '\\', byte(r))
		default:
			out = append(out, []byte(string(r))...)
		}
	}
	return string(out)
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE kv_strings SET expires_at = $2 WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		key, time.Now().Add(ttl))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	var expiresAt sql.NullTime
	err := s.db.GetContext(ctx, &expiresAt,
		`SELECT expires_at FROM kv_strings WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return -2 * time.Second, nil
	}
	if err != nil {
		return 0, err
	}
	if !expiresAt.Valid {
		return -1 * time.Second, nil
	}
	remaining := time.Until(expiresAt.Time)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ---- sorted sets ----

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_zsets (key, member, score) VALUES ($1, $2, $3)
		ON CONFLICT (key, member) DO UPDATE SET score = EXCLUDED.score`, key, member, score)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return 1, nil
	}
	return 0, nil
}

func (s *Store) ZRem(ctx context.Context, key string, member string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_zsets WHERE key = $1 AND member = $2`, key, member)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) zRangeQuery(ctx context.Context, key string, start, stop int64, order string) ([]storage.ZMember, error) {
	n, err := s.ZCard(ctx, key)
	if err != nil {
		return nil, err
	}
	offset, limit := resolveSQLRange(start, stop, n)
	if limit <= 0 {
		return []storage.ZMember{}, nil
	}
	rows, err := s.db.QueryxContext(ctx, fmt.Sprintf(`
		SELECT member, score FROM kv_zsets WHERE key = $1
		ORDER BY score %s, member %s
		OFFSET $2 LIMIT $3`, order, order), key, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.ZMember
	for rows.Next() {
		var m storage.ZMember
		if err := rows.Scan(&m.Member, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func resolveSQLRange(start, stop, n int64) (offset, limit int64) {
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
	return s.zRangeQuery(ctx, key, start, stop, "ASC")
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64, opts storage.ZRangeOptions) ([]storage.ZMember, error) {
	return s.zRangeQuery(ctx, key, start, stop, "DESC")
}

func (s *Store) ZRank(ctx context.Context, key, member string) (int64, bool, error) {
	var rank int64
	err := s.db.GetContext(ctx, &rank, `
		SELECT COUNT(*) FROM kv_zsets z2
		WHERE z2.key = $1 AND (
			z2.score < (SELECT score FROM kv_zsets WHERE key = $1 AND member = $2)
			OR (z2.score = (SELECT score FROM kv_zsets WHERE key = $1 AND member = $2) AND z2.member < $2)
		)`, key, member)
	if err != nil {
		return 0, false, err
	}
	_, ok, err := s.ZScore(ctx, key, member)
	return rank, ok, err
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
	var score float64
	err := s.db.GetContext(ctx, &score, `SELECT score FROM kv_zsets WHERE key = $1 AND member = $2`, key, member)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	return score, err == nil, err
}

func (s *Store) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM kv_zsets WHERE key = $1 AND score >= $2 AND score <= $3`, key, min, max)
	return count, err
}

func (s *Store) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	var newScore float64
	err := s.db.GetContext(ctx, &newScore, `
		INSERT INTO kv_zsets (key, member, score) VALUES ($1, $2, $3)
		ON CONFLICT (key, member) DO UPDATE SET score = kv_zsets.score + $3
		RETURNING score`, key, member, delta)
	return newScore, err
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM kv_zsets WHERE key = $1`, key)
	return count, err
}

// ---- lists ----

func (s *Store) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	return s.push(ctx, key, values, true)
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	return s.push(ctx, key, values, false)
}

func (s *Store) push(ctx context.Context, key string, values []string, left bool) (int64, error) {
	if len(values) == 0 {
		return s.LLen(ctx, key)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv_list_bounds (key, min_seq, max_seq) VALUES ($1, 0, -1) ON CONFLICT (key) DO NOTHING`, key); err != nil {
		return 0, err
	}
	var minSeq, maxSeq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT min_seq, max_seq FROM kv_list_bounds WHERE key = $1 FOR UPDATE`, key).Scan(&minSeq, &maxSeq); err != nil {
		return 0, err
	}

	for _, v := range values {
		var seq int64
		if left {
			minSeq--
			seq = minSeq
		} else {
			maxSeq++
			seq = maxSeq
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv_lists (key, seq, value) VALUES ($1, $2, $3)`, key, seq, v); err != nil {
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE kv_list_bounds SET min_seq = $2, max_seq = $3 WHERE key = $1`, key, minSeq, maxSeq); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return maxSeq - minSeq + 1, nil
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	return s.pop(ctx, key, true)
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	return s.pop(ctx, key, false)
}

func (s *Store) pop(ctx context.Context, key string, left bool) (string, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	var minSeq, maxSeq int64
	err = tx.QueryRowContext(ctx,
		`SELECT min_seq, max_seq FROM kv_list_bounds WHERE key = $1 FOR UPDATE`, key).Scan(&minSeq, &maxSeq)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && minSeq > maxSeq) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	seq := minSeq
	if !left {
		seq = maxSeq
	}
	var value string
	if err := tx.QueryRowContext(ctx, `DELETE FROM kv_lists WHERE key = $1 AND seq = $2 RETURNING value`, key, seq).Scan(&value); err != nil {
		return "", false, err
	}
	if left {
		minSeq++
	} else {
		maxSeq--
	}
	if _, err := tx.ExecContext(ctx, `UPDATE kv_list_bounds SET min_seq = $2, max_seq = $3 WHERE key = $1`, key, minSeq, maxSeq); err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	n, err := s.LLen(ctx, key)
	if err != nil {
		return nil, err
	}
	offset, limit := resolveSQLRange(start, stop, n)
	if limit <= 0 {
		return []string{}, nil
	}
	var values []string
	err = s.db.SelectContext(ctx, &values,
		`SELECT value FROM kv_lists WHERE key = $1 ORDER BY seq ASC OFFSET $2 LIMIT $3`, key, offset, limit)
	return values, err
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM kv_lists WHERE key = $1`, key)
	return count, err
}

// ---- sets ----

func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	var added int64
	for _, m := range members {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO kv_sets (key, member) VALUES ($1, $2) ON CONFLICT DO NOTHING`, key, m)
		if err != nil {
			return added, err
		}
		n, _ := res.RowsAffected()
		added += n
	}
	return added, nil
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	var removed int64
	for _, m := range members {
		res, err := s.db.ExecContext(ctx, `DELETE FROM kv_sets WHERE key = $1 AND member = $2`, key, m)
		if err != nil {
			return removed, err
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := s.db.SelectContext(ctx, &members, `SELECT member FROM kv_sets WHERE key = $1 ORDER BY member`, key)
	return members, err
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM kv_sets WHERE key = $1 AND member = $2)`, key, member)
	return exists, err
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM kv_sets WHERE key = $1`, key)
	return count, err
}

// ---- hashes ----

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_hashes (key, field, value) VALUES ($1, $2, $3)
		ON CONFLICT (key, field) DO UPDATE SET value = EXCLUDED.value`, key, field, value)
	return err
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv_hashes WHERE key = $1 AND field = $2`, key, field)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return value, err == nil, err
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT field, value FROM kv_hashes WHERE key = $1`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var f, v string
		if err := rows.Scan(&f, &v); err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, rows.Err()
}

func (s *Store) HDel(ctx context.Context, key string, field string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_hashes WHERE key = $1 AND field = $2`, key, field)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	var newValue int64
	err := s.db.GetContext(ctx, &newValue, `
		INSERT INTO kv_hashes (key, field, value) VALUES ($1, $2, $3::TEXT)
		ON CONFLICT (key, field) DO UPDATE SET value = (COALESCE(NULLIF(kv_hashes.value, '')::BIGINT, 0) + $3::BIGINT)::TEXT
		RETURNING value::BIGINT`, key, field, delta)
	return newValue, err
}

// ---- transaction ----

// Transaction runs every op against one *sql.Tx; the first failing op
// rolls back the whole batch.
func (s *Store) Transaction(ctx context.Context, ops []storage.Op) ([]interface{}, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	results := make([]interface{}, 0, len(ops))
	for _, op := range ops {
		res, err := dispatchTx(ctx, tx, op)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

func dispatchTx(ctx context.Context, tx *sqlx.Tx, op storage.Op) (interface{}, error) {
	switch op.Method {
	case "Increment":
		var v int64
		err := tx.GetContext(ctx, &v, `
			INSERT INTO kv_strings (key, value, expires_at) VALUES ($1, $2::TEXT, NULL)
			ON CONFLICT (key) DO UPDATE SET value = (COALESCE(NULLIF(kv_strings.value, '')::BIGINT, 0) + $2::BIGINT)::TEXT
			RETURNING value::BIGINT`, argStr(op.Args, 0), argInt64(op.Args, 1))
		return v, err
	case "ZIncrBy":
		var v float64
		err := tx.GetContext(ctx, &v, `
			INSERT INTO kv_zsets (key, member, score) VALUES ($1, $2, $3)
			ON CONFLICT (key, member) DO UPDATE SET score = kv_zsets.score + $3
			RETURNING score`, argStr(op.Args, 0), argStr(op.Args, 2), argFloat(op.Args, 1))
		return v, err
	case "HIncrBy":
		var v int64
		err := tx.GetContext(ctx, &v, `
			INSERT INTO kv_hashes (key, field, value) VALUES ($1, $2, $3::TEXT)
			ON CONFLICT (key, field) DO UPDATE SET value = (COALESCE(NULLIF(kv_hashes.value, '')::BIGINT, 0) + $3::BIGINT)::TEXT
			RETURNING value::BIGINT`, argStr(op.Args, 0), argStr(op.Args, 1), argInt64(op.Args, 2))
		return v, err
	case "SAdd":
		var added int64
		for _, m := range argStrSlice(op.Args, 1) {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO kv_sets (key, member) VALUES ($1, $2) ON CONFLICT DO NOTHING`, argStr(op.Args, 0), m)
			if err != nil {
				return nil, err
			}
			n, _ := res.RowsAffected()
			added += n
		}
		return added, nil
	default:
		return nil, fmt.Errorf("postgres: unsupported transaction op %q", op.Method)
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
				s.db.ExecContext(ctx, `DELETE FROM kv_strings WHERE expires_at IS NOT NULL AND expires_at <= now()`)
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
	return s.db.Close()
}

// ---- helpers ----

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

func argStrSlice(args []interface{}, i int) []string {
	if i >= len(args) {
		return nil
	}
	v, _ := args[i].([]string)
	return append([]string(nil), v...)
}
