// Package leaderboard implements the leaderboard module: arbitrary
// named boards plus the canonical per-metric × per-period boards,
// rank computation, period rotation, and archival.
package leaderboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/gamification-engine/internal/modules"
	plerrors "github.com/R3E-Network/gamification-engine/internal/platform/errors"
	"github.com/R3E-Network/gamification-engine/internal/storage"
)

const keyPrefix = "lb"

// Entry is one normalized, ranked leaderboard row.
type Entry struct {
	UserID string  `json:"userId"`
	Score  float64 `json:"score"`
	Rank   int64   `json:"rank"`
}

// UpdateOptions tunes Update's write behavior.
type UpdateOptions struct {
	Increment bool
	Period    modules.Period
}

// QueryOptions tunes GetLeaderboard's read behavior.
type QueryOptions struct {
	Period      modules.Period
	Limit       int64
	Offset      int64
	IncludeUser string
}

// Module implements modules.Module for leaderboards.
type Module struct {
	*modules.Base
	scheduler *cron.Cron
}

// New constructs the leaderboard module.
func New() *Module {
	return &Module{Base: modules.NewBase("leaderboard"), scheduler: cron.New()}
}

// Initialise schedules the period-archival scan on a standard cron
// expression (top of every hour) rather than a hand-rolled ticker,
// matching the cadence the rest of the module already assumed.
func (m *Module) Initialise(ctx context.Context) error {
	if _, err := m.scheduler.AddFunc("0 * * * *", func() {
		if err := m.archiveFinishedPeriods(context.Background()); err != nil {
			m.Logger().WithError(err).Warn("leaderboard archive failed")
		}
	}); err != nil {
		return fmt.Errorf("leaderboard: schedule archive job: %w", err)
	}
	m.scheduler.Start()
	m.Start(ctx)
	return nil
}

// Shutdown stops the archival scheduler, waiting for any in-flight run
// to finish, before tearing down the rest of the module's workers.
func (m *Module) Shutdown(ctx context.Context) error {
	<-m.scheduler.Stop().Done()
	return m.Base.Shutdown(ctx)
}

func boardKey(board string, period modules.Period) string {
	if period == modules.PeriodAll || period == "" {
		return fmt.Sprintf("%s:%s:all", keyPrefix, board)
	}
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, board, period, modules.PeriodBucket(period, time.Now()))
}

func archiveKey(board string, period modules.Period, bucket string) string {
	return fmt.Sprintf("%s:archive:%s:%s:%s", keyPrefix, board, period, bucket)
}

func boardsIndexKey() string { return fmt.Sprintf("%s:boards", keyPrefix) }

// Update writes userID's score to board, either via ZAdd (absolute) or
// ZIncrBy (relative) depending on opts.Increment, and returns the
// updated score plus rank.
func (m *Module) Update(ctx context.Context, userID, board string, score float64, opts UpdateOptions) (Entry, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Entry{}, plerrors.GamInvalidAmount("score must be finite")
	}

	key := boardKey(board, opts.Period)
	_, _ = m.Storage().SAdd(ctx, boardsIndexKey(), boardIndexMember(board, opts.Period))

	var newScore float64
	if opts.Increment {
		v, err := m.Storage().ZIncrBy(ctx, key, score, userID)
		if err != nil {
			return Entry{}, fmt.Errorf("leaderboard: ZIncrBy: %w", err)
		}
		newScore = v
	} else {
		if _, err := m.Storage().ZAdd(ctx, key, score, userID); err != nil {
			return Entry{}, fmt.Errorf("leaderboard: ZAdd: %w", err)
		}
		newScore = score
	}

	rank, _, err := m.Storage().ZRevRank(ctx, key, userID)
	if err != nil {
		return Entry{}, fmt.Errorf("leaderboard: ZRevRank: %w", err)
	}

	if m.Bus() != nil {
		m.Bus().Emit("leaderboard.updated", map[string]interface{}{
			"userId": userID, "board": board, "score": newScore, "rank": rank + 1,
		})
	}
	return Entry{UserID: userID, Score: newScore, Rank: rank + 1}, nil
}

// GetLeaderboard reads board via ZRevRange, computing 1-based ranks,
// optionally appending the requesting user's own entry when it falls
// outside the requested page. GetLeaderboard is an in-process entry
// point (no HTTP route calls it) and rejects negative limit/offset
// itself; a limit of 0 selects the default page size of 50.
func (m *Module) GetLeaderboard(ctx context.Context, board string, opts QueryOptions) ([]Entry, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, plerrors.GamInvalidAmount("limit and offset must be non-negative")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	key := boardKey(board, opts.Period)

	start := opts.Offset
	stop := opts.Offset + limit - 1
	members, err := m.Storage().ZRevRange(ctx, key, start, stop, storage.ZRangeOptions{WithScores: true})
	if err != nil {
		return nil, fmt.Errorf("leaderboard: ZRevRange: %w", err)
	}

	entries := make([]Entry, 0, len(members))
	for i, mem := range members {
		entries = append(entries, Entry{UserID: mem.Member, Score: mem.Score, Rank: start + int64(i) + 1})
	}

	if opts.IncludeUser != "" && !containsUser(entries, opts.IncludeUser) {
		rank, ok, err := m.Storage().ZRevRank(ctx, key, opts.IncludeUser)
		if err == nil && ok {
			score, _, _ := m.Storage().ZScore(ctx, key, opts.IncludeUser)
			entries = append(entries, Entry{UserID: opts.IncludeUser, Score: score, Rank: rank + 1})
		}
	}
	return entries, nil
}

func containsUser(entries []Entry, userID string) bool {
	for _, e := range entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

func boardIndexMember(board string, period modules.Period) string {
	return board + "\x1f" + string(period)
}

func splitBoardIndexMember(member string) (board string, period modules.Period, ok bool) {
	for i := 0; i < len(member); i++ {
		if member[i] == '\x1f' {
			return member[:i], modules.Period(member[i+1:]), true
		}
	}
	return "", "", false
}

// archiveFinishedPeriods runs hourly and snapshots every non-all-time
// board whose calendar bucket rolled over within the last hour: the
// bucket one hour before now is read and, when it differs from the
// current bucket, written to a normalized [{member,score}]-shaped
// archive entry under that finished bucket's label. A rollover hour in
// which no scan runs leaves that bucket unarchived. The entry shape is
// independent of whether the
// underlying adapter stores sorted-set members as structs or flat
// pairs — storage.ZMember is already the normalized shape every adapter
// returns, which is this module's resolution of the historic
// archive-format inconsistency spec.md calls out.
func (m *Module) archiveFinishedPeriods(ctx context.Context) error {
	boards, err := m.Storage().SMembers(ctx, boardsIndexKey())
	if err != nil {
		return fmt.Errorf("leaderboard: archive: list boards: %w", err)
	}
	now := time.Now()
	for _, member := range boards {
		board, period, ok := splitBoardIndexMember(member)
		if !ok || period == modules.PeriodAll || period == "" {
			continue
		}
		bucket := modules.PeriodBucket(period, now)
		prev := modules.PeriodBucket(period, now.Add(-time.Hour))
		if prev == bucket {
			continue
		}
		key := fmt.Sprintf("%s:%s:%s:%s", keyPrefix, board, period, prev)
		members, err := m.Storage().ZRevRange(ctx, key, 0, -1, storage.ZRangeOptions{WithScores: true})
		if err != nil {
			continue
		}
		if len(members) == 0 {
			continue
		}
		normalized := make([]Entry, 0, len(members))
		for i, mem := range members {
			normalized = append(normalized, Entry{UserID: mem.Member, Score: mem.Score, Rank: int64(i) + 1})
		}
		if err := m.writeArchive(ctx, board, period, prev, normalized); err != nil {
			m.Logger().WithError(err).Warn("leaderboard archive write failed")
		}
	}
	return nil
}

func (m *Module) writeArchive(ctx context.Context, board string, period modules.Period, bucket string, entries []Entry) error {
	key := archiveKey(board, period, bucket)
	for _, e := range entries {
		if _, err := m.Storage().ZAdd(ctx, key, e.Score, e.UserID); err != nil {
			return err
		}
	}
	return nil
}

// GetUserStats satisfies modules.Module: leaderboard ranks are read
// per-board via GetLeaderboard, so there is no single-call aggregate
// beyond reporting the boards this user appears on.
func (m *Module) GetUserStats(ctx context.Context, userID string) (map[string]interface{}, error) {
	boards, err := m.Storage().SMembers(ctx, boardsIndexKey())
	if err != nil {
		return nil, err
	}
	ranks := make(map[string]interface{}, len(boards))
	for _, member := range boards {
		board, period, ok := splitBoardIndexMember(member)
		if !ok {
			continue
		}
		key := boardKey(board, period)
		rank, found, err := m.Storage().ZRevRank(ctx, key, userID)
		if err != nil || !found {
			continue
		}
		ranks[member] = rank + 1
	}
	return map[string]interface{}{"ranks": ranks}, nil
}

// ResetUser removes userID from every indexed board.
func (m *Module) ResetUser(ctx context.Context, userID string) error {
	boards, err := m.Storage().SMembers(ctx, boardsIndexKey())
	if err != nil {
		return err
	}
	for _, member := range boards {
		board, period, ok := splitBoardIndexMember(member)
		if !ok {
			continue
		}
		if _, err := m.Storage().ZRem(ctx, boardKey(board, period), userID); err != nil {
			return err
		}
	}
	return nil
}

// Routes returns nil: leaderboard has no module-owned HTTP surface.
func (m *Module) Routes() chi.Router { return nil }
