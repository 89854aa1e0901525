// Package points implements the points module: per-user totals, rolling
// period counters, a bounded transaction log, canonical leaderboards,
// and an optional decay scheduler.
package points

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/R3E-Network/gamification-engine/internal/modules"
	plerrors "github.com/R3E-Network/gamification-engine/internal/platform/errors"
	"github.com/R3E-Network/gamification-engine/internal/storage"
)

const (
	keyPrefix        = "points"
	maxTransactions  = 200
	multiplierPrefix = "multiplier:"
)

// Config tunes per-deployment points behavior.
type Config struct {
	DailyCeiling   int64
	WeeklyCeiling  int64
	MonthlyCeiling int64
	MinimumFloor   int64

	DecayEnabled    bool
	DecayInterval   time.Duration
	DecayDays       int
	DecayPercentage float64
}

// Transaction is one bounded entry in a user's points history.
type Transaction struct {
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// AwardResult is returned by Award.
type AwardResult struct {
	Applied      int64            `json:"applied"`
	Total        int64            `json:"total"`
	PeriodTotals map[string]int64 `json:"periodTotals"`
}

// DeductResult is returned by Deduct.
type DeductResult struct {
	Applied int64 `json:"applied"`
	Total   int64 `json:"total"`
}

// LeaderboardEntry is one row of a points leaderboard.
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Points int64  `json:"points"`
	Rank   int64  `json:"rank"`
}

// Module implements modules.Module for points.
type Module struct {
	*modules.Base
	cfg Config
}

// New constructs the points module with cfg applied.
func New(cfg Config) *Module {
	return &Module{Base: modules.NewBase("points"), cfg: cfg}
}

// Initialise starts the optional decay scheduler.
func (m *Module) Initialise(ctx context.Context) error {
	if m.cfg.DecayEnabled && m.cfg.DecayInterval > 0 {
		m.AddTickerWorker(m.cfg.DecayInterval, m.runDecay, modules.WithWorkerLabel("points.decay"))
	}
	m.Start(ctx)
	return nil
}

func totalKey(userID string) string { return fmt.Sprintf("%s:total:%s", keyPrefix, userID) }

func periodKey(userID string, period modules.Period, bucket string) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, period, userID, bucket)
}

func txKey(userID string) string { return fmt.Sprintf("%s:tx:%s", keyPrefix, userID) }

func lastActivityKey(userID string) string { return fmt.Sprintf("%s:lastActivity:%s", keyPrefix, userID) }

func leaderboardKey(period modules.Period, bucket string) string {
	if period == modules.PeriodAll {
		return fmt.Sprintf("%s:lb:all", keyPrefix)
	}
	return fmt.Sprintf("%s:lb:%s:%s", keyPrefix, period, bucket)
}

// Award credits userId with amount points after applying the resolved
// multiplier, atomically bumping the total and every period counter,
// appending a transaction record, and emitting points.awarded.
//
// A configured ceiling caps how much a single award can contribute
// towards that period's counter: once a period's remaining capacity is
// positive but smaller than the multiplier-applied amount, the period
// counter (and its leaderboard) only credits the remaining capacity,
// while the account-wide total and the returned/emitted Applied value
// reflect the award capped to the ceiling's face value. A period
// already at or over its ceiling rejects the award outright.
func (m *Module) Award(ctx context.Context, userID string, amount int64, reason string) (AwardResult, error) {
	if amount <= 0 {
		return AwardResult{}, plerrors.GamInvalidAmount("amount must be positive")
	}

	now := time.Now()
	multiplier := m.resolveMultiplier(userID, reason, now)
	applied := int64(math.Floor(float64(amount) * multiplier))

	remaining, err := m.periodRemaining(ctx, userID, now)
	if err != nil {
		return AwardResult{}, err
	}
	for period, left := range remaining {
		if left <= 0 {
			return AwardResult{}, plerrors.GamLimitExceeded(string(period))
		}
	}
	for _, ceiling := range []int64{m.cfg.DailyCeiling, m.cfg.WeeklyCeiling, m.cfg.MonthlyCeiling} {
		if ceiling > 0 && applied > ceiling {
			applied = ceiling
		}
	}

	total, err := m.Storage().Increment(ctx, totalKey(userID), applied)
	if err != nil {
		return AwardResult{}, fmt.Errorf("points: increment total: %w", err)
	}

	periodTotals := make(map[string]int64, len(modules.Periods))
	for _, p := range modules.Periods {
		credit := applied
		if left, ok := remaining[p]; ok && credit > left {
			credit = left
		}

		bucket := modules.PeriodBucket(p, now)
		v, err := m.Storage().Increment(ctx, periodKey(userID, p, bucket), credit)
		if err != nil {
			return AwardResult{}, fmt.Errorf("points: increment %s: %w", p, err)
		}
		periodTotals[string(p)] = v

		if _, err := m.Storage().ZAdd(ctx, leaderboardKey(p, bucket), float64(v), userID); err != nil {
			return AwardResult{}, fmt.Errorf("points: update %s leaderboard: %w", p, err)
		}
	}

	if _, err := m.Storage().ZAdd(ctx, leaderboardKey(modules.PeriodAll, ""), float64(total), userID); err != nil {
		return AwardResult{}, fmt.Errorf("points: update all-time leaderboard: %w", err)
	}

	if err := m.appendTransaction(ctx, userID, applied, reason, now); err != nil {
		return AwardResult{}, err
	}
	if err := m.Storage().Set(ctx, lastActivityKey(userID), strconv.FormatInt(now.Unix(), 10), 0); err != nil {
		return AwardResult{}, fmt.Errorf("points: update last activity: %w", err)
	}

	result := AwardResult{Applied: applied, Total: total, PeriodTotals: periodTotals}
	if m.Bus() != nil {
		m.Bus().Emit("points.awarded", map[string]interface{}{
			"userId":       userID,
			"applied":      applied,
			"total":        total,
			"periodTotals": periodTotals,
			"reason":       reason,
		})
	}
	return result, nil
}

// Deduct removes amount points from userId's total. The minimum-floor
// policy is enforced before the leaderboard write, so the leaderboard
// never observes a value later corrected upward by the floor.
func (m *Module) Deduct(ctx context.Context, userID string, amount int64, reason string) (DeductResult, error) {
	if amount <= 0 {
		return DeductResult{}, plerrors.GamInvalidAmount("amount must be positive")
	}

	raw, err := m.Storage().Decrement(ctx, totalKey(userID), amount)
	if err != nil {
		return DeductResult{}, fmt.Errorf("points: decrement total: %w", err)
	}

	floored := raw
	if floored < m.cfg.MinimumFloor {
		floored = m.cfg.MinimumFloor
		if _, err := m.Storage().Set(ctx, totalKey(userID), strconv.FormatInt(floored, 10), 0); err != nil {
			return DeductResult{}, fmt.Errorf("points: apply minimum floor: %w", err)
		}
	}

	if _, err := m.Storage().ZAdd(ctx, leaderboardKey(modules.PeriodAll, ""), float64(floored), userID); err != nil {
		return DeductResult{}, fmt.Errorf("points: update all-time leaderboard: %w", err)
	}

	if err := m.appendTransaction(ctx, userID, -amount, reason, time.Now()); err != nil {
		return DeductResult{}, err
	}

	if m.Bus() != nil {
		m.Bus().Emit("points.deducted", map[string]interface{}{
			"userId": userID, "applied": amount, "total": floored, "reason": reason,
		})
	}
	return DeductResult{Applied: amount, Total: floored}, nil
}

// GetBalance returns userId's all-time total.
func (m *Module) GetBalance(ctx context.Context, userID string) (int64, error) {
	v, ok, err := m.Storage().Get(ctx, totalKey(userID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n, nil
}

// GetPeriodBalance returns userId's counter for period's current bucket.
func (m *Module) GetPeriodBalance(ctx context.Context, userID string, period modules.Period) (int64, error) {
	bucket := modules.PeriodBucket(period, time.Now())
	v, ok, err := m.Storage().Get(ctx, periodKey(userID, period, bucket))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n, nil
}

// LeaderboardQuery parameterizes GetLeaderboard.
type LeaderboardQuery struct {
	Period      modules.Period
	Limit       int64
	Offset      int64
	IncludeUser string
}

// GetLeaderboard reads the period-specific board (not the all-time
// total, for non-all periods) and computes each entry's rank.
func (m *Module) GetLeaderboard(ctx context.Context, q LeaderboardQuery) ([]LeaderboardEntry, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return nil, plerrors.InvalidInput("limit/offset", "must be non-negative")
	}
	bucket := modules.PeriodBucket(q.Period, time.Now())
	key := leaderboardKey(q.Period, bucket)

	start := q.Offset
	stop := q.Offset + q.Limit - 1
	if q.Limit == 0 {
		stop = -1
	}
	members, err := m.Storage().ZRevRange(ctx, key, start, stop, storage.ZRangeOptions{WithScores: true})
	if err != nil {
		return nil, fmt.Errorf("points: read leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(members))
	for i, mem := range members {
		entries = append(entries, LeaderboardEntry{
			UserID: mem.Member,
			Points: int64(mem.Score),
			Rank:   start + int64(i) + 1,
		})
	}

	if q.IncludeUser != "" && !containsUser(entries, q.IncludeUser) {
		rank, found, err := m.Storage().ZRevRank(ctx, key, q.IncludeUser)
		if err == nil && found {
			score, _, _ := m.Storage().ZScore(ctx, key, q.IncludeUser)
			entries = append(entries, LeaderboardEntry{
				UserID: q.IncludeUser,
				Points: int64(score),
				Rank:   rank + 1,
			})
		}
	}
	return entries, nil
}

func containsUser(entries []LeaderboardEntry, userID string) bool {
	for _, e := range entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

func (m *Module) appendTransaction(ctx context.Context, userID string, amount int64, reason string, now time.Time) error {
	tx := Transaction{Amount: amount, Reason: reason, Timestamp: now}
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("points: marshal transaction: %w", err)
	}
	if _, err := m.Storage().RPush(ctx, txKey(userID), string(data)); err != nil {
		return fmt.Errorf("points: append transaction: %w", err)
	}
	if n, err := m.Storage().LLen(ctx, txKey(userID)); err == nil && n > maxTransactions {
		if _, _, err := m.Storage().LPop(ctx, txKey(userID)); err != nil {
			return fmt.Errorf("points: trim transaction log: %w", err)
		}
	}
	return nil
}

func (m *Module) resolveMultiplier(userID, reason string, now time.Time) float64 {
	if m.Rules() == nil {
		return 1.0
	}
	evalCtx := map[string]interface{}{
		"userId": userID,
		"reason": reason,
		"day":    strings.ToLower(now.Weekday().String()[:3]),
		"hour":   now.Hour(),
	}
	results, err := m.Rules().Evaluate(evalCtx)
	if err != nil {
		return 1.0
	}
	multiplier := 1.0
	for _, r := range results {
		if !r.Passed {
			continue
		}
		for _, action := range r.Actions {
			if !strings.HasPrefix(action, multiplierPrefix) {
				continue
			}
			if v, err := strconv.ParseFloat(strings.TrimPrefix(action, multiplierPrefix), 64); err == nil {
				multiplier *= v
			}
		}
	}
	return multiplier
}

// periodRemaining returns, for every period with a configured ceiling,
// the capacity left in its current bucket (ceiling minus what's
// already posted there). Periods with no ceiling configured are
// omitted: they never constrain or truncate an award.
func (m *Module) periodRemaining(ctx context.Context, userID string, now time.Time) (map[modules.Period]int64, error) {
	checks := []struct {
		period  modules.Period
		ceiling int64
	}{
		{modules.PeriodDaily, m.cfg.DailyCeiling},
		{modules.PeriodWeekly, m.cfg.WeeklyCeiling},
		{modules.PeriodMonthly, m.cfg.MonthlyCeiling},
	}
	remaining := make(map[modules.Period]int64, len(checks))
	for _, c := range checks {
		if c.ceiling <= 0 {
			continue
		}
		bucket := modules.PeriodBucket(c.period, now)
		current, _, err := m.Storage().Get(ctx, periodKey(userID, c.period, bucket))
		if err != nil {
			return nil, fmt.Errorf("points: read %s ceiling usage: %w", c.period, err)
		}
		n, _ := strconv.ParseInt(current, 10, 64)
		remaining[c.period] = c.ceiling - n
	}
	return remaining, nil
}

func (m *Module) runDecay(ctx context.Context) error {
	if !m.cfg.DecayEnabled || m.cfg.DecayPercentage <= 0 {
		return nil
	}
	keys, err := m.Storage().Keys(ctx, fmt.Sprintf("%s:lastActivity:*", keyPrefix))
	if err != nil {
		return err
	}
	cutoff := time.Now().AddDate(0, 0, -m.cfg.DecayDays)
	for _, k := range keys {
		userID := strings.TrimPrefix(k, fmt.Sprintf("%s:lastActivity:", keyPrefix))
		v, ok, err := m.Storage().Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		unixTS, _ := strconv.ParseInt(v, 10, 64)
		if time.Unix(unixTS, 0).After(cutoff) {
			continue
		}
		total, err := m.GetBalance(ctx, userID)
		if err != nil || total <= 0 {
			continue
		}
		reduction := int64(math.Floor(float64(total) * m.cfg.DecayPercentage))
		if reduction <= 0 {
			continue
		}
		if _, err := m.Deduct(ctx, userID, reduction, "decay"); err != nil {
			m.Logger().WithContext(ctx).WithError(err).Warn("points decay deduct failed")
		}
	}
	return nil
}

// GetUserStats satisfies modules.Module.
func (m *Module) GetUserStats(ctx context.Context, userID string) (map[string]interface{}, error) {
	total, err := m.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := map[string]interface{}{"total": total}
	for _, p := range modules.Periods {
		v, err := m.GetPeriodBalance(ctx, userID, p)
		if err != nil {
			return nil, err
		}
		stats[string(p)] = v
	}
	return stats, nil
}

// ResetUser clears a user's points state across all keys this module owns.
func (m *Module) ResetUser(ctx context.Context, userID string) error {
	keys := []string{totalKey(userID), txKey(userID), lastActivityKey(userID)}
	now := time.Now()
	for _, p := range modules.Periods {
		keys = append(keys, periodKey(userID, p, modules.PeriodBucket(p, now)))
	}
	for _, k := range keys {
		if _, err := m.Storage().Delete(ctx, k); err != nil {
			return err
		}
	}
	if _, err := m.Storage().ZRem(ctx, leaderboardKey(modules.PeriodAll, ""), userID); err != nil {
		return err
	}
	for _, p := range modules.Periods {
		if _, err := m.Storage().ZRem(ctx, leaderboardKey(p, modules.PeriodBucket(p, now)), userID); err != nil {
			return err
		}
	}
	return nil
}

// Routes returns nil: points exposes no module-owned HTTP routes beyond
// the generic /<module>/award and /stats surface the HTTP layer wires
// against every module uniformly.
func (m *Module) Routes() chi.Router { return nil }
