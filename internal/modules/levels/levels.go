// Package levels implements the level module: an atomic XP counter,
// level-threshold resolution, prestige, and XP/level/prestige
// leaderboards.
package levels

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/R3E-Network/gamification-engine/internal/modules"
	plerrors "github.com/R3E-Network/gamification-engine/internal/platform/errors"
)

const keyPrefix = "levels"

// Config tunes level behavior.
type Config struct {
	Formula Formula
}

// Record is a user's level state, recomputed from the authoritative XP
// counter on every AddXP call.
type Record struct {
	Level          int       `json:"level"`
	TotalXP        int64     `json:"totalXP"`
	CurrentLevelXP int64     `json:"currentLevelXP"`
	Prestige       int       `json:"prestige"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AddXPResult is returned by AddXP.
type AddXPResult struct {
	Record       Record
	LevelsGained int
}

// Module implements modules.Module for levels.
type Module struct {
	*modules.Base
	cfg        Config
	thresholds []int64
}

// New constructs the levels module.
func New(cfg Config) *Module {
	return &Module{Base: modules.NewBase("levels"), cfg: cfg}
}

// Initialise precomputes the level-threshold table.
func (m *Module) Initialise(ctx context.Context) error {
	m.thresholds = m.cfg.Formula.BuildThresholds()
	m.Start(ctx)
	return nil
}

func xpKey(userID string) string        { return fmt.Sprintf("%s:xp:%s", keyPrefix, userID) }
func recordKey(userID string) string    { return fmt.Sprintf("%s:record:%s", keyPrefix, userID) }
func expiresKey(userID string) string   { return fmt.Sprintf("%s:multiplier:expires:%s", keyPrefix, userID) }
func multiplierKey(userID string) string { return fmt.Sprintf("%s:multiplier:value:%s", keyPrefix, userID) }

func leaderboardKey(metric string) string { return fmt.Sprintf("%s:lb:%s", keyPrefix, metric) }

func (m *Module) maxLevel() int { return len(m.thresholds) - 1 }

// AddXP awards xp to userId after resolving the effective multiplier
// (global × per-reason × per-user time-bounded × prestige bonus),
// processes every level-up between the old level+1 and the new level
// inclusive, and updates leaderboards.
func (m *Module) AddXP(ctx context.Context, userID string, xp int64, reason string) (AddXPResult, error) {
	if xp <= 0 {
		return AddXPResult{}, plerrors.GamInvalidAmount("xp must be positive")
	}

	record, err := m.loadRecord(ctx, userID)
	if err != nil {
		return AddXPResult{}, err
	}
	oldLevel := record.Level

	multiplier := m.resolveMultiplier(ctx, userID, reason, record.Prestige)
	applied := int64(float64(xp) * multiplier)
	if applied <= 0 {
		applied = xp
	}

	totalXP, err := m.Storage().Increment(ctx, xpKey(userID), applied)
	if err != nil {
		return AddXPResult{}, fmt.Errorf("levels: increment xp: %w", err)
	}

	newLevel := LevelForXP(m.thresholds, totalXP)
	if newLevel > m.maxLevel() {
		newLevel = m.maxLevel()
	}

	record.TotalXP = totalXP
	record.Level = newLevel
	record.CurrentLevelXP = totalXP - m.thresholds[newLevel]
	record.UpdatedAt = time.Now()
	if err := m.saveRecord(ctx, userID, record); err != nil {
		return AddXPResult{}, err
	}

	if _, err := m.Storage().ZAdd(ctx, leaderboardKey("xp"), float64(totalXP), userID); err != nil {
		return AddXPResult{}, fmt.Errorf("levels: update xp leaderboard: %w", err)
	}
	if _, err := m.Storage().ZAdd(ctx, leaderboardKey("level"), float64(newLevel), userID); err != nil {
		return AddXPResult{}, fmt.Errorf("levels: update level leaderboard: %w", err)
	}

	levelsGained := newLevel - oldLevel
	if levelsGained > 0 && m.Bus() != nil {
		for l := oldLevel + 1; l <= newLevel; l++ {
			m.Bus().Emit("level.up", map[string]interface{}{
				"userId": userID, "level": l, "totalXP": totalXP,
			})
		}
	} else if levelsGained < 0 && m.Bus() != nil {
		m.Bus().Emit("level.down", map[string]interface{}{
			"userId": userID, "level": newLevel, "totalXP": totalXP,
		})
	}

	return AddXPResult{Record: record, LevelsGained: levelsGained}, nil
}

// Prestige resets level and XP to starting values and increments the
// prestige counter. Only permitted at the max level.
func (m *Module) Prestige(ctx context.Context, userID string) (Record, error) {
	record, err := m.loadRecord(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	if record.Level < m.maxLevel() {
		return Record{}, plerrors.GamLimitExceeded("max_level_required")
	}

	if err := m.Storage().Set(ctx, xpKey(userID), "0", 0); err != nil {
		return Record{}, fmt.Errorf("levels: reset xp: %w", err)
	}
	record.TotalXP = 0
	record.Level = 1
	record.CurrentLevelXP = 0
	record.Prestige++
	record.UpdatedAt = time.Now()
	if err := m.saveRecord(ctx, userID, record); err != nil {
		return Record{}, err
	}
	if _, err := m.Storage().ZAdd(ctx, leaderboardKey("prestige"), float64(record.Prestige), userID); err != nil {
		return Record{}, fmt.Errorf("levels: update prestige leaderboard: %w", err)
	}
	if m.Bus() != nil {
		m.Bus().Emit("prestiged", map[string]interface{}{"userId": userID, "prestige": record.Prestige})
	}
	return record, nil
}

// SetUserMultiplier installs a time-bounded per-user XP multiplier.
func (m *Module) SetUserMultiplier(ctx context.Context, userID string, value float64, expires time.Time) error {
	if err := m.Storage().Set(ctx, multiplierKey(userID), strconv.FormatFloat(value, 'f', -1, 64), 0); err != nil {
		return err
	}
	return m.Storage().Set(ctx, expiresKey(userID), strconv.FormatInt(expires.Unix(), 10), 0)
}

// resolveMultiplier guards against a missing or expired "expires" field:
// absent or already-elapsed expiry disables the per-user bonus rather
// than defaulting it on, which was a historic bug.
func (m *Module) resolveMultiplier(ctx context.Context, userID, reason string, prestige int) float64 {
	multiplier := 1.0 + 0.1*float64(prestige)

	if m.Rules() != nil {
		evalCtx := map[string]interface{}{"userId": userID, "reason": reason}
		if results, err := m.Rules().Evaluate(evalCtx); err == nil {
			for _, r := range results {
				if !r.Passed {
					continue
				}
				for _, action := range r.Actions {
					if v, ok := parseMultiplierAction(action); ok {
						multiplier *= v
					}
				}
			}
		}
	}

	expiresRaw, ok, err := m.Storage().Get(ctx, expiresKey(userID))
	if err != nil || !ok || strings.TrimSpace(expiresRaw) == "" {
		return multiplier
	}
	expiresUnix, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil || time.Now().After(time.Unix(expiresUnix, 0)) {
		return multiplier
	}
	valueRaw, ok, err := m.Storage().Get(ctx, multiplierKey(userID))
	if err != nil || !ok {
		return multiplier
	}
	if v, err := strconv.ParseFloat(valueRaw, 64); err == nil {
		multiplier *= v
	}
	return multiplier
}

func parseMultiplierAction(action string) (float64, bool) {
	const prefix = "multiplier:"
	if !strings.HasPrefix(action, prefix) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimPrefix(action, prefix), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// loadRecord derives Level, TotalXP, and CurrentLevelXP from the
// atomic xp:<user> counter on every call: they are never read back
// from the hash record, so concurrent AddXP callers can never observe
// a regression below the true atomic total. The hash record holds only
// Prestige and UpdatedAt, metadata the counter can't reconstruct.
func (m *Module) loadRecord(ctx context.Context, userID string) (Record, error) {
	xpRaw, ok, err := m.Storage().Get(ctx, xpKey(userID))
	if err != nil {
		return Record{}, fmt.Errorf("levels: load xp: %w", err)
	}
	var totalXP int64
	if ok {
		totalXP, _ = strconv.ParseInt(xpRaw, 10, 64)
	}
	level := 1
	if len(m.thresholds) > 1 {
		level = LevelForXP(m.thresholds, totalXP)
		if level > m.maxLevel() {
			level = m.maxLevel()
		}
	}
	currentLevelXP := totalXP
	if level < len(m.thresholds) {
		currentLevelXP = totalXP - m.thresholds[level]
	}

	fields, err := m.Storage().HGetAll(ctx, recordKey(userID))
	if err != nil {
		return Record{}, fmt.Errorf("levels: load record metadata: %w", err)
	}
	prestige, _ := strconv.Atoi(fields["prestige"])
	updatedAt, _ := time.Parse(time.RFC3339, fields["updatedAt"])
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return Record{
		Level: level, TotalXP: totalXP, CurrentLevelXP: currentLevelXP,
		Prestige: prestige, UpdatedAt: updatedAt,
	}, nil
}

// saveRecord persists only the metadata loadRecord can't derive from
// the xp counter (Prestige, UpdatedAt); Level/TotalXP/CurrentLevelXP
// are never written here.
func (m *Module) saveRecord(ctx context.Context, userID string, r Record) error {
	fields := map[string]string{
		"prestige":  strconv.Itoa(r.Prestige),
		"updatedAt": r.UpdatedAt.Format(time.RFC3339),
	}
	for field, value := range fields {
		if err := m.Storage().HSet(ctx, recordKey(userID), field, value); err != nil {
			return fmt.Errorf("levels: save record: %w", err)
		}
	}
	return nil
}

// GetUserStats satisfies modules.Module.
func (m *Module) GetUserStats(ctx context.Context, userID string) (map[string]interface{}, error) {
	record, err := m.loadRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"level": record.Level, "totalXP": record.TotalXP,
		"currentLevelXP": record.CurrentLevelXP, "prestige": record.Prestige,
	}, nil
}

// ResetUser clears a user's level state.
func (m *Module) ResetUser(ctx context.Context, userID string) error {
	for _, k := range []string{xpKey(userID), recordKey(userID), expiresKey(userID), multiplierKey(userID)} {
		if _, err := m.Storage().Delete(ctx, k); err != nil {
			return err
		}
	}
	for _, metric := range []string{"xp", "level", "prestige"} {
		if _, err := m.Storage().ZRem(ctx, leaderboardKey(metric), userID); err != nil {
			return err
		}
	}
	return nil
}

// Routes returns nil: levels has no module-owned HTTP surface.
func (m *Module) Routes() chi.Router { return nil }
