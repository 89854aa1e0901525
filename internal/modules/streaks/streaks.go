// Package streaks implements the streak module: per (user, type)
// activity streaks with a grace window, consumable freezes, milestone
// rewards, and a periodic scan that breaks streaks no caller touched in
// time.
package streaks

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/R3E-Network/gamification-engine/internal/modules"
)

const keyPrefix = "streaks"

// Status is a streak's lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusFrozen Status = "frozen"
	StatusBroken Status = "broken"
)

// Record is a user's streak state for one streak type.
type Record struct {
	Current          int       `json:"current"`
	Longest          int       `json:"longest"`
	LastActivityAt   time.Time `json:"lastActivityAt"`
	FreezesUsed      int       `json:"freezesUsed"`
	FreezesAvailable int       `json:"freezesAvailable"`
	Status           Status    `json:"status"`
}

// TypeConfig tunes one streak type's window/grace/freeze/milestones.
type TypeConfig struct {
	Window            time.Duration
	Grace             time.Duration
	FreezeWindow      time.Duration
	InitialFreezes    int
	Milestones        []int
	MilestoneRewards  map[int]map[string]interface{}
}

// Config tunes the streak module.
type Config struct {
	Types map[string]TypeConfig
}

// Module implements modules.Module for streaks.
type Module struct {
	*modules.Base
	cfg Config
}

// New constructs the streaks module.
func New(cfg Config) *Module {
	return &Module{Base: modules.NewBase("streaks"), cfg: cfg}
}

// Initialise starts the periodic broken-streak scan.
func (m *Module) Initialise(ctx context.Context) error {
	m.AddTickerWorker(time.Minute, m.scanBroken, modules.WithWorkerLabel("streaks-scan"))
	m.Start(ctx)
	return nil
}

func recordKey(userID, streakType string) string {
	return fmt.Sprintf("%s:record:%s:%s", keyPrefix, userID, streakType)
}

func typesIndexKey() string { return fmt.Sprintf("%s:types", keyPrefix) }

func (m *Module) typeConfig(streakType string) (TypeConfig, bool) {
	tc, ok := m.cfg.Types[streakType]
	return tc, ok
}

// RecordActivity applies the Δ-based state machine described by the
// streak invariant: activity within the window extends current by one,
// activity within the grace period extends it too, and anything beyond
// window+grace breaks the streak unless a freeze is available to
// consume instead.
func (m *Module) RecordActivity(ctx context.Context, userID, streakType string, at time.Time) (Record, error) {
	tc, ok := m.typeConfig(streakType)
	if !ok {
		return Record{}, fmt.Errorf("streaks: unknown type %q", streakType)
	}

	record, exists, err := m.loadRecord(ctx, userID, streakType)
	if err != nil {
		return Record{}, err
	}
	if !exists {
		record = Record{
			Current: 1, Longest: 1, LastActivityAt: at,
			FreezesAvailable: tc.InitialFreezes, Status: StatusActive,
		}
		if err := m.saveRecord(ctx, userID, streakType, record); err != nil {
			return Record{}, err
		}
		m.indexType(ctx, userID, streakType)
		m.emit("streak.started", userID, streakType, record)
		return record, nil
	}

	delta := at.Sub(record.LastActivityAt)
	broke := false
	switch {
	case delta <= tc.Window:
		// activity within the window continues the streak.
		record.Current++
	case delta <= tc.Window+tc.Grace:
		// still within grace: extends, but consumed from grace rather
		// than landing inside the regular window.
		record.Current++
	default:
		if record.FreezesAvailable > 0 {
			record.FreezesAvailable--
			record.FreezesUsed++
			record.Current++
		} else {
			record.Current = 1
			broke = true
		}
	}

	if record.Current > record.Longest {
		record.Longest = record.Current
	}
	record.LastActivityAt = at
	record.Status = StatusActive
	if broke {
		record.Status = StatusBroken
	}

	if err := m.saveRecord(ctx, userID, streakType, record); err != nil {
		return Record{}, err
	}

	if broke {
		m.emit("streak.broken", userID, streakType, record)
		return record, nil
	}

	m.emit("streak.updated", userID, streakType, record)
	m.processMilestone(ctx, userID, streakType, tc, record)
	return record, nil
}

func (m *Module) processMilestone(ctx context.Context, userID, streakType string, tc TypeConfig, record Record) {
	for _, milestone := range tc.Milestones {
		if record.Current != milestone {
			continue
		}
		if m.Bus() != nil {
			reward := tc.MilestoneRewards[milestone]
			m.Bus().Emit("streak.milestone", map[string]interface{}{
				"userId": userID, "type": streakType, "milestone": milestone, "reward": reward,
			})
		}
	}
}

// FreezeStreak marks a streak frozen and extends lastActivityAt by the
// type's configured freeze window, buying the user time without
// consuming a grace-window check.
func (m *Module) FreezeStreak(ctx context.Context, userID, streakType string) (Record, error) {
	tc, ok := m.typeConfig(streakType)
	if !ok {
		return Record{}, fmt.Errorf("streaks: unknown type %q", streakType)
	}
	record, exists, err := m.loadRecord(ctx, userID, streakType)
	if err != nil {
		return Record{}, err
	}
	if !exists {
		return Record{}, fmt.Errorf("streaks: no record for user %q type %q", userID, streakType)
	}
	record.Status = StatusFrozen
	record.LastActivityAt = record.LastActivityAt.Add(tc.FreezeWindow)
	if err := m.saveRecord(ctx, userID, streakType, record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// BreakStreak forces a streak back to current=1/broken, bypassing the
// Δ-based state machine entirely (used by admin tooling).
func (m *Module) BreakStreak(ctx context.Context, userID, streakType string) (Record, error) {
	record, exists, err := m.loadRecord(ctx, userID, streakType)
	if err != nil {
		return Record{}, err
	}
	if !exists {
		return Record{}, fmt.Errorf("streaks: no record for user %q type %q", userID, streakType)
	}
	record.Current = 1
	record.Status = StatusBroken
	if err := m.saveRecord(ctx, userID, streakType, record); err != nil {
		return Record{}, err
	}
	m.emit("streak.broken", userID, streakType, record)
	return record, nil
}

// scanBroken walks every indexed (user, type) pair and breaks any streak
// whose window+grace has elapsed since lastActivityAt without a new
// RecordActivity call arriving. The elapsed check is the single
// condition that matters; it is written without the redundant
// always-true guards the scheduler historically carried.
func (m *Module) scanBroken(ctx context.Context) error {
	members, err := m.Storage().SMembers(ctx, typesIndexKey())
	if err != nil {
		return fmt.Errorf("streaks: scan: list indexed streaks: %w", err)
	}
	now := time.Now()
	for _, member := range members {
		userID, streakType, ok := splitIndexMember(member)
		if !ok {
			continue
		}
		tc, ok := m.typeConfig(streakType)
		if !ok {
			continue
		}
		record, exists, err := m.loadRecord(ctx, userID, streakType)
		if err != nil || !exists {
			continue
		}
		if record.Status == StatusBroken {
			continue
		}
		if now.Sub(record.LastActivityAt) > tc.Window+tc.Grace {
			record.Current = 1
			record.Status = StatusBroken
			if err := m.saveRecord(ctx, userID, streakType, record); err != nil {
				continue
			}
			m.emit("streak.broken", userID, streakType, record)
		}
	}
	return nil
}

func indexMember(userID, streakType string) string { return userID + "\x1f" + streakType }

func splitIndexMember(member string) (userID, streakType string, ok bool) {
	for i := 0; i < len(member); i++ {
		if member[i] == '\x1f' {
			return member[:i], member[i+1:], true
		}
	}
	return "", "", false
}

func (m *Module) indexType(ctx context.Context, userID, streakType string) {
	_, _ = m.Storage().SAdd(ctx, typesIndexKey(), indexMember(userID, streakType))
}

func (m *Module) emit(event, userID, streakType string, record Record) {
	if m.Bus() == nil {
		return
	}
	m.Bus().Emit(event, map[string]interface{}{
		"userId": userID, "type": streakType,
		"current": record.Current, "longest": record.Longest,
		"status": string(record.Status),
	})
}

func (m *Module) loadRecord(ctx context.Context, userID, streakType string) (Record, bool, error) {
	fields, err := m.Storage().HGetAll(ctx, recordKey(userID, streakType))
	if err != nil {
		return Record{}, false, fmt.Errorf("streaks: load record: %w", err)
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}
	current, _ := strconv.Atoi(fields["current"])
	longest, _ := strconv.Atoi(fields["longest"])
	freezesUsed, _ := strconv.Atoi(fields["freezesUsed"])
	freezesAvailable, _ := strconv.Atoi(fields["freezesAvailable"])
	lastActivityAt, _ := time.Parse(time.RFC3339, fields["lastActivityAt"])
	return Record{
		Current: current, Longest: longest,
		FreezesUsed: freezesUsed, FreezesAvailable: freezesAvailable,
		LastActivityAt: lastActivityAt, Status: Status(fields["status"]),
	}, true, nil
}

func (m *Module) saveRecord(ctx context.Context, userID, streakType string, r Record) error {
	fields := map[string]string{
		"current":          strconv.Itoa(r.Current),
		"longest":          strconv.Itoa(r.Longest),
		"freezesUsed":      strconv.Itoa(r.FreezesUsed),
		"freezesAvailable": strconv.Itoa(r.FreezesAvailable),
		"lastActivityAt":   r.LastActivityAt.Format(time.RFC3339),
		"status":           string(r.Status),
	}
	for field, value := range fields {
		if err := m.Storage().HSet(ctx, recordKey(userID, streakType), field, value); err != nil {
			return fmt.Errorf("streaks: save record: %w", err)
		}
	}
	return nil
}

// GetUserStats satisfies modules.Module, returning every configured
// streak type's record for userID.
func (m *Module) GetUserStats(ctx context.Context, userID string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m.cfg.Types))
	for streakType := range m.cfg.Types {
		record, exists, err := m.loadRecord(ctx, userID, streakType)
		if err != nil {
			return nil, err
		}
		if exists {
			out[streakType] = record
		}
	}
	return out, nil
}

// ResetUser clears every streak type's record for userID.
func (m *Module) ResetUser(ctx context.Context, userID string) error {
	for streakType := range m.cfg.Types {
		if _, err := m.Storage().Delete(ctx, recordKey(userID, streakType)); err != nil {
			return err
		}
		_, _ = m.Storage().SRem(ctx, typesIndexKey(), indexMember(userID, streakType))
	}
	return nil
}

// Routes returns nil: streaks has no module-owned HTTP surface.
func (m *Module) Routes() chi.Router { return nil }
