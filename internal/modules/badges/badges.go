// Package badges implements the badge module: a registered catalog of
// triggered and progress-based badge definitions, awarded idempotently
// per (user, badgeId).
package badges

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/modules"
	plerrors "github.com/R3E-Network/gamification-engine/internal/platform/errors"
	"github.com/R3E-Network/gamification-engine/internal/rules"
)

const keyPrefix = "badges"

// Trigger fires a badge award when an incoming event named Event
// satisfies Conditions.
type Trigger struct {
	Event      string
	Conditions rules.Condition
}

// Definition is a catalog entry.
type Definition struct {
	ID          string
	Name        string
	Description string
	Category    string
	Rarity      string
	Secret      bool
	Triggers    []Trigger
	// Progress maps a progress field name to its completion target.
	Progress map[string]int64
	Rewards  map[string]interface{}
}

// Module implements modules.Module for badges.
type Module struct {
	*modules.Base

	mu          sync.RWMutex
	catalog     map[string]Definition
	byEventName map[string][]string // event name -> badge IDs with a trigger on it
	unsubToken  uint64
}

// New constructs an empty badge module; badges are registered via
// RegisterBadge before or after Initialise.
func New() *Module {
	return &Module{
		Base:        modules.NewBase("badges"),
		catalog:     make(map[string]Definition),
		byEventName: make(map[string][]string),
	}
}

// RegisterBadge adds or replaces a catalog entry and rebuilds the
// event-name trigger index for it.
func (m *Module) RegisterBadge(def Definition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog[def.ID] = def
	for _, t := range def.Triggers {
		m.byEventName[t.Event] = appendUnique(m.byEventName[t.Event], def.ID)
	}
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Initialise subscribes to every event via a wildcard handler that
// dispatches to badges whose trigger is indexed under that event name.
func (m *Module) Initialise(ctx context.Context) error {
	if m.Bus() != nil {
		token, err := m.Bus().OnWildcard("*", m.handleEvent)
		if err != nil {
			return fmt.Errorf("badges: subscribe: %w", err)
		}
		m.unsubToken = token
	}
	m.Start(ctx)
	return nil
}

func (m *Module) handleEvent(ev bus.Event) error {
	m.mu.RLock()
	badgeIDs := append([]string(nil), m.byEventName[ev.Name]...)
	m.mu.RUnlock()

	ctxData, _ := ev.Data.(map[string]interface{})
	for _, id := range badgeIDs {
		m.mu.RLock()
		def, ok := m.catalog[id]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		for _, trig := range def.Triggers {
			if trig.Event != ev.Name {
				continue
			}
			passed, err := rules.EvaluateCondition(trig.Conditions, ctxData)
			if err != nil || !passed {
				continue
			}
			userID, _ := ctxData["userId"].(string)
			if userID == "" {
				continue
			}
			if _, err := m.Award(context.Background(), userID, id); err != nil {
				m.Logger().WithError(err).Warn("badge trigger award failed")
			}
		}
	}
	return nil
}

func awardedSetKey(userID string) string { return fmt.Sprintf("%s:awarded:%s", keyPrefix, userID) }

// Award performs the idempotent check-and-set for (userID, badgeID). The
// first caller to SAdd the member wins; a concurrent second call is a
// silent no-op, satisfying the single-award invariant without a
// separate lock.
func (m *Module) Award(ctx context.Context, userID, badgeID string) (bool, error) {
	m.mu.RLock()
	def, ok := m.catalog[badgeID]
	m.mu.RUnlock()
	if !ok {
		return false, plerrors.GamNotFound("badge", badgeID)
	}

	added, err := m.Storage().SAdd(ctx, awardedSetKey(userID), badgeID)
	if err != nil {
		return false, fmt.Errorf("badges: award check-and-set: %w", err)
	}
	if added == 0 {
		return false, nil // already awarded; first caller already won
	}

	if m.Bus() != nil {
		m.Bus().Emit("badge.awarded", map[string]interface{}{
			"userId": userID, "badgeId": badgeID, "name": def.Name, "category": def.Category,
		})
		for key, reward := range def.Rewards {
			m.Bus().Emit("badge.reward", map[string]interface{}{
				"userId": userID, "badgeId": badgeID, "reward": key, "value": reward,
			})
		}
	}
	return true, nil
}

// RecordProgress increments a progress field for (userID, badgeID) and
// awards the badge once every progress field has reached its target.
func (m *Module) RecordProgress(ctx context.Context, userID, badgeID, field string, delta int64) (int64, error) {
	m.mu.RLock()
	def, ok := m.catalog[badgeID]
	m.mu.RUnlock()
	if !ok {
		return 0, plerrors.GamNotFound("badge", badgeID)
	}

	value, err := m.Storage().HIncrBy(ctx, fmt.Sprintf("%s:progress:%s:%s", keyPrefix, userID, badgeID), field, delta)
	if err != nil {
		return 0, fmt.Errorf("badges: record progress: %w", err)
	}

	complete, err := m.progressComplete(ctx, userID, badgeID, def)
	if err != nil {
		return value, err
	}
	if complete {
		if _, err := m.Award(ctx, userID, badgeID); err != nil {
			return value, err
		}
	}
	return value, nil
}

func (m *Module) progressComplete(ctx context.Context, userID, badgeID string, def Definition) (bool, error) {
	if len(def.Progress) == 0 {
		return false, nil
	}
	fields, err := m.Storage().HGetAll(ctx, fmt.Sprintf("%s:progress:%s:%s", keyPrefix, userID, badgeID))
	if err != nil {
		return false, err
	}
	for field, target := range def.Progress {
		current := parseInt(fields[field])
		if current < target {
			return false, nil
		}
	}
	return true, nil
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// CompletionRate returns awarded-badge-count / non-secret-badge-count
// for userID, guarding against division by zero when the catalog has no
// non-secret badges.
func (m *Module) CompletionRate(ctx context.Context, userID string) (float64, error) {
	m.mu.RLock()
	nonSecret := 0
	for _, def := range m.catalog {
		if !def.Secret {
			nonSecret++
		}
	}
	m.mu.RUnlock()
	if nonSecret == 0 {
		return 0, nil
	}

	members, err := m.Storage().SMembers(ctx, awardedSetKey(userID))
	if err != nil {
		return 0, err
	}
	awarded := 0
	m.mu.RLock()
	for _, id := range members {
		if def, ok := m.catalog[id]; ok && !def.Secret {
			awarded++
		}
	}
	m.mu.RUnlock()

	return float64(awarded) / float64(nonSecret), nil
}

// GetUserStats satisfies modules.Module.
func (m *Module) GetUserStats(ctx context.Context, userID string) (map[string]interface{}, error) {
	badgeIDs, err := m.Storage().SMembers(ctx, awardedSetKey(userID))
	if err != nil {
		return nil, err
	}
	rate, err := m.CompletionRate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"badges": badgeIDs, "completionRate": rate}, nil
}

// ResetUser clears a user's badge awards and all progress counters
// tracked against the current catalog.
func (m *Module) ResetUser(ctx context.Context, userID string) error {
	if _, err := m.Storage().Delete(ctx, awardedSetKey(userID)); err != nil {
		return err
	}
	m.mu.RLock()
	ids := make([]string, 0, len(m.catalog))
	for id := range m.catalog {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		if _, err := m.Storage().Delete(ctx, fmt.Sprintf("%s:progress:%s:%s", keyPrefix, userID, id)); err != nil {
			return err
		}
	}
	return nil
}

// Routes returns nil: badges has no module-owned HTTP surface.
func (m *Module) Routes() chi.Router { return nil }
