package badges

import (
	"context"
	"testing"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/modules"
	"github.com/R3E-Network/gamification-engine/internal/rules"
	"github.com/R3E-Network/gamification-engine/internal/storage/memory"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	m := New()
	m.SetContext(modules.Context{Storage: memory.New(), Bus: bus.New()})
	if err := m.Initialise(context.Background()); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	return m
}

func TestAwardIsIdempotent(t *testing.T) {
	m := newTestModule(t)
	m.RegisterBadge(Definition{ID: "first_win", Name: "First Win"})
	ctx := context.Background()

	awarded, err := m.Award(ctx, "u1", "first_win")
	if err != nil {
		t.Fatalf("Award: %v", err)
	}
	if !awarded {
		t.Fatal("expected first award to succeed")
	}

	awarded, err = m.Award(ctx, "u1", "first_win")
	if err != nil {
		t.Fatalf("Award (second): %v", err)
	}
	if awarded {
		t.Fatal("expected second award to be a no-op")
	}
}

func TestTriggeredBadgeAwardsOnMatchingEvent(t *testing.T) {
	m := newTestModule(t)
	m.RegisterBadge(Definition{
		ID:   "big_spender",
		Name: "Big Spender",
		Triggers: []Trigger{{
			Event: "purchase.completed",
			Conditions: rules.Condition{
				Field: "amount", Operator: ">=", Value: 100.0,
			},
		}},
	})

	var awardedEvents []string
	m.Bus().On("badge.awarded", func(ev bus.Event) error {
		data := ev.Data.(map[string]interface{})
		awardedEvents = append(awardedEvents, data["badgeId"].(string))
		return nil
	})

	m.Bus().Emit("purchase.completed", map[string]interface{}{
		"userId": "u1", "amount": 150.0,
	})

	if len(awardedEvents) != 1 || awardedEvents[0] != "big_spender" {
		t.Fatalf("expected big_spender awarded, got %v", awardedEvents)
	}
}

func TestTriggeredBadgeDoesNotAwardWhenConditionFails(t *testing.T) {
	m := newTestModule(t)
	m.RegisterBadge(Definition{
		ID:   "big_spender",
		Name: "Big Spender",
		Triggers: []Trigger{{
			Event:      "purchase.completed",
			Conditions: rules.Condition{Field: "amount", Operator: ">=", Value: 100.0},
		}},
	})

	m.Bus().Emit("purchase.completed", map[string]interface{}{"userId": "u1", "amount": 10.0})

	rate, err := m.CompletionRate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CompletionRate: %v", err)
	}
	if rate != 0 {
		t.Fatalf("CompletionRate = %v, want 0", rate)
	}
}

func TestProgressBasedBadgeAwardsOnceTargetsReached(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	m.RegisterBadge(Definition{
		ID:       "marathoner",
		Name:     "Marathoner",
		Progress: map[string]int64{"distance_km": 42},
	})

	if _, err := m.RecordProgress(ctx, "u1", "marathoner", "distance_km", 20); err != nil {
		t.Fatalf("RecordProgress: %v", err)
	}
	awarded, err := m.Storage().SIsMember(ctx, awardedSetKey("u1"), "marathoner")
	if err != nil {
		t.Fatalf("SIsMember: %v", err)
	}
	if awarded {
		t.Fatal("badge should not be awarded before target is reached")
	}

	if _, err := m.RecordProgress(ctx, "u1", "marathoner", "distance_km", 25); err != nil {
		t.Fatalf("RecordProgress: %v", err)
	}
	awarded, err = m.Storage().SIsMember(ctx, awardedSetKey("u1"), "marathoner")
	if err != nil {
		t.Fatalf("SIsMember: %v", err)
	}
	if !awarded {
		t.Fatal("badge should be awarded once distance_km >= 42")
	}
}

func TestCompletionRateGuardsAgainstDivisionByZero(t *testing.T) {
	m := newTestModule(t)
	rate, err := m.CompletionRate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CompletionRate: %v", err)
	}
	if rate != 0 {
		t.Fatalf("CompletionRate with empty catalog = %v, want 0", rate)
	}
}

func TestCompletionRateExcludesSecretBadges(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	m.RegisterBadge(Definition{ID: "visible", Name: "Visible"})
	m.RegisterBadge(Definition{ID: "hidden", Name: "Hidden", Secret: true})

	if _, err := m.Award(ctx, "u1", "visible"); err != nil {
		t.Fatalf("Award: %v", err)
	}
	if _, err := m.Award(ctx, "u1", "hidden"); err != nil {
		t.Fatalf("Award: %v", err)
	}

	rate, err := m.CompletionRate(ctx, "u1")
	if err != nil {
		t.Fatalf("CompletionRate: %v", err)
	}
	if rate != 1.0 {
		t.Fatalf("CompletionRate = %v, want 1.0 (secret badge excluded from denominator)", rate)
	}
}

func TestResetUserClearsAwardsAndProgress(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	m.RegisterBadge(Definition{ID: "marathoner", Name: "Marathoner", Progress: map[string]int64{"distance_km": 10}})
	if _, err := m.RecordProgress(ctx, "u1", "marathoner", "distance_km", 10); err != nil {
		t.Fatalf("RecordProgress: %v", err)
	}

	if err := m.ResetUser(ctx, "u1"); err != nil {
		t.Fatalf("ResetUser: %v", err)
	}

	stats, err := m.GetUserStats(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserStats: %v", err)
	}
	badgeIDs := stats["badges"].([]string)
	if len(badgeIDs) != 0 {
		t.Fatalf("expected no badges after reset, got %v", badgeIDs)
	}
}
