package points

import (
	"context"
	"testing"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/modules"
	"github.com/R3E-Network/gamification-engine/internal/rules"
	"github.com/R3E-Network/gamification-engine/internal/storage/memory"
)

func newTestModule(t *testing.T, cfg Config) *Module {
	t.Helper()
	st := memory.New()
	m := New(cfg)
	m.SetContext(modules.Context{Storage: st, Bus: bus.New()})
	if err := m.Initialise(context.Background()); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	return m
}

// newTestModuleWithRules is newTestModule plus a rule engine seeded with a
// weekend-bonus rule, so tests can exercise Award's multiplier path.
func newTestModuleWithRules(t *testing.T, cfg Config) *Module {
	t.Helper()
	st := memory.New()
	re := rules.New(0)
	re.AddRule(rules.Rule{
		Name:    "weekend-bonus",
		Enabled: true,
		Conditions: rules.Condition{
			Field: "reason", Operator: "==", Value: "weekend",
		},
		Actions: []string{"multiplier:1.5"},
	})
	m := New(cfg)
	m.SetContext(modules.Context{Storage: st, Bus: bus.New(), Rules: re})
	if err := m.Initialise(context.Background()); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	return m
}

func TestAwardIncrementsTotalAndPeriods(t *testing.T) {
	m := newTestModule(t, Config{})
	res, err := m.Award(context.Background(), "u1", 100, "test")
	if err != nil {
		t.Fatalf("Award: %v", err)
	}
	if res.Applied != 100 || res.Total != 100 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.PeriodTotals["daily"] != 100 {
		t.Fatalf("daily total = %d, want 100", res.PeriodTotals["daily"])
	}
}

func TestAwardRejectsNonPositiveAmount(t *testing.T) {
	m := newTestModule(t, Config{})
	if _, err := m.Award(context.Background(), "u1", 0, "test"); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestDeductAppliesMinimumFloorBeforeLeaderboardWrite(t *testing.T) {
	m := newTestModule(t, Config{MinimumFloor: 0})
	ctx := context.Background()
	if _, err := m.Award(ctx, "u1", 50, "seed"); err != nil {
		t.Fatalf("Award: %v", err)
	}
	res, err := m.Deduct(ctx, "u1", 100, "penalty")
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if res.Total != 0 {
		t.Fatalf("Total = %d, want 0 (floor applied)", res.Total)
	}
	lb, err := m.GetLeaderboard(ctx, LeaderboardQuery{Period: modules.PeriodAll, Limit: 10})
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(lb) != 1 || lb[0].Points != 0 {
		t.Fatalf("leaderboard should reflect the floored value, got %+v", lb)
	}
}

func TestGetLeaderboardUsesPeriodSpecificValue(t *testing.T) {
	m := newTestModule(t, Config{})
	ctx := context.Background()
	if _, err := m.Award(ctx, "u1", 10, "a"); err != nil {
		t.Fatalf("Award: %v", err)
	}
	if _, err := m.Award(ctx, "u1", 20, "b"); err != nil {
		t.Fatalf("Award: %v", err)
	}
	lb, err := m.GetLeaderboard(ctx, LeaderboardQuery{Period: modules.PeriodDaily, Limit: 10})
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(lb) != 1 || lb[0].Points != 30 {
		t.Fatalf("expected daily leaderboard to show 30, got %+v", lb)
	}
}

func TestDailyCeilingRejectsWhenCapacityExhausted(t *testing.T) {
	m := newTestModule(t, Config{DailyCeiling: 50})
	ctx := context.Background()
	if _, err := m.Award(ctx, "u1", 50, "a"); err != nil {
		t.Fatalf("Award: %v", err)
	}
	if _, err := m.Award(ctx, "u1", 10, "b"); err == nil {
		t.Fatal("expected award to be rejected once daily capacity is exhausted")
	}
}

// TestDailyCeilingTruncatesOverLimitAward reproduces spec scenario 1
// verbatim: daily ceiling 1000; Award(u1, 500) then Award(u1, 700,
// "weekend") with a 1.5x weekend multiplier truncates rather than
// rejects, Total reaches 1500, and the daily leaderboard shows 1000.
func TestDailyCeilingTruncatesOverLimitAward(t *testing.T) {
	m := newTestModuleWithRules(t, Config{DailyCeiling: 1000})
	ctx := context.Background()

	first, err := m.Award(ctx, "u1", 500, "base")
	if err != nil {
		t.Fatalf("first Award: %v", err)
	}
	if first.Applied != 500 || first.Total != 500 {
		t.Fatalf("first award = %+v, want applied=500 total=500", first)
	}

	second, err := m.Award(ctx, "u1", 700, "weekend")
	if err != nil {
		t.Fatalf("second Award: %v", err)
	}
	if second.Applied != 1000 {
		t.Fatalf("second Applied = %d, want 1000 (truncated)", second.Applied)
	}
	if second.Total != 1500 {
		t.Fatalf("Total = %d, want 1500", second.Total)
	}

	lb, err := m.GetLeaderboard(ctx, LeaderboardQuery{Period: modules.PeriodDaily, Limit: 10})
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(lb) != 1 || lb[0].Points != 1000 || lb[0].Rank != 1 {
		t.Fatalf("daily leaderboard = %+v, want [{u1 1000 1}]", lb)
	}
}

func TestResetUserClearsBalance(t *testing.T) {
	m := newTestModule(t, Config{})
	ctx := context.Background()
	if _, err := m.Award(ctx, "u1", 100, "a"); err != nil {
		t.Fatalf("Award: %v", err)
	}
	if err := m.ResetUser(ctx, "u1"); err != nil {
		t.Fatalf("ResetUser: %v", err)
	}
	bal, err := m.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal != 0 {
		t.Fatalf("balance after reset = %d, want 0", bal)
	}
}

func TestAwardEmitsPointsAwardedEvent(t *testing.T) {
	st := newTestModule(t, Config{})
	var gotAmount float64
	st.Bus().On("points.awarded", func(ev bus.Event) error {
		data := ev.Data.(map[string]interface{})
		gotAmount = float64(data["applied"].(int64))
		return nil
	})
	if _, err := st.Award(context.Background(), "u1", 25, "x"); err != nil {
		t.Fatalf("Award: %v", err)
	}
	if gotAmount != 25 {
		t.Fatalf("emitted applied amount = %v, want 25", gotAmount)
	}
}
