package leaderboard

import (
	"context"
	"math"
	"testing"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/modules"
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

func TestUpdateAndGetLeaderboardComputesRank(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	if _, err := m.Update(ctx, "u1", "wins", 10, UpdateOptions{Period: modules.PeriodAll}); err != nil {
		t.Fatalf("Update u1: %v", err)
	}
	if _, err := m.Update(ctx, "u2", "wins", 20, UpdateOptions{Period: modules.PeriodAll}); err != nil {
		t.Fatalf("Update u2: %v", err)
	}

	entries, err := m.GetLeaderboard(ctx, "wins", QueryOptions{Period: modules.PeriodAll, Limit: 10})
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(entries) != 2 || entries[0].UserID != "u2" || entries[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard order: %+v", entries)
	}
	if entries[1].UserID != "u1" || entries[1].Rank != 2 {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestUpdateIncrementModeAccumulates(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	if _, err := m.Update(ctx, "u1", "score", 5, UpdateOptions{Period: modules.PeriodAll, Increment: true}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	entry, err := m.Update(ctx, "u1", "score", 3, UpdateOptions{Period: modules.PeriodAll, Increment: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if entry.Score != 8 {
		t.Fatalf("Score = %v, want 8", entry.Score)
	}
}

func TestUpdateRejectsNonFiniteScore(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	if _, err := m.Update(ctx, "u1", "score", math.NaN(), UpdateOptions{}); err == nil {
		t.Fatal("expected NaN score to be rejected")
	}
	if _, err := m.Update(ctx, "u1", "score", math.Inf(1), UpdateOptions{}); err == nil {
		t.Fatal("expected +Inf score to be rejected")
	}
}

func TestGetLeaderboardRejectsNegativeLimitOffset(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	if _, err := m.GetLeaderboard(ctx, "wins", QueryOptions{Limit: -1}); err == nil {
		t.Fatal("expected negative limit to be rejected")
	}
	if _, err := m.GetLeaderboard(ctx, "wins", QueryOptions{Offset: -1}); err == nil {
		t.Fatal("expected negative offset to be rejected")
	}
}

func TestGetLeaderboardIncludesUserOutsidePage(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	for i, uid := range []string{"u1", "u2", "u3", "u4"} {
		if _, err := m.Update(ctx, uid, "wins", float64(10-i), UpdateOptions{Period: modules.PeriodAll}); err != nil {
			t.Fatalf("Update %s: %v", uid, err)
		}
	}

	entries, err := m.GetLeaderboard(ctx, "wins", QueryOptions{Period: modules.PeriodAll, Limit: 2, IncludeUser: "u4"})
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected page of 2 plus appended requesting user, got %d entries: %+v", len(entries), entries)
	}
	last := entries[len(entries)-1]
	if last.UserID != "u4" || last.Rank != 4 {
		t.Fatalf("expected u4 appended at rank 4, got %+v", last)
	}
}

func TestArchiveFinishedPeriodsNormalizesEntries(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()
	if _, err := m.Update(ctx, "u1", "wins", 5, UpdateOptions{Period: modules.PeriodDaily}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := m.archiveFinishedPeriods(ctx); err != nil {
		t.Fatalf("archiveFinishedPeriods: %v", err)
	}
}
