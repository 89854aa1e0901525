package quests

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/modules"
	"github.com/R3E-Network/gamification-engine/internal/rules"
	"github.com/R3E-Network/gamification-engine/internal/storage/memory"
)

func newTestModule(t *testing.T, cfg Config) *Module {
	t.Helper()
	m := New(cfg)
	m.SetContext(modules.Context{Storage: memory.New(), Bus: bus.New()})
	if err := m.Initialise(context.Background()); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	return m
}

func TestAssignQuestEnforcesMaxActiveQuests(t *testing.T) {
	m := newTestModule(t, Config{MaxActiveQuests: 1})
	m.RegisterQuest(Definition{ID: "q1", Name: "Q1"})
	m.RegisterQuest(Definition{ID: "q2", Name: "Q2"})
	ctx := context.Background()

	if _, err := m.AssignQuest(ctx, "u1", "q1"); err != nil {
		t.Fatalf("AssignQuest q1: %v", err)
	}
	if _, err := m.AssignQuest(ctx, "u1", "q2"); err == nil {
		t.Fatal("expected max active quests limit to reject second assignment")
	}
}

func TestAssignQuestEnforcesDependencies(t *testing.T) {
	m := newTestModule(t, Config{})
	m.RegisterQuest(Definition{ID: "prereq", Name: "Prereq"})
	m.RegisterQuest(Definition{ID: "main", Name: "Main", Dependencies: []string{"prereq"}})
	ctx := context.Background()

	if _, err := m.AssignQuest(ctx, "u1", "main"); err == nil {
		t.Fatal("expected dependency check to reject assignment")
	}
}

func TestEventDrivenProgressIncrementsObjectiveOnMatchingCondition(t *testing.T) {
	m := newTestModule(t, Config{})
	m.RegisterQuest(Definition{
		ID:   "slay5",
		Name: "Slay 5",
		Objectives: []Objective{{
			ID: "kills", Target: 2, Event: "monster.killed",
			Conditions: rules.Condition{Field: "difficulty", Operator: "==", Value: "hard"},
		}},
	})
	ctx := context.Background()
	if _, err := m.AssignQuest(ctx, "u1", "slay5"); err != nil {
		t.Fatalf("AssignQuest: %v", err)
	}

	m.Bus().Emit("monster.killed", map[string]interface{}{"userId": "u1", "difficulty": "easy"})
	assignment, exists, err := m.loadAssignment(ctx, "u1", "slay5")
	if err != nil || !exists {
		t.Fatalf("loadAssignment: %v exists=%v", err, exists)
	}
	if assignment.Progress["kills"] != 0 {
		t.Fatalf("expected no progress from non-matching condition, got %d", assignment.Progress["kills"])
	}

	m.Bus().Emit("monster.killed", map[string]interface{}{"userId": "u1", "difficulty": "hard"})
	assignment, _, err = m.loadAssignment(ctx, "u1", "slay5")
	if err != nil {
		t.Fatalf("loadAssignment: %v", err)
	}
	if assignment.Progress["kills"] != 1 {
		t.Fatalf("kills = %d, want 1", assignment.Progress["kills"])
	}
}

func TestCompletionFiresExactlyOnceWhenAllObjectivesMet(t *testing.T) {
	m := newTestModule(t, Config{})
	m.RegisterQuest(Definition{
		ID:   "slay1",
		Name: "Slay 1",
		Objectives: []Objective{{
			ID: "kills", Target: 1, Event: "monster.killed",
			Conditions: rules.Condition{Field: "difficulty", Operator: "==", Value: "hard"},
		}},
	})
	ctx := context.Background()
	if _, err := m.AssignQuest(ctx, "u1", "slay1"); err != nil {
		t.Fatalf("AssignQuest: %v", err)
	}

	completions := 0
	m.Bus().On("quest.completed", func(ev bus.Event) error { completions++; return nil })

	m.Bus().Emit("monster.killed", map[string]interface{}{"userId": "u1", "difficulty": "hard"})

	if completions != 1 {
		t.Fatalf("quest.completed fired %d times, want 1", completions)
	}
	assignment, exists, err := m.loadAssignment(ctx, "u1", "slay1")
	if err != nil || !exists {
		t.Fatalf("loadAssignment: %v exists=%v", err, exists)
	}
	if assignment.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", assignment.Status)
	}
}

func TestMaxCompletionsBlocksReassignmentAfterLimit(t *testing.T) {
	m := newTestModule(t, Config{})
	m.RegisterQuest(Definition{
		ID: "daily1", Name: "Daily", MaxCompletions: 1,
		Objectives: []Objective{{ID: "login", Target: 1, Event: "user.login"}},
	})
	ctx := context.Background()
	if _, err := m.AssignQuest(ctx, "u1", "daily1"); err != nil {
		t.Fatalf("AssignQuest: %v", err)
	}
	m.Bus().Emit("user.login", map[string]interface{}{"userId": "u1"})

	if _, err := m.AssignQuest(ctx, "u1", "daily1"); err == nil {
		t.Fatal("expected maxCompletions to block reassignment")
	}
}

func TestScanExpiredFlipsPastDeadlineAssignments(t *testing.T) {
	m := newTestModule(t, Config{})
	m.RegisterQuest(Definition{ID: "timed", Name: "Timed", TimeLimit: time.Millisecond})
	ctx := context.Background()
	if _, err := m.AssignQuest(ctx, "u1", "timed"); err != nil {
		t.Fatalf("AssignQuest: %v", err)
	}
	time.Sleep(2 * time.Millisecond)

	if err := m.scanExpired(ctx); err != nil {
		t.Fatalf("scanExpired: %v", err)
	}
	assignment, exists, err := m.loadAssignment(ctx, "u1", "timed")
	if err != nil || !exists {
		t.Fatalf("loadAssignment: %v exists=%v", err, exists)
	}
	if assignment.Status != StatusExpired {
		t.Fatalf("status = %v, want expired", assignment.Status)
	}
}

func TestChainCompletionEmittedOnLastElement(t *testing.T) {
	m := newTestModule(t, Config{})
	m.RegisterQuest(Definition{
		ID: "chain1", Name: "Chain 1", ChainID: "saga", ChainOrder: 0,
		Objectives: []Objective{{ID: "step", Target: 1, Event: "step.done"}},
	})
	m.RegisterQuest(Definition{
		ID: "chain2", Name: "Chain 2", ChainID: "saga", ChainOrder: 1,
		Objectives: []Objective{{ID: "step", Target: 1, Event: "step.done"}},
	})
	ctx := context.Background()

	var chainCompleted bool
	m.Bus().On("quest.chain.completed", func(ev bus.Event) error { chainCompleted = true; return nil })

	if _, err := m.AssignQuest(ctx, "u1", "chain1"); err != nil {
		t.Fatalf("AssignQuest chain1: %v", err)
	}
	m.Bus().Emit("step.done", map[string]interface{}{"userId": "u1"})
	if chainCompleted {
		t.Fatal("chain should not complete after only the first element")
	}

	if _, err := m.AssignQuest(ctx, "u1", "chain2"); err != nil {
		t.Fatalf("AssignQuest chain2: %v", err)
	}
	m.Bus().Emit("step.done", map[string]interface{}{"userId": "u1"})
	if !chainCompleted {
		t.Fatal("expected chain completion after last element completes")
	}
}
