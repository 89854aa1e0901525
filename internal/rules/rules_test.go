package rules

import (
	"testing"
	"time"
)

func TestAllConditionRequiresEveryLeaf(t *testing.T) {
	e := New(0)
	e.AddRule(Rule{
		Name:    "weekend_bonus",
		Enabled: true,
		Conditions: Condition{
			All: []Condition{
				{Field: "day", Operator: "in", Value: []interface{}{"sat", "sun"}},
				{Field: "amount", Operator: ">", Value: 0.0},
			},
		},
		Actions: []string{"double"},
	})

	res, err := e.EvaluateOne(map[string]interface{}{"day": "sat", "amount": 10.0}, "weekend_bonus")
	if err != nil {
		t.Fatalf("EvaluateOne: %v", err)
	}
	if !res.Passed {
		t.Fatal("expected rule to pass")
	}

	res, err = e.EvaluateOne(map[string]interface{}{"day": "mon", "amount": 10.0}, "weekend_bonus")
	if err != nil {
		t.Fatalf("EvaluateOne: %v", err)
	}
	if res.Passed {
		t.Fatal("expected rule to fail on a weekday")
	}
}

func TestAnyConditionPassesOnFirstMatch(t *testing.T) {
	e := New(0)
	e.AddRule(Rule{
		Name:    "vip",
		Enabled: true,
		Conditions: Condition{
			Any: []Condition{
				{Field: "tier", Operator: "==", Value: "gold"},
				{Field: "tier", Operator: "==", Value: "platinum"},
			},
		},
	})
	res, _ := e.EvaluateOne(map[string]interface{}{"tier": "platinum"}, "vip")
	if !res.Passed {
		t.Fatal("expected any() to pass on second branch")
	}
}

func TestNotConditionInverts(t *testing.T) {
	e := New(0)
	e.AddRule(Rule{
		Name:    "not_banned",
		Enabled: true,
		Conditions: Condition{
			Not: &Condition{Field: "banned", Operator: "==", Value: true},
		},
	})
	res, _ := e.EvaluateOne(map[string]interface{}{"banned": true}, "not_banned")
	if res.Passed {
		t.Fatal("not(banned==true) should fail when banned is true")
	}
}

func TestDollarPrefixReinterpretsValueAsFieldPath(t *testing.T) {
	e := New(0)
	e.AddRule(Rule{
		Name:    "equal_fields",
		Enabled: true,
		Conditions: Condition{
			Field: "a.x", Operator: "==", Value: "$b.y",
		},
	})
	ctx := map[string]interface{}{
		"a": map[string]interface{}{"x": 5.0},
		"b": map[string]interface{}{"y": 5.0},
	}
	res, _ := e.EvaluateOne(ctx, "equal_fields")
	if !res.Passed {
		t.Fatal("expected a.x == $b.y to pass when both resolve to 5")
	}
}

func TestBlockedPathSegmentsResolveToNotFound(t *testing.T) {
	e := New(0)
	e.AddRule(Rule{
		Name:    "proto_guard",
		Enabled: true,
		Conditions: Condition{
			Field: "a.__proto__.polluted", Operator: "==", Value: nil,
		},
	})
	ctx := map[string]interface{}{"a": map[string]interface{}{}}
	res, _ := e.EvaluateOne(ctx, "proto_guard")
	if !res.Passed {
		t.Fatal("a.__proto__.polluted should resolve to nil, matching value nil")
	}
}

func TestMatchesRejectsOverlongPattern(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "a"
	}
	if safeMatch(long, "aaa") {
		t.Fatal("pattern over 100 characters must evaluate to false")
	}
}

func TestMatchesRejectsReDoSShape(t *testing.T) {
	if safeMatch("(a+)+$", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa!") {
		t.Fatal("nested-quantifier pattern must be rejected, not evaluated")
	}
}

func TestMatchesAcceptsOrdinaryPattern(t *testing.T) {
	if !safeMatch("^user-[0-9]+$", "user-42") {
		t.Fatal("expected an ordinary anchored pattern to match")
	}
}

func TestRandomIntNormalizesInvertedBounds(t *testing.T) {
	v, err := applyFunction("randomInt", 10.0, []interface{}{1.0})
	if err != nil {
		t.Fatalf("applyFunction: %v", err)
	}
	n := v.(int64)
	if n < 1 || n > 10 {
		t.Fatalf("randomInt(10,1) = %d, want in [1,10]", n)
	}
}

func TestStopOnMatchHaltsBatchEvaluation(t *testing.T) {
	e := New(0)
	e.AddRule(Rule{Name: "first", Enabled: true, Priority: 10, StopOnMatch: true,
		Conditions: Condition{Field: "x", Operator: "==", Value: 1.0}})
	e.AddRule(Rule{Name: "second", Enabled: true, Priority: 5,
		Conditions: Condition{Field: "x", Operator: "==", Value: 1.0}})

	results, err := e.Evaluate(map[string]interface{}{"x": 1.0})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(results) != 1 || results[0].RuleName != "first" {
		t.Fatalf("expected evaluation to stop after first matching rule, got %+v", results)
	}
}

func TestDisabledRulesAreSkippedInBatch(t *testing.T) {
	e := New(0)
	e.AddRule(Rule{Name: "off", Enabled: false, Conditions: Condition{Field: "x", Operator: "==", Value: 1.0}})
	results, _ := e.Evaluate(map[string]interface{}{"x": 1.0})
	if len(results) != 0 {
		t.Fatalf("expected disabled rule to be excluded, got %+v", results)
	}
}

func TestCacheInvalidatesOnRuleMutation(t *testing.T) {
	e := New(time.Minute)
	e.AddRule(Rule{Name: "r", Enabled: true, Conditions: Condition{Field: "x", Operator: "==", Value: 1.0}})
	ctx := map[string]interface{}{"x": 1.0}
	if _, err := e.EvaluateOne(ctx, "r"); err != nil {
		t.Fatalf("EvaluateOne: %v", err)
	}
	e.AddRule(Rule{Name: "r", Enabled: true, Conditions: Condition{Field: "x", Operator: "==", Value: 2.0}})
	res, err := e.EvaluateOne(ctx, "r")
	if err != nil {
		t.Fatalf("EvaluateOne: %v", err)
	}
	if res.Passed {
		t.Fatal("stale cached result served after rule mutation; cache was not invalidated")
	}
}

func TestBetweenNormalizesInvertedBounds(t *testing.T) {
	e := New(0)
	e.AddRule(Rule{Name: "r", Enabled: true,
		Conditions: Condition{Field: "x", Operator: "between", Value: []interface{}{10.0, 1.0}}})
	res, _ := e.EvaluateOne(map[string]interface{}{"x": 5.0}, "r")
	if !res.Passed {
		t.Fatal("between with inverted bounds [10,1] should still accept 5")
	}
}
