// Package rules implements a hand-written, tree-walking predicate
// evaluator over plain context maps. It never evaluates or compiles
// user-supplied code; the operator and function sets are closed.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/gamification-engine/internal/platform/cache"
)

// Condition is one node of a condition tree: either a boolean
// combinator (All/Any/Not) or a leaf comparison.
type Condition struct {
	All  []Condition `json:"all,omitempty"`
	Any  []Condition `json:"any,omitempty"`
	Not  *Condition  `json:"not,omitempty"`

	Field    string      `json:"field,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`
	Function string      `json:"function,omitempty"`
}

func (c Condition) isLeaf() bool {
	return len(c.All) == 0 && len(c.Any) == 0 && c.Not == nil
}

// Rule is a named, prioritized predicate with optional actions to carry
// through to the caller on a match.
type Rule struct {
	Name        string
	Conditions  Condition
	Actions     []string
	Enabled     bool
	Priority    int
	StopOnMatch bool
}

// Result is the outcome of evaluating a single rule.
type Result struct {
	RuleName  string
	Passed    bool
	Actions   []string
	Error     error
	Timestamp time.Time
}

// Engine holds a registry of rules plus the operator/function sets
// available to conditions, and an optional result cache.
type Engine struct {
	mu    sync.RWMutex
	rules map[string]Rule
	order []string

	cacheTTL time.Duration
	cache    *cache.TTLCache
}

// New creates an empty Engine. cacheTTL of 0 disables result caching.
func New(cacheTTL time.Duration) *Engine {
	e := &Engine{
		rules:    make(map[string]Rule),
		cacheTTL: cacheTTL,
	}
	if cacheTTL > 0 {
		e.cache = cache.NewTTLCache(cacheTTL)
	}
	return e
}

// AddRule registers or replaces a rule and invalidates the cache.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[r.Name]; !exists {
		e.order = append(e.order, r.Name)
	}
	e.rules[r.Name] = r
	e.invalidateLocked()
}

// RemoveRule deletes a rule by name and invalidates the cache.
func (e *Engine) RemoveRule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[name]; !exists {
		return
	}
	delete(e.rules, name)
	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.invalidateLocked()
}

// Rules returns the registered rules in addition order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, 0, len(e.order))
	for _, n := range e.order {
		out = append(out, e.rules[n])
	}
	return out
}

func (e *Engine) invalidateLocked() {
	if e.cache != nil {
		e.cache.InvalidateAll()
	}
}

// Evaluate runs every enabled rule in descending priority order, stopping
// early at the first pass whose rule has StopOnMatch set. EvaluateOne runs
// a single named rule.
func (e *Engine) Evaluate(ctx map[string]interface{}) ([]Result, error) {
	return e.evaluate(ctx, "")
}

// EvaluateOne runs a single named rule and returns its result.
func (e *Engine) EvaluateOne(ctx map[string]interface{}, ruleName string) (Result, error) {
	results, err := e.evaluate(ctx, ruleName)
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Result{}, fmt.Errorf("rules: rule %q not found", ruleName)
	}
	return results[0], nil
}

func (e *Engine) evaluate(ctx map[string]interface{}, ruleName string) ([]Result, error) {
	e.mu.RLock()
	var candidates []Rule
	if ruleName != "" {
		r, ok := e.rules[ruleName]
		if !ok {
			e.mu.RUnlock()
			return nil, fmt.Errorf("rules: rule %q not found", ruleName)
		}
		candidates = []Rule{r}
	} else {
		for _, n := range e.order {
			r := e.rules[n]
			if r.Enabled {
				candidates = append(candidates, r)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Priority > candidates[j].Priority
		})
	}
	e.mu.RUnlock()

	var hashedCtx string
	if e.cacheTTL > 0 {
		hashedCtx = hashContext(ctx)
	}

	results := make([]Result, 0, len(candidates))
	for _, r := range candidates {
		res, err := e.evaluateRule(r, ctx, hashedCtx)
		results = append(results, res)
		if err != nil {
			return results, err
		}
		if r.StopOnMatch && res.Passed {
			break
		}
	}
	return results, nil
}

func (e *Engine) evaluateRule(r Rule, ctx map[string]interface{}, hashedCtx string) (Result, error) {
	now := time.Now()
	cacheKey := ""

	if e.cacheTTL > 0 {
		cacheKey = r.Name + "|" + hashedCtx
		if cached, ok := e.cache.Get(context.Background(), cacheKey); ok {
			if result, ok := cached.(Result); ok {
				return result, nil
			}
		}
	}

	passed, evalErr := evaluateCondition(r.Conditions, ctx)
	result := Result{
		RuleName:  r.Name,
		Passed:    passed,
		Timestamp: now,
	}
	if evalErr != nil {
		result.Error = evalErr
	}
	if passed {
		result.Actions = r.Actions
	}

	if e.cacheTTL > 0 {
		e.cache.Set(context.Background(), cacheKey, result)
	}
	return result, nil
}

// EvaluateCondition runs a standalone condition tree against ctx without
// registering it as a named rule — used by callers (badge triggers,
// quest objective conditions) that evaluate ad hoc predicates sourced
// from their own catalogs rather than the Engine's rule registry.
func EvaluateCondition(c Condition, ctx map[string]interface{}) (bool, error) {
	return evaluateCondition(c, ctx)
}

func evaluateCondition(c Condition, ctx map[string]interface{}) (bool, error) {
	switch {
	case len(c.All) > 0:
		for _, sub := range c.All {
			ok, err := evaluateCondition(sub, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case len(c.Any) > 0:
		for _, sub := range c.Any {
			ok, err := evaluateCondition(sub, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case c.Not != nil:
		ok, err := evaluateCondition(*c.Not, ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return evaluateLeaf(c, ctx)
	}
}
