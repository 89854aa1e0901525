package bus

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEmitDispatchesExactAndWildcardHandlers(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var exactHit, wildcardHit bool

	b.On("points.awarded", func(ev Event) error {
		mu.Lock()
		exactHit = true
		mu.Unlock()
		return nil
	})
	if _, err := b.OnWildcard("points.*", func(ev Event) error {
		mu.Lock()
		wildcardHit = true
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("OnWildcard: %v", err)
	}

	res, err := b.Emit("points.awarded", map[string]int{"amount": 10})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if res.ListenerCount != 2 {
		t.Fatalf("ListenerCount = %d, want 2", res.ListenerCount)
	}
	mu.Lock()
	defer mu.Unlock()
	if !exactHit || !wildcardHit {
		t.Fatalf("exactHit=%v wildcardHit=%v, want both true", exactHit, wildcardHit)
	}
}

func TestEmitRejectsEmptyName(t *testing.T) {
	b := New()
	if _, err := b.Emit("", nil); err == nil {
		t.Fatal("Emit(\"\") should error")
	}
}

func TestEmitIsolatesHandlerErrorsAndPanics(t *testing.T) {
	b := New()
	b.On("x", func(ev Event) error { return errors.New("boom") })
	b.On("x", func(ev Event) error { panic("kaboom") })
	var ran bool
	b.On("x", func(ev Event) error { ran = true; return nil })

	res, err := b.Emit("x", nil)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2", len(res.Errors))
	}
	if !ran {
		t.Fatal("third handler should still have run despite earlier failures")
	}
}

func TestWildcardSingleStarMatchesEverything(t *testing.T) {
	b := New()
	var count int
	var mu sync.Mutex
	b.OnWildcard("*", func(ev Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	b.Emit("a.b.c", nil)
	b.Emit("anything", nil)
	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestWildcardEscapesRegexMetacharacters(t *testing.T) {
	b := New()
	var hit bool
	b.OnWildcard("points.user+1", func(ev Event) error { hit = true; return nil })
	b.Emit("points.user1", nil) // would match if '+' were treated as regex quantifier
	if hit {
		t.Fatal("'+' in a wildcard pattern must be treated literally, not as a regex quantifier")
	}
}

func TestOffRemovesExactSubscription(t *testing.T) {
	b := New()
	token := b.On("x", func(ev Event) error { return nil })
	b.Off("x", token)
	res, _ := b.Emit("x", nil)
	if res.ListenerCount != 0 {
		t.Fatalf("ListenerCount = %d, want 0 after Off", res.ListenerCount)
	}
}

func TestHistoryIsBoundedAndOrdered(t *testing.T) {
	b := New(WithHistory(3))
	for i := 0; i < 5; i++ {
		b.Emit("tick", i)
	}
	hist := b.GetHistory("tick", 0)
	if len(hist) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(hist))
	}
	if hist[0].Data.(int) != 2 || hist[2].Data.(int) != 4 {
		t.Fatalf("history not in expected ring order: %+v", hist)
	}
}

func TestClearHistoryRemovesRetainedEvents(t *testing.T) {
	b := New(WithHistory(10))
	b.Emit("tick", 1)
	b.ClearHistory("tick")
	if got := b.GetHistory("tick", 0); len(got) != 0 {
		t.Fatalf("GetHistory after ClearHistory = %v, want empty", got)
	}
}

func TestDestroyTearsDownSubscriptionsAndHistory(t *testing.T) {
	b := New(WithHistory(10))
	b.On("x", func(ev Event) error { return nil })
	b.Emit("x", nil)
	b.Destroy()
	res, _ := b.Emit("x", nil)
	if res.ListenerCount != 0 {
		t.Fatalf("ListenerCount after Destroy = %d, want 0", res.ListenerCount)
	}
	if got := b.GetHistory("x", 0); len(got) != 0 {
		t.Fatalf("history after Destroy = %v, want empty", got)
	}
}

func TestEventTimestampIsSet(t *testing.T) {
	b := New(WithHistory(1))
	before := time.Now()
	b.Emit("x", nil)
	hist := b.GetHistory("x", 0)
	if len(hist) != 1 {
		t.Fatalf("expected 1 history entry")
	}
	if hist[0].Timestamp.Before(before) {
		t.Fatalf("event timestamp %v should not be before emit call %v", hist[0].Timestamp, before)
	}
}
