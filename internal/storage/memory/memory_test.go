package memory

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/gamification-engine/internal/storage"
)

func TestGetHonorsExpiry(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	_, ok, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected expired key to read as missing")
	}
}

func TestIncrementPreservesTTL(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Set(ctx, "counter", "5", time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Increment(ctx, "counter", 1); err != nil {
		t.Fatal(err)
	}
	ttl, err := s.TTL(ctx, "counter")
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 {
		t.Fatalf("expected TTL to survive Increment, got %v", ttl)
	}
}

func TestKeysEscapesGlobMetacharacters(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Set(ctx, "points.user.1", "1", 0)
	s.Set(ctx, "pointsXuserX1", "1", 0)

	matches, err := s.Keys(ctx, "points.user.*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0] != "points.user.1" {
		t.Fatalf("expected literal dot match only, got %v", matches)
	}
}

func TestZRangeAndZRevRangeCanonicalShape(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.ZAdd(ctx, "lb", 10, "a")
	s.ZAdd(ctx, "lb", 30, "b")
	s.ZAdd(ctx, "lb", 20, "c")

	asc, err := s.ZRange(ctx, "lb", 0, -1, storage.ZRangeOptions{WithScores: true})
	if err != nil {
		t.Fatal(err)
	}
	wantAsc := []string{"a", "c", "b"}
	for i, m := range asc {
		if m.Member != wantAsc[i] {
			t.Fatalf("ZRange[%d] = %s, want %s", i, m.Member, wantAsc[i])
		}
	}

	desc, err := s.ZRevRange(ctx, "lb", 0, -1, storage.ZRangeOptions{WithScores: true})
	if err != nil {
		t.Fatal(err)
	}
	wantDesc := []string{"b", "c", "a"}
	for i, m := range desc {
		if m.Member != wantDesc[i] {
			t.Fatalf("ZRevRange[%d] = %s, want %s", i, m.Member, wantDesc[i])
		}
	}
}

func TestRPushDoesNotMutateCallerSlice(t *testing.T) {
	s := New()
	ctx := context.Background()
	values := []string{"x", "y"}
	if _, err := s.RPush(ctx, "list", values...); err != nil {
		t.Fatal(err)
	}
	values[0] = "mutated"
	got, err := s.LRange(ctx, "list", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != "x" {
		t.Fatalf("adapter observed caller mutation: %v", got)
	}
}

func TestLPopDistinguishesMissingFromFalsy(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.RPush(ctx, "list", "")
	v, ok, err := s.LPop(ctx, "list")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || v != "" {
		t.Fatalf("expected ok=true v=\"\", got ok=%v v=%q", ok, v)
	}
	_, ok, err = s.LPop(ctx, "list")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected missing element to report ok=false")
	}
}

func TestTransactionRollsBackOnFailure(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Set(ctx, "balance", "100", 0)

	_, err := s.Transaction(ctx, []storage.Op{
		{Method: "Increment", Args: []interface{}{"balance", int64(10)}},
		{Method: "UnknownOp", Args: nil},
	})
	if err == nil {
		t.Fatal("expected transaction to fail on unknown op")
	}

	v, _, _ := s.Get(ctx, "balance")
	if v != "100" {
		t.Fatalf("expected rollback to restore balance, got %q", v)
	}
}

func TestStartCleanupIsIdempotent(t *testing.T) {
	s := New()
	s.StartCleanup(60 * time.Second)
	s.StartCleanup(60 * time.Second) // must not panic or start a second ticker
	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestDisconnectMarksNotConnected(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Get(ctx, "anything"); err != storage.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
