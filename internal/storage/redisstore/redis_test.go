package redisstore

import "testing"

func TestRedisGlobEscapeKeepsWildcards(t *testing.T) {
	got := redisGlobEscape("points.user.*")
	want := "points.user.*"
	if got != want {
		t.Fatalf("redisGlobEscape() = %q, want %q", got, want)
	}
}

func TestRedisGlobEscapeEscapesBrackets(t *testing.T) {
	got := redisGlobEscape("a[b]c")
	want := `a\[b\]c`
	if got != want {
		t.Fatalf("redisGlobEscape() = %q, want %q", got, want)
	}
}

func TestFormatScoreRoundTrips(t *testing.T) {
	if got := formatScore(1.5); got != "1.5" {
		t.Fatalf("formatScore(1.5) = %q", got)
	}
	if got := formatScore(10); got != "10" {
		t.Fatalf("formatScore(10) = %q", got)
	}
}
