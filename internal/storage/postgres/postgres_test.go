package postgres

import "testing"

func TestGlobToLikeEscapesLiteralPercent(t *testing.T) {
	got := globToLike("100%*done")
	want := `100\%%done`
	if got != want {
		t.Fatalf("globToLike() = %q, want %q", got, want)
	}
}

func TestGlobToLikeTranslatesWildcards(t *testing.T) {
	got := globToLike("points.user.?")
	want := "points.user._"
	if got != want {
		t.Fatalf("globToLike() = %q, want %q", got, want)
	}
}

func TestResolveSQLRangeNegativeIndices(t *testing.T) {
	offset, limit := resolveSQLRange(-2, -1, 5)
	if offset != 3 || limit != 2 {
		t.Fatalf("resolveSQLRange(-2,-1,5) = (%d,%d), want (3,2)", offset, limit)
	}
}

func TestResolveSQLRangeEmpty(t *testing.T) {
	offset, limit := resolveSQLRange(0, -1, 0)
	if limit != 0 {
		t.Fatalf("resolveSQLRange on empty set should yield zero limit, got offset=%d limit=%d", offset, limit)
	}
}
