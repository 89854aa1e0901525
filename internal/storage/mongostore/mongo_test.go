package mongostore

import "testing"

func TestGlobToMongoRegexTranslatesWildcards(t *testing.T) {
	got := globToMongoRegex("points.user.*")
	want := `^points\.user\..*$`
	if got != want {
		t.Fatalf("globToMongoRegex() = %q, want %q", got, want)
	}
}

func TestGlobToMongoRegexEscapesMetacharacters(t *testing.T) {
	got := globToMongoRegex("a+b?")
	want := `^a\+b.$`
	if got != want {
		t.Fatalf("globToMongoRegex() = %q, want %q", got, want)
	}
}

func TestResolveRangeNegativeIndices(t *testing.T) {
	offset, limit := resolveRange(-2, -1, 5)
	if offset != 3 || limit != 2 {
		t.Fatalf("resolveRange(-2,-1,5) = (%d,%d), want (3,2)", offset, limit)
	}
}

func TestResolveRangeEmptySet(t *testing.T) {
	_, limit := resolveRange(0, -1, 0)
	if limit != 0 {
		t.Fatalf("resolveRange on empty set should yield zero limit, got %d", limit)
	}
}

func TestResolveRangeOutOfBoundsStart(t *testing.T) {
	_, limit := resolveRange(10, 20, 5)
	if limit != 0 {
		t.Fatalf("resolveRange with start beyond set size should yield zero limit, got %d", limit)
	}
}
