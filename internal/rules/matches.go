package rules

import (
	"regexp"
	"time"

	"github.com/dlclark/regexp2"
)

const maxPatternLength = 100

// reDoSShape flags the classic nested-quantifier construction
// ("(a+)+", "(a*)*", "(a+)*", "(a*)+", and their \d/\w/. variants) that
// is responsible for almost all catastrophic-backtracking regex
// incidents. It is a denylist, not a guarantee of safety on its own —
// matchTimeout below is the backstop.
var reDoSShape = regexp.MustCompile(`\([^()]*[+*]\)[+*]`)

const matchTimeout = 50 * time.Millisecond

// safeMatch reports whether value matches pattern, honoring the safety
// contract: overlong or ReDoS-shaped patterns, invalid patterns, and
// patterns that exceed the match timeout all evaluate to false rather
// than panicking, erroring, or hanging the caller.
func safeMatch(pattern, value string) bool {
	if len(pattern) > maxPatternLength {
		return false
	}
	if reDoSShape.MatchString(pattern) {
		return false
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return false
	}
	re.MatchTimeout = matchTimeout

	ok, err := re.MatchString(value)
	if err != nil {
		// Includes regexp2.ErrTimeout on pathological input that slipped
		// past the shape denylist.
		return false
	}
	return ok
}
