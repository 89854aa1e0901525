package rules

import "strings"

// blockedPathSegments are reserved prototype-chain keys; any dotted path
// containing one of these terminates resolution with "not found" rather
// than following it, guarding against prototype-pollution-style lookups
// carried over from the context's original JSON shape.
var blockedPathSegments = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// resolveField walks a dotted path ("a.b.c") through nested
// map[string]interface{} values. It returns ok=false if any segment is
// blocked, missing, or the value at that point isn't a traversable map.
func resolveField(ctx map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var cur interface{} = ctx
	for _, seg := range segments {
		if _, blocked := blockedPathSegments[seg]; blocked {
			return nil, false
		}
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, present := m[seg]
		if !present {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// resolveValue resolves v as a literal, unless it is a string beginning
// with '$', in which case the rest of the string is treated as a second
// field path into ctx.
func resolveValue(ctx map[string]interface{}, v interface{}) (interface{}, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "$") {
		return v, true
	}
	return resolveField(ctx, strings.TrimPrefix(s, "$"))
}
