package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// hashContext produces a deterministic digest of ctx for use as a cache
// key component. Map keys are sorted before marshaling so the digest is
// stable across calls regardless of Go's randomized map iteration order.
func hashContext(ctx map[string]interface{}) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]keyValue, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, keyValue{Key: k, Value: ctx[k]})
	}

	data, err := json.Marshal(ordered)
	if err != nil {
		// Unmarshalable context values still need a stable, if coarser,
		// cache key rather than a hard failure.
		data = []byte(fmt.Sprintf("%v", ordered))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type keyValue struct {
	Key   string      `json:"k"`
	Value interface{} `json:"v"`
}
