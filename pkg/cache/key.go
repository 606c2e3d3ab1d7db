package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies a cached lookup.
type Key struct {
	// Operation is the lookup name (e.g., "PatchQuery")
	Operation string

	// Params are the lookup arguments (e.g., {"id": "5f1a..."})
	Params map[string]string
}

// String generates a deterministic key string.
// Format: evg:operation:param1=val1:param2=val2
//
// Example:
//
//	evg:PatchQuery:id=5f1a2b3c
func (k Key) String() string {
	parts := []string{"evg"}

	if op := strings.TrimSpace(k.Operation); op != "" {
		parts = append(parts, op)
	}

	// sorted for determinism
	keys := make([]string, 0, len(k.Params))
	for key := range k.Params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params[key]))
	}

	return strings.Join(parts, ":")
}
