package backend

import (
	"fmt"
	"sort"
	"strings"
)

// Filter matches decoded record values by their top-level fields.
// An empty filter matches everything. String patterns support a trailing
// "*" wildcard (e.g. "image/*").
type Filter map[string]any

// QueryOptions bounds a query.
type QueryOptions struct {
	// Limit caps the number of results (0 = unlimited).
	Limit int `json:"limit"`
}

// Matches reports whether the decoded value satisfies every filter field.
// Values that are not JSON objects only match the empty filter.
func (f Filter) Matches(fields map[string]any) bool {
	if len(f) == 0 {
		return true
	}
	if fields == nil {
		return false
	}

	for name, want := range f {
		got, exists := fields[name]
		if !exists {
			return false
		}

		if pattern, ok := want.(string); ok {
			value, ok := got.(string)
			if !ok {
				return false
			}
			if !matchPattern(value, pattern) {
				return false
			}
			continue
		}

		// Numbers decode as float64 from JSON regardless of source type,
		// so compare through their printed form.
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}

	return true
}

// StableKey returns a deterministic serialization of the filter and
// options, used to cache query result sets.
func (f Filter) StableKey(collection string, opts QueryOptions) string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("query:")
	sb.WriteString(collection)
	for _, name := range names {
		fmt.Fprintf(&sb, "|%s=%v", name, f[name])
	}
	fmt.Fprintf(&sb, "|limit=%d", opts.Limit)

	return sb.String()
}

// matchPattern checks a string against a pattern with trailing-wildcard
// support: "image/*" matches "image/png", "*" matches anything.
func matchPattern(value, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, found := strings.CutSuffix(pattern, "*"); found {
		return strings.HasPrefix(value, prefix)
	}
	return value == pattern
}
