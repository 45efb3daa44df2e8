package rescache

import (
	"net/url"
	"slices"
	"strings"
)

// Key identifies a query cache entry as an ordered list of parts, for
// example {"team", "5"} or {"autocomplete", "tags"}.
type Key []string

// String renders the key for storage. Parts are path-escaped so "/" only
// ever appears between parts, which keeps prefix matching on part
// boundaries.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// HasPrefix reports whether the leading parts of k equal prefix.
// An empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	return slices.Equal(k[:len(prefix)], prefix)
}

// Equal reports whether both keys have the same parts.
func (k Key) Equal(other Key) bool {
	return slices.Equal(k, other)
}

// Matches applies the invalidation rule: exact equality or part-wise prefix.
func (k Key) Matches(prefix Key, exact bool) bool {
	if exact {
		return k.Equal(prefix)
	}
	return k.HasPrefix(prefix)
}

// ParseKey reverses String.
func ParseKey(s string) (Key, bool) {
	if s == "" {
		return Key{}, true
	}
	raw := strings.Split(s, "/")
	out := make(Key, len(raw))
	for i, p := range raw {
		part, err := url.PathUnescape(p)
		if err != nil {
			return nil, false
		}
		out[i] = part
	}
	return out, true
}
