package reference

import "strings"

// StaticRoutes is a fixed routing table from lookup key to path segment.
type StaticRoutes map[LookupKey]string

func (r StaticRoutes) SegmentFor(key LookupKey) (string, bool) {
	s, ok := r[key]
	return s, ok
}

func (r StaticRoutes) LookupKeyFor(segment string) (LookupKey, bool) {
	for key, s := range r {
		if strings.EqualFold(s, segment) {
			return key, true
		}
	}
	return "", false
}
