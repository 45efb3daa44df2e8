// Package reference parses and builds resource reference strings of the
// form ".../<path-segment>/<id>/".
package reference

import (
	"fmt"
	"log/slog"
	"strings"
)

// LookupKey names a resource kind, e.g. "team".
type LookupKey string

// NewFragment is the id segment of a placeholder for a resource that does
// not exist yet.
const NewFragment = "new"

// DefaultBase prefixes placeholder references.
const DefaultBase = "http://placeholder"

// segmentCount is the number of non-empty segments a reference splits into.
const segmentCount = 4

// Ref identifies one resource.
type Ref struct {
	LookupKey LookupKey
	ID        string
}

func (r Ref) String() string {
	return string(r.LookupKey) + "/" + r.ID
}

// Routes maps lookup keys to their path segments and back. Segment lookups
// are case-insensitive.
type Routes interface {
	LookupKeyFor(segment string) (LookupKey, bool)
	SegmentFor(key LookupKey) (string, bool)
}

// InvalidReferenceError reports input from which no resource id can be
// extracted or built.
type InvalidReferenceError struct {
	Input  any
	Reason string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("reference: invalid reference %v: %s", e.Input, e.Reason)
}

// UnknownKindError reports a lookup key missing from the routing table.
type UnknownKindError struct {
	Key LookupKey
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("reference: no path segment registered for %q", string(e.Key))
}

// Codec converts between reference strings and Refs using a routing table.
type Codec struct {
	routes Routes
	base   string
	logger *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithBase sets the scheme and host prefixed to built references. It must
// contribute exactly two segments, e.g. "https://lims.example.org".
func WithBase(base string) Option {
	return func(c *Codec) { c.base = strings.TrimRight(base, "/") }
}

// WithLogger sets the logger used to report invalid input.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCodec returns a codec over routes.
func NewCodec(routes Routes, opts ...Option) (*Codec, error) {
	c := &Codec{routes: routes, base: DefaultBase, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if routes == nil {
		return nil, fmt.Errorf("reference: routes are required")
	}
	if n := len(split(c.base)); n != segmentCount-2 {
		return nil, fmt.Errorf("reference: base %q has %d segments, want %d", c.base, n, segmentCount-2)
	}
	return c, nil
}

// Parse recognizes s as a reference. It reports false for any string that
// does not split into exactly four segments with a registered third segment.
// The id keeps the casing it has in s.
func (c *Codec) Parse(s string) (Ref, bool) {
	parts := split(s)
	if len(parts) != segmentCount {
		return Ref{}, false
	}
	key, ok := c.routes.LookupKeyFor(strings.ToLower(parts[2]))
	if !ok {
		return Ref{}, false
	}
	return Ref{LookupKey: key, ID: parts[3]}, true
}

// Build returns the reference string for an existing resource.
func (c *Codec) Build(key LookupKey, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/?") {
		return "", &InvalidReferenceError{Input: id, Reason: "id must be a single non-empty segment"}
	}
	segment, ok := c.routes.SegmentFor(key)
	if !ok {
		return "", &UnknownKindError{Key: key}
	}
	return c.base + "/" + segment + "/" + id + "/", nil
}

// BuildPlaceholder synthesizes a reference for a resource the user is still
// entering. The fragment is sanitized and falls back to NewFragment.
func (c *Codec) BuildPlaceholder(key LookupKey, fragment string) (string, error) {
	id := Sanitize(fragment)
	if id == "" {
		id = NewFragment
	}
	return c.Build(key, id)
}

// IDOf extracts a resource id, logging the input when it cannot.
func (c *Codec) IDOf(ref any) (string, error) {
	return idOf(c.logger, ref)
}

// IDOf is Codec.IDOf reporting through slog.Default.
func IDOf(ref any) (string, error) {
	return idOf(slog.Default(), ref)
}

// Sanitize strips every character outside [a-zA-Z0-9-_].
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func split(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '?' })
}

func lastSegment(s string) (string, bool) {
	parts := split(s)
	if len(parts) == 0 {
		return "", false
	}
	return parts[len(parts)-1], true
}
