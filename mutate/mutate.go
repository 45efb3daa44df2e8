// Package mutate creates and updates resources, then invalidates every
// cached query the change can affect.
package mutate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goforj/rescache"
	"github.com/goforj/rescache/notify"
	"github.com/goforj/rescache/reference"
	"github.com/goforj/rescache/registry"
	"github.com/goforj/rescache/transport"
	"github.com/goforj/rescache/value"
	"github.com/sourcegraph/conc/pool"
)

// ListPart is the second part of a kind's list query key.
const ListPart = "list"

// AutocompleteKey prefixes every autocomplete query. It is invalidated as
// a prefix after each successful mutation.
var AutocompleteKey = rescache.Key{"autocomplete"}

const defaultParallelism = 8

// Invalidator marks cached queries stale. *rescache.QueryCache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, prefix rescache.Key, exact bool) error
}

// Mutator runs mutations against registered kinds.
type Mutator struct {
	reg         *registry.Registry
	codec       *reference.Codec
	cache       Invalidator
	notifier    notify.Notifier
	logger      *slog.Logger
	parallelism int
}

// Option configures a Mutator.
type Option func(*Mutator)

func WithNotifier(n notify.Notifier) Option {
	return func(m *Mutator) { m.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Mutator) { m.logger = l }
}

// WithParallelism bounds concurrent invalidations. Values below 1 are
// ignored.
func WithParallelism(n int) Option {
	return func(m *Mutator) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// New returns a mutator recognizing embedded references with codec.
func New(reg *registry.Registry, codec *reference.Codec, cache Invalidator, opts ...Option) *Mutator {
	m := &Mutator{
		reg:         reg,
		codec:       codec,
		cache:       cache,
		notifier:    notify.Nop,
		logger:      slog.Default(),
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create posts payload as a new resource of kind key. On success the list
// query of key, every resource the response references and all
// autocomplete queries are invalidated before the created resource is
// returned. On failure a notification is posted and the accessor's error
// is returned unchanged.
//
// Example:
//
//	cell, err := m.Create(ctx, "cell", value.NewObject().Set("identifier", "C-1"))
func (m *Mutator) Create(ctx context.Context, key reference.LookupKey, payload *value.Object) (*value.Object, error) {
	entry, a, err := m.accessor(key)
	if err != nil {
		return nil, err
	}
	res, err := a.Create(ctx, payload)
	if err != nil {
		m.report(ctx, err, fmt.Sprintf("Error creating new %s", entry.DisplayName))
		return nil, err
	}
	m.cascade(ctx, key, res, nil)
	return res, nil
}

// Update patches resource id of kind key. The cascade matches Create and
// also covers the resource's own query.
func (m *Mutator) Update(ctx context.Context, key reference.LookupKey, id string, payload *value.Object) (*value.Object, error) {
	entry, a, err := m.accessor(key)
	if err != nil {
		return nil, err
	}
	res, err := a.Update(ctx, id, payload)
	if err != nil {
		m.report(ctx, err, fmt.Sprintf("Error updating %s/%s", entry.DisplayName, id))
		return nil, err
	}
	m.cascade(ctx, key, res, rescache.Key{string(key), id})
	return res, nil
}

func (m *Mutator) accessor(key reference.LookupKey) (registry.Entry, registry.Accessor, error) {
	entry, ok := m.reg.Lookup(key)
	if !ok {
		err := &registry.UnknownKeyError{Key: key}
		m.logger.Error("mutate: unknown kind", "key", string(key), "error", err)
		return registry.Entry{}, nil, err
	}
	a, err := m.reg.Accessor(key)
	if err != nil {
		m.logger.Error("mutate: no accessor", "key", string(key), "error", err)
		return registry.Entry{}, nil, err
	}
	return entry, a, nil
}

// Invalidations lists the keys invalidated exactly after a mutation of
// kind key returned resource: the list query first, then each referenced
// resource once, in field order. AutocompleteKey is invalidated on top as
// a prefix.
func (m *Mutator) Invalidations(key reference.LookupKey, resource *value.Object) []rescache.Key {
	return m.invalidations(key, resource, nil)
}

func (m *Mutator) invalidations(key reference.LookupKey, resource *value.Object, own rescache.Key) []rescache.Key {
	keys := []rescache.Key{{string(key), ListPart}}
	seen := map[string]bool{keys[0].String(): true}
	add := func(k rescache.Key) {
		if s := k.String(); !seen[s] {
			seen[s] = true
			keys = append(keys, k)
		}
	}
	if own != nil {
		add(own)
	}
	if resource == nil {
		return keys
	}
	resource.Range(func(_ string, v value.Value) bool {
		m.collect(v, add)
		return true
	})
	return keys
}

// collect walks strings and nested arrays. Objects are not descended into.
func (m *Mutator) collect(v value.Value, add func(rescache.Key)) {
	switch t := v.(type) {
	case string:
		if ref, ok := m.codec.Parse(t); ok {
			add(rescache.Key{string(ref.LookupKey), ref.ID})
		}
	case []value.Value:
		for _, item := range t {
			m.collect(item, add)
		}
	}
}

func (m *Mutator) cascade(ctx context.Context, key reference.LookupKey, resource *value.Object, own rescache.Key) {
	if resource == nil {
		m.logger.Warn("mutate: mutation returned no resource, skipping invalidation", "key", string(key))
		return
	}
	keys := m.invalidations(key, resource, own)

	p := pool.New().WithMaxGoroutines(m.parallelism).WithErrors().WithContext(ctx)
	for _, k := range keys {
		p.Go(func(ctx context.Context) error {
			return m.invalidate(ctx, k, true)
		})
	}
	p.Go(func(ctx context.Context) error {
		return m.invalidate(ctx, AutocompleteKey, false)
	})
	if err := p.Wait(); err != nil {
		m.logger.Warn("mutate: invalidation incomplete", "key", string(key), "error", err)
	}
}

func (m *Mutator) invalidate(ctx context.Context, k rescache.Key, exact bool) error {
	if err := m.cache.Invalidate(ctx, k, exact); err != nil {
		return fmt.Errorf("invalidate %s: %w", k, err)
	}
	return nil
}

// report posts the failure notification: the headline with the HTTP
// status, then the first field error and a count of the rest.
func (m *Mutator) report(ctx context.Context, err error, headline string) {
	m.logger.Warn("mutate: mutation failed", "error", err)
	if errors.Is(err, context.Canceled) {
		return
	}
	m.notifier.Post(ctx, notify.Message{Lines: FailureLines(err, headline), Severity: notify.SeverityError})
}

// FailureLines renders a mutation failure for a notification.
func FailureLines(err error, headline string) []string {
	status := "(no response)"
	if code, text, ok := transport.StatusOf(err); ok {
		status = fmt.Sprintf("(HTTP %d - %s)", code, text)
	}
	lines := []string{fmt.Sprintf("%s %s.", headline, status)}

	var httpErr *transport.Error
	if errors.As(err, &httpErr) && len(httpErr.Fields) > 0 {
		lines = append(lines, httpErr.Fields[0].String())
		if n := len(httpErr.Fields) - 1; n > 0 {
			lines = append(lines, fmt.Sprintf("+ %d more", n))
		}
	}
	return lines
}
