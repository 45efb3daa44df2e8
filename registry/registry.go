// Package registry holds the per-kind table of resource accessors, field
// schemas and routing used by resolution and mutation.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goforj/rescache/reference"
	"github.com/goforj/rescache/value"
)

// DefaultFamilyField is the field holding the family reference of a
// family-bearing kind unless the entry names another one.
const DefaultFamilyField = "family"

// OwnerField marks kinds users may create from the client.
const OwnerField = "team"

// Accessor performs remote operations on one resource kind.
type Accessor interface {
	Fetch(ctx context.Context, id string) (*value.Object, error)
	Create(ctx context.Context, payload *value.Object) (*value.Object, error)
	Update(ctx context.Context, id string, payload *value.Object) (*value.Object, error)
}

// Entry describes one resource kind.
type Entry struct {
	Key         reference.LookupKey `validate:"required,pathsegment"`
	Path        string              `validate:"required,pathsegment"`
	DisplayName string              `validate:"required"`
	Icon        string
	Fields      []Field `validate:"dive"`
	// Family names the kind of the single resource this kind belongs to.
	Family      reference.LookupKey `validate:"omitempty,pathsegment"`
	FamilyField string
	Accessor    Accessor
}

// HasFamily reports whether resources of this kind point at a family.
func (e Entry) HasFamily() bool { return e.Family != "" }

// FamilyFieldName returns the field carrying the family reference.
func (e Entry) FamilyFieldName() string {
	if e.FamilyField != "" {
		return e.FamilyField
	}
	return DefaultFamilyField
}

// Field returns the schema of the named field.
func (e Entry) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// RegistrationError reports an entry the registry refused.
type RegistrationError struct {
	Key    reference.LookupKey
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registry: cannot register %q: %s", string(e.Key), e.Reason)
}

// NoAccessorError reports a kind registered without an accessor.
type NoAccessorError struct {
	Key reference.LookupKey
}

func (e *NoAccessorError) Error() string {
	return fmt.Sprintf("registry: no accessor for %q", string(e.Key))
}

// UnknownKeyError reports a lookup key that was never registered.
type UnknownKeyError struct {
	Key reference.LookupKey
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("registry: unknown lookup key %q", string(e.Key))
}

var entryValidate *validator.Validate

func init() {
	entryValidate = validator.New(validator.WithRequiredStructEnabled())
	_ = entryValidate.RegisterValidation("pathsegment", validatePathSegment)
}

// validatePathSegment rejects text that would not survive as a single
// segment of a reference string.
func validatePathSegment(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || !strings.ContainsAny(s, "/? \t\n")
}

// Registry is the lookup-key table. It implements reference.Routes.
type Registry struct {
	mu       sync.RWMutex
	entries  map[reference.LookupKey]*Entry
	order    []reference.LookupKey
	segments map[string]reference.LookupKey
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries:  map[reference.LookupKey]*Entry{},
		segments: map[string]reference.LookupKey{},
	}
}

// Register adds e. Keys and path segments (compared case-insensitively)
// must be unique.
func (r *Registry) Register(e Entry) error {
	if err := entryValidate.Struct(e); err != nil {
		return &RegistrationError{Key: e.Key, Reason: err.Error()}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Key]; ok {
		return &RegistrationError{Key: e.Key, Reason: "lookup key already registered"}
	}
	segment := strings.ToLower(e.Path)
	if owner, ok := r.segments[segment]; ok {
		return &RegistrationError{Key: e.Key, Reason: fmt.Sprintf("path segment %q already used by %q", e.Path, string(owner))}
	}
	cp := e
	cp.Fields = append([]Field(nil), e.Fields...)
	r.entries[e.Key] = &cp
	r.order = append(r.order, e.Key)
	r.segments[segment] = e.Key
	return nil
}

// MustRegister registers entries and panics on the first error.
func (r *Registry) MustRegister(entries ...Entry) *Registry {
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

// Validate checks cross-entry constraints once every kind is registered.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range r.order {
		e := r.entries[key]
		if e.HasFamily() {
			if _, ok := r.entries[e.Family]; !ok {
				return &RegistrationError{Key: key, Reason: fmt.Sprintf("family kind %q is not registered", string(e.Family))}
			}
		}
	}
	return nil
}

// SetAccessor attaches or replaces the accessor of a registered kind.
func (r *Registry) SetAccessor(key reference.LookupKey, a Accessor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return &UnknownKeyError{Key: key}
	}
	e.Accessor = a
	return nil
}

// Lookup returns the entry registered under key.
func (r *Registry) Lookup(key reference.LookupKey) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Accessor returns the accessor registered for key.
func (r *Registry) Accessor(key reference.LookupKey) (Accessor, error) {
	e, ok := r.Lookup(key)
	if !ok {
		return nil, &UnknownKeyError{Key: key}
	}
	if e.Accessor == nil {
		return nil, &NoAccessorError{Key: key}
	}
	return e.Accessor, nil
}

// Keys lists registered lookup keys in registration order.
func (r *Registry) Keys() []reference.LookupKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]reference.LookupKey(nil), r.order...)
}

func (r *Registry) IsRegistered(key reference.LookupKey) bool {
	_, ok := r.Lookup(key)
	return ok
}

// FamilyOf returns the family kind of key, if it has one.
func (r *Registry) FamilyOf(key reference.LookupKey) (reference.LookupKey, bool) {
	e, ok := r.Lookup(key)
	if !ok || !e.HasFamily() {
		return "", false
	}
	return e.Family, true
}

func (r *Registry) LookupKeyFor(segment string) (reference.LookupKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.segments[strings.ToLower(segment)]
	return key, ok
}

func (r *Registry) SegmentFor(key reference.LookupKey) (string, bool) {
	e, ok := r.Lookup(key)
	if !ok {
		return "", false
	}
	return e.Path, true
}
