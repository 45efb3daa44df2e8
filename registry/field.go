package registry

import "github.com/goforj/rescache/value"

// Priority controls where a field is shown. Hidden fields are never offered
// for editing.
type Priority int

const (
	PriorityHidden   Priority = -1
	PriorityLow      Priority = 0
	PrioritySummary  Priority = 1
	PriorityIdentity Priority = 2
)

// Transform post-processes a fetched field value before it is exposed.
type Transform func(value.Value) value.Value

// Field is the schema of one resource field.
type Field struct {
	Name       string `validate:"required"`
	ReadOnly   bool
	CreateOnly bool
	Many       bool
	Priority   Priority
	// Kind is the declared kind of the field, empty when free-form.
	Kind      value.Kind
	Transform Transform
}

// Writable reports whether the field is sent when creating a resource.
func (f Field) Writable() bool {
	return !f.ReadOnly || f.CreateOnly
}

// Select applies every field transform to a copy of raw. raw itself is
// left untouched so cached payloads stay as fetched. A transform also runs
// for a field the payload lacks, seeing nil; a nil result leaves it absent.
func (e Entry) Select(raw *value.Object) *value.Object {
	if raw == nil {
		return nil
	}
	out := raw.Clone()
	for _, f := range e.Fields {
		if f.Transform == nil {
			continue
		}
		v, ok := out.Get(f.Name)
		if next := f.Transform(v); ok || next != nil {
			out.Set(f.Name, next)
		}
	}
	return out
}

// Template builds the payload skeleton for creating a resource. Visible
// writable fields take their value from initial or default to "" ([] for
// many-valued fields); initial fields outside the schema are kept as given.
func (e Entry) Template(initial *value.Object) *value.Object {
	out := value.NewObject()
	for _, f := range e.Fields {
		if f.Priority == PriorityHidden || !f.Writable() {
			continue
		}
		if v, ok := initial.Get(f.Name); ok {
			out.Set(f.Name, value.DeepCopy(v))
			continue
		}
		if f.Many {
			out.Set(f.Name, []value.Value{})
		} else {
			out.Set(f.Name, "")
		}
	}
	initial.Range(func(k string, v value.Value) bool {
		if _, known := e.Field(k); !known {
			out.Set(k, value.DeepCopy(v))
		}
		return true
	})
	return out
}

// CanCreate reports whether users may create this kind, which requires an
// owner field in the schema.
func (e Entry) CanCreate() bool {
	_, ok := e.Field(OwnerField)
	return ok
}
