// Package kind infers the kind of a field value and looks up the
// conversion that retypes a value into a chosen kind.
package kind

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/goforj/rescache/reference"
	"github.com/goforj/rescache/value"
)

// UndetectableKindError reports a value outside the serializable kinds.
type UndetectableKindError struct {
	Value any
}

func (e *UndetectableKindError) Error() string {
	return fmt.Sprintf("kind: cannot detect kind of %T value %v", e.Value, e.Value)
}

// UnsupportedKindError reports a kind that is neither primitive nor a
// registered lookup key.
type UnsupportedKindError struct {
	Kind value.Kind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("kind: unsupported kind %q", string(e.Kind))
}

// Registry lists the lookup keys that act as resource kinds.
type Registry interface {
	Keys() []reference.LookupKey
	IsRegistered(key reference.LookupKey) bool
}

// Inferrer detects kinds using a reference codec to recognize resource
// references among strings.
type Inferrer struct {
	codec    *reference.Codec
	registry Registry
	logger   *slog.Logger
}

// New returns an Inferrer. logger may be nil.
func New(codec *reference.Codec, registry Registry, logger *slog.Logger) *Inferrer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inferrer{codec: codec, registry: registry, logger: logger}
}

// Detect returns the kind v currently represents. A string the codec
// recognizes has the kind of the resource it references. Null, as sent for
// unset fields, detects as an object.
func (i *Inferrer) Detect(v value.Value) (value.Kind, error) {
	n, err := value.Normalize(v)
	if err != nil {
		return "", i.undetectable(v)
	}
	switch t := n.(type) {
	case []value.Value:
		return value.KindArray, nil
	case string:
		if ref, ok := i.codec.Parse(t); ok {
			return value.Kind(ref.LookupKey), nil
		}
		return value.KindString, nil
	case float64:
		return value.KindNumber, nil
	case bool:
		return value.KindBoolean, nil
	case *value.Object, nil:
		return value.KindObject, nil
	}
	return "", i.undetectable(v)
}

func (i *Inferrer) undetectable(v value.Value) error {
	err := &UndetectableKindError{Value: v}
	i.logger.Error("kind: undetectable value", "type", fmt.Sprintf("%T", v), "error", err)
	return err
}

// IsResource reports whether k is a registered resource kind.
func (i *Inferrer) IsResource(k value.Kind) bool {
	return !k.IsPrimitive() && i.registry.IsRegistered(reference.LookupKey(k))
}

// Kinds lists every kind a value can be retyped into: primitives first,
// then resource kinds in registration order.
func (i *Inferrer) Kinds() []value.Kind {
	keys := i.registry.Keys()
	out := make([]value.Kind, 0, len(value.Primitives)+len(keys))
	out = append(out, value.Primitives...)
	for _, k := range keys {
		out = append(out, value.Kind(k))
	}
	return out
}

// Conversion returns the function that coerces any value into k.
func (i *Inferrer) Conversion(k value.Kind) (value.Conversion, error) {
	if conv, ok := value.Conversions[k]; ok {
		return conv, nil
	}
	if i.IsResource(k) {
		key := reference.LookupKey(k)
		return func(v value.Value) value.Value {
			return i.ToResourceReference(key, v)
		}, nil
	}
	return nil, &UnsupportedKindError{Kind: k}
}

// Convert coerces v into k.
func (i *Inferrer) Convert(k value.Kind, v value.Value) (value.Value, error) {
	conv, err := i.Conversion(k)
	if err != nil {
		return nil, err
	}
	return conv(v), nil
}

// ToResourceReference builds a placeholder reference for key from v. Text
// and numbers supply the id fragment; anything else yields the "new"
// placeholder. Existing references to key are returned unchanged.
func (i *Inferrer) ToResourceReference(key reference.LookupKey, v value.Value) string {
	var fragment string
	switch t := v.(type) {
	case string:
		if ref, ok := i.codec.Parse(t); ok && ref.LookupKey == key {
			return t
		}
		fragment = t
	case float64:
		fragment = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		if n, err := value.Normalize(v); err == nil {
			if f, ok := n.(float64); ok {
				fragment = strconv.FormatFloat(f, 'f', -1, 64)
			}
		}
	}
	out, err := i.codec.BuildPlaceholder(key, fragment)
	if err != nil {
		i.logger.Warn("kind: cannot build placeholder", "key", string(key), "error", err)
		return ""
	}
	return out
}
