// Package value models the serializable values carried by resource fields
// and the lenient conversions between their kinds.
package value

import (
	"fmt"
	"sort"
)

// Value is a serializable field value. After Normalize it is one of nil,
// string, float64, bool, *Object or []Value.
type Value = any

// Kind tags a field value. The five primitive kinds are declared here;
// every other Kind is the lookup key of a registered resource kind.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

// Primitives lists the primitive kinds in display order.
var Primitives = []Kind{KindString, KindNumber, KindBoolean, KindObject, KindArray}

// IsPrimitive reports whether k is one of the five primitive kinds.
func (k Kind) IsPrimitive() bool {
	switch k {
	case KindString, KindNumber, KindBoolean, KindObject, KindArray:
		return true
	}
	return false
}

// UnsupportedValueError reports a Go value with no serializable form.
type UnsupportedValueError struct {
	Type string
}

func (e *UnsupportedValueError) Error() string {
	return "value: unsupported type " + e.Type
}

// KindOf returns the intrinsic primitive kind of v. It reports false for nil
// and for values outside the serializable set.
func KindOf(v Value) (Kind, bool) {
	n, err := Normalize(v)
	if err != nil {
		return "", false
	}
	switch n.(type) {
	case string:
		return KindString, true
	case float64:
		return KindNumber, true
	case bool:
		return KindBoolean, true
	case *Object:
		return KindObject, true
	case []Value:
		return KindArray, true
	}
	return "", false
}

// Normalize maps the Go values a caller is likely to hold onto the closed
// serializable set. Maps become objects with sorted keys.
func Normalize(v Value) (Value, error) {
	switch t := v.(type) {
	case nil, string, bool, float64, *Object:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case []Value:
		out := make([]Value, len(t))
		for i, e := range t {
			n, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			n, err := Normalize(t[k])
			if err != nil {
				return nil, err
			}
			obj.Set(k, n)
		}
		return obj, nil
	}
	return nil, &UnsupportedValueError{Type: fmt.Sprintf("%T", v)}
}

// MustNormalize is Normalize for literals known to be serializable.
func MustNormalize(v Value) Value {
	n, err := Normalize(v)
	if err != nil {
		panic(err)
	}
	return n
}
