package value

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// Conversion coerces any value into a fixed kind. Conversions never fail;
// unconvertible input degrades to a documented fallback and logs a warning.
type Conversion func(Value) Value

// Conversions maps each primitive kind to its conversion.
var Conversions = map[Kind]Conversion{
	KindString:  func(v Value) Value { return ToString(v) },
	KindNumber:  func(v Value) Value { return ToNumber(v) },
	KindBoolean: func(v Value) Value { return ToBoolean(v) },
	KindObject:  func(v Value) Value { return ToObject(v) },
	KindArray:   func(v Value) Value { return ToArray(v) },
}

// ToString returns strings unchanged and encodes everything else as JSON
// text. nil becomes the empty string.
func ToString(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := Marshal(v)
	if err != nil {
		warnConversion(KindString, v, err)
		return ""
	}
	return string(b)
}

// ToNumber coerces v to a number. NaN and unparseable input become 0.
func ToNumber(v Value) float64 {
	n, err := Normalize(v)
	if err != nil {
		warnConversion(KindNumber, v, err)
		return 0
	}
	switch t := n.(type) {
	case nil:
		return 0
	case float64:
		if math.IsNaN(t) {
			warnConversion(KindNumber, v, nil)
			return 0
		}
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		return parseNumber(t, v)
	case []Value:
		switch len(t) {
		case 0:
			return 0
		case 1:
			switch e := t[0].(type) {
			case nil:
				return 0
			case float64, string:
				return ToNumber(e)
			}
		}
	}
	warnConversion(KindNumber, v, nil)
	return 0
}

func parseNumber(s string, orig Value) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		warnConversion(KindNumber, orig, err)
		return 0
	}
	if math.IsNaN(f) {
		warnConversion(KindNumber, orig, nil)
		return 0
	}
	return f
}

// ToBoolean applies truthiness: nil, false, 0, NaN and "" are false and
// everything else, empty objects and arrays included, is true.
func ToBoolean(v Value) bool {
	n, err := Normalize(v)
	if err != nil {
		return v != nil
	}
	switch t := n.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	}
	return true
}

// ToObject coerces v to an object. Arrays become index-keyed objects, text
// shaped like a JSON object is parsed, and anything else is wrapped as {"0": v}.
func ToObject(v Value) *Object {
	n, err := Normalize(v)
	if err != nil {
		warnConversion(KindObject, v, err)
		return NewObject().Set("0", v)
	}
	switch t := n.(type) {
	case *Object:
		if t == nil {
			return NewObject().Set("0", nil)
		}
		return t
	case []Value:
		obj := NewObject()
		for i, e := range t {
			obj.Set(strconv.Itoa(i), e)
		}
		return obj
	case string:
		if enclosed(t, '{', '}') {
			parsed, err := Parse([]byte(t))
			if obj, ok := parsed.(*Object); err == nil && ok {
				return obj
			}
			warnConversion(KindObject, v, err)
		}
	}
	return NewObject().Set("0", n)
}

// ToArray coerces v to an array. Objects yield their values in order, text
// shaped like a JSON array is parsed, and anything else is wrapped as [v].
func ToArray(v Value) []Value {
	n, err := Normalize(v)
	if err != nil {
		warnConversion(KindArray, v, err)
		return []Value{v}
	}
	switch t := n.(type) {
	case []Value:
		return t
	case *Object:
		if t == nil {
			return []Value{nil}
		}
		return t.Values()
	case string:
		if enclosed(t, '[', ']') {
			parsed, err := Parse([]byte(t))
			if arr, ok := parsed.([]Value); err == nil && ok {
				return arr
			}
			warnConversion(KindArray, v, err)
		}
	}
	return []Value{n}
}

func enclosed(s string, open, close byte) bool {
	return len(s) >= 2 && s[0] == open && s[len(s)-1] == close
}

func warnConversion(to Kind, v Value, err error) {
	attrs := []any{"kind", string(to), "value", fmt.Sprintf("%v", v)}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	slog.Warn("value: lossy conversion", attrs...)
}
