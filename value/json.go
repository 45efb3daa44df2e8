package value

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// SyntaxError reports text that does not decode to a value.
type SyntaxError struct {
	Input  string
	Reason string
}

func (e *SyntaxError) Error() string {
	return "value: cannot parse " + e.Input + ": " + e.Reason
}

// Parse decodes JSON text into a Value. Object field order is preserved and
// numbers decode as float64, except integer literals float64 cannot hold
// exactly (beyond 2^53), which keep their decimal text as a string so large
// ids survive unchanged.
func Parse(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return nil, &SyntaxError{Input: truncate(string(data)), Reason: "invalid JSON"}
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

// ParseObject decodes JSON text that must hold an object.
func ParseObject(data []byte) (*Object, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, &SyntaxError{Input: truncate(string(data)), Reason: "not a JSON object"}
	}
	return obj, nil
}

// Marshal encodes v as compact JSON. Objects keep their field order so the
// output is deterministic.
func Marshal(v Value) ([]byte, error) {
	return json.Marshal(v)
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		if inexactInteger(r) {
			return r.Raw
		}
		return r.Num
	case gjson.String:
		return r.Str
	case gjson.JSON:
		if r.IsArray() {
			out := make([]Value, 0)
			r.ForEach(func(_, item gjson.Result) bool {
				out = append(out, fromResult(item))
				return true
			})
			return out
		}
		obj := NewObject()
		r.ForEach(func(key, item gjson.Result) bool {
			obj.Set(key.Str, fromResult(item))
			return true
		})
		return obj
	}
	return nil
}

func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func inexactInteger(r gjson.Result) bool {
	if strings.ContainsAny(r.Raw, ".eE") {
		return false
	}
	return strconv.FormatFloat(r.Num, 'f', -1, 64) != r.Raw
}
