package value_test

import (
	"testing"

	"github.com/goforj/rescache/value"
	"pgregory.net/rapid"
)

func primitive() *rapid.Generator[value.Value] {
	return rapid.OneOf(
		rapid.Map(rapid.String(), func(s string) value.Value { return s }),
		rapid.Map(rapid.Float64Range(-1e9, 1e9), func(f float64) value.Value { return f }),
		rapid.Map(rapid.Bool(), func(b bool) value.Value { return b }),
		rapid.Just[value.Value](nil),
	)
}

func TestPropertyArrayObjectRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		arr := rapid.SliceOf(primitive()).Draw(t, "arr")
		if arr == nil {
			arr = []value.Value{}
		}

		got := value.ToArray(value.ToObject(arr))
		if !value.Equal(got, arr) {
			t.Fatalf("round trip changed %v into %v", arr, got)
		}
	})
}

func TestPropertyConversionsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := primitive().Draw(t, "v")

		if b := value.ToBoolean(v); value.ToBoolean(b) != b {
			t.Fatalf("ToBoolean not idempotent for %v", v)
		}
		if n := value.ToNumber(v); value.ToNumber(n) != n {
			t.Fatalf("ToNumber not idempotent for %v", v)
		}
		if s := value.ToString(v); value.ToString(s) != s {
			t.Fatalf("ToString not idempotent for %v", v)
		}
	})
}

func TestPropertyMarshalParse(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfDistinct(rapid.StringMatching(`[a-z]{1,8}`), func(s string) string { return s }).Draw(t, "keys")
		obj := value.NewObject()
		for _, k := range keys {
			obj.Set(k, primitive().Draw(t, k))
		}

		raw, err := value.Marshal(obj)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		back, err := value.ParseObject(raw)
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if !value.Equal(obj, back) {
			t.Fatalf("decode mismatch %s", raw)
		}
		for i, k := range back.Keys() {
			if keys[i] != k {
				t.Fatalf("field order changed at %d: %q != %q", i, keys[i], k)
			}
		}
	})
}
