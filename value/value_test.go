package value_test

import (
	"testing"

	"github.com/goforj/rescache/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsFieldOrder(t *testing.T) {
	v, err := value.Parse([]byte(`{"zeta":1,"alpha":{"y":[1,{"b":2,"a":3}],"x":null},"mid":"s"}`))
	require.NoError(t, err)

	obj, ok := v.(*value.Object)
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Keys())

	out, err := value.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":{"y":[1,{"b":2,"a":3}],"x":null},"mid":"s"}`, string(out))
}

func TestParseKeepsLargeIntegersExact(t *testing.T) {
	obj, err := value.ParseObject([]byte(`{"big":9007199254740993,"edge":9007199254740992,"neg":-12,"frac":2.5,"exp":1e3}`))
	require.NoError(t, err)

	big, _ := obj.Get("big")
	assert.Equal(t, "9007199254740993", big)
	edge, _ := obj.Get("edge")
	assert.Equal(t, float64(9007199254740992), edge)
	neg, _ := obj.Get("neg")
	assert.Equal(t, float64(-12), neg)
	frac, _ := obj.Get("frac")
	assert.Equal(t, 2.5, frac)
	exp, _ := obj.Get("exp")
	assert.Equal(t, float64(1000), exp)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := value.Parse([]byte(`{"a":`))
	var syntaxErr *value.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)

	_, err = value.ParseObject([]byte(`[1,2]`))
	assert.ErrorAs(t, err, &syntaxErr)
}

func TestObjectMutation(t *testing.T) {
	obj := value.NewObject().Set("a", 1.0).Set("b", 2.0).Set("c", 3.0)
	obj.Set("a", 9.0)
	obj.Delete("b")

	assert.Equal(t, []string{"a", "c"}, obj.Keys())
	assert.Equal(t, []value.Value{9.0, 3.0}, obj.Values())
	assert.False(t, obj.Has("b"))

	var nilObj *value.Object
	assert.Equal(t, 0, nilObj.Len())
	_, ok := nilObj.Get("a")
	assert.False(t, ok)
}

func TestObjectUnmarshalJSON(t *testing.T) {
	var obj value.Object
	require.NoError(t, obj.UnmarshalJSON([]byte(`{"b":1,"a":2}`)))
	assert.Equal(t, []string{"b", "a"}, obj.Keys())

	assert.Error(t, obj.UnmarshalJSON([]byte(`"text"`)))
}

func TestNormalize(t *testing.T) {
	got, err := value.Normalize(map[string]any{"b": 2, "a": []any{int64(1), "x"}})
	require.NoError(t, err)

	obj := got.(*value.Object)
	assert.Equal(t, []string{"a", "b"}, obj.Keys())
	b, _ := obj.Get("b")
	assert.Equal(t, 2.0, b)

	_, err = value.Normalize(struct{}{})
	var unsupported *value.UnsupportedValueError
	assert.ErrorAs(t, err, &unsupported)
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		in   value.Value
		want value.Kind
	}{
		{"s", value.KindString},
		{3, value.KindNumber},
		{1.5, value.KindNumber},
		{false, value.KindBoolean},
		{value.NewObject(), value.KindObject},
		{[]value.Value{}, value.KindArray},
	}
	for _, tc := range cases {
		got, ok := value.KindOf(tc.in)
		require.True(t, ok)
		assert.Equal(t, tc.want, got)
	}

	_, ok := value.KindOf(nil)
	assert.False(t, ok)
}

func TestDeepCopy(t *testing.T) {
	inner := value.NewObject().Set("n", 1.0)
	orig := value.NewObject().Set("inner", inner).Set("list", []value.Value{inner})

	cp := value.DeepCopy(orig).(*value.Object)
	inner.Set("n", 2.0)

	gotInner, _ := cp.Get("inner")
	n, _ := gotInner.(*value.Object).Get("n")
	assert.Equal(t, 1.0, n)
	assert.False(t, value.Equal(orig, cp))
	assert.True(t, value.Equal(cp, cp.Clone()))
}

func TestEqualIgnoresFieldOrder(t *testing.T) {
	a := value.NewObject().Set("x", 1.0).Set("y", "z")
	b := value.NewObject().Set("y", "z").Set("x", 1)
	assert.True(t, value.Equal(a, b))
	assert.False(t, value.Equal(a, value.NewObject()))
	assert.True(t, value.Equal([]value.Value{1, "a"}, []value.Value{1.0, "a"}))
}
