package rescache

import "testing"

func TestKeyStringRoundTrip(t *testing.T) {
	for _, k := range []Key{
		{"team", "5"},
		{"autocomplete", "tags", "q=a/b"},
		{"a b", "%"},
		{},
	} {
		s := k.String()
		back, ok := ParseKey(s)
		if !ok || !back.Equal(k) {
			t.Fatalf("round trip %v via %q gave %v ok=%v", k, s, back, ok)
		}
	}
	if got := (Key{"x/y", "z"}).String(); got != "x%2Fy/z" {
		t.Fatalf("expected separator escaped, got %q", got)
	}
	if _, ok := ParseKey("bad%zz"); ok {
		t.Fatalf("expected invalid escape to fail")
	}
}

func TestKeyMatchesOnPartBoundaries(t *testing.T) {
	k := Key{"team", "5"}
	if !k.Matches(Key{"team"}, false) {
		t.Fatalf("expected prefix match")
	}
	if (Key{"teams", "5"}).Matches(Key{"team"}, false) {
		t.Fatalf("prefix must not match inside a part")
	}
	if k.Matches(Key{"team"}, true) {
		t.Fatalf("exact must not match a prefix")
	}
	if !k.Matches(Key{"team", "5"}, true) {
		t.Fatalf("expected exact match")
	}
	if !k.Matches(Key{}, false) {
		t.Fatalf("empty prefix matches everything")
	}
	if k.HasPrefix(Key{"team", "5", "x"}) {
		t.Fatalf("longer prefix cannot match")
	}
}
