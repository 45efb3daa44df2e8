package value

// DeepCopy returns a copy of v sharing no objects or arrays with it.
func DeepCopy(v Value) Value {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return t
		}
		out := &Object{keys: make([]string, 0, len(t.keys)), fields: make(map[string]Value, len(t.fields))}
		for _, k := range t.keys {
			out.keys = append(out.keys, k)
			out.fields[k] = DeepCopy(t.fields[k])
		}
		return out
	case []Value:
		if t == nil {
			return t
		}
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = DeepCopy(e)
		}
		return out
	}
	return v
}

// Clone is DeepCopy for objects.
func (o *Object) Clone() *Object {
	c, _ := DeepCopy(o).(*Object)
	return c
}

// Equal reports whether a and b hold the same value. Object comparison
// ignores field order.
func Equal(a, b Value) bool {
	an, aerr := Normalize(a)
	bn, berr := Normalize(b)
	if aerr != nil || berr != nil {
		return false
	}
	switch at := an.(type) {
	case *Object:
		bt, ok := bn.(*Object)
		if !ok || at.Len() != bt.Len() {
			return false
		}
		for _, k := range at.Keys() {
			bv, ok := bt.Get(k)
			if !ok {
				return false
			}
			av, _ := at.Get(k)
			if !Equal(av, bv) {
				return false
			}
		}
		return true
	case []Value:
		bt, ok := bn.([]Value)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	}
	return an == bn
}
