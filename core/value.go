package core

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind identifies one of the eight value shapes a tool argument may take.
type Kind uint8

const (
	// KindInvalid is the zero Kind; no constructor produces it.
	KindInvalid Kind = iota
	// KindString is a UTF-8 string.
	KindString
	// KindInt is a signed 64-bit integer.
	KindInt
	// KindDouble is a 64-bit floating point number.
	KindDouble
	// KindBool is a boolean.
	KindBool
	// KindStringList is an ordered list of strings.
	KindStringList
	// KindList is an ordered list of arbitrary values.
	KindList
	// KindStringMap is a string to string mapping.
	KindStringMap
	// KindMap is a string to arbitrary value mapping.
	KindMap
)

var kindNames = map[Kind]string{
	KindString:     "string",
	KindInt:        "int",
	KindDouble:     "double",
	KindBool:       "bool",
	KindStringList: "string_list",
	KindList:       "list",
	KindStringMap:  "string_map",
	KindMap:        "map",
}

// String returns the lower snake case name of the kind.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "invalid"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind resolves a kind from its String form.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown value kind %q", s)
}

// Value is a closed tagged union over the eight argument shapes. The zero
// Value is invalid; build values with the constructors below. Values are
// immutable after construction: list and map constructors copy their input.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	ss   []string
	l    []Value
	sm   map[string]string
	m    map[string]Value
}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Double wraps a floating point number.
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// StringList wraps a list of strings.
func StringList(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: KindStringList, ss: cp}
}

// List wraps a list of arbitrary values.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, l: cp}
}

// StringMap wraps a string to string mapping.
func StringMap(m map[string]string) Value {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindStringMap, sm: cp}
}

// Map wraps a string to value mapping.
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// Kind reports the shape of the value.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether the value was built by one of the constructors.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsDouble returns the floating point payload. Int values are promoted.
func (v Value) AsDouble() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsStringList returns a copy of the string list payload.
func (v Value) AsStringList() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	cp := make([]string, len(v.ss))
	copy(cp, v.ss)
	return cp, true
}

// AsList returns a copy of the list payload.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	cp := make([]Value, len(v.l))
	copy(cp, v.l)
	return cp, true
}

// AsStringMap returns a copy of the string map payload.
func (v Value) AsStringMap() (map[string]string, bool) {
	if v.kind != KindStringMap {
		return nil, false
	}
	cp := make(map[string]string, len(v.sm))
	for k, s := range v.sm {
		cp[k] = s
	}
	return cp, true
}

// AsMap returns a copy of the map payload.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	cp := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		cp[k] = e
	}
	return cp, true
}

// Interface converts the value into plain Go types (string, int64, float64,
// bool, []string, []any, map[string]string, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindDouble:
		return v.f
	case KindBool:
		return v.b
	case KindStringList:
		cp, _ := v.AsStringList()
		return cp
	case KindList:
		out := make([]any, len(v.l))
		for i, e := range v.l {
			out[i] = e.Interface()
		}
		return out
	case KindStringMap:
		cp, _ := v.AsStringMap()
		return cp
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

// String renders the value for logs and digests.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindStringMap:
		keys := make([]string, 0, len(v.sm))
		for k := range v.sm {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + v.sm[k]
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindInvalid:
		return "<invalid>"
	}
	return fmt.Sprint(v.Interface())
}

// MarshalJSON encodes the plain Go form of the value.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// ValueOf converts a native or JSON-decoded Go value into a Value. Floats
// holding an integral number stay doubles; json.Number is split into Int or
// Double by its literal form. Any shape outside the eight is rejected.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		if !t.IsValid() {
			return Value{}, fmt.Errorf("invalid value")
		}
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return Value{}, fmt.Errorf("integer %d overflows int64", t)
		}
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("integer %d overflows int64", t)
		}
		return Int(int64(t)), nil
	case float32:
		return Double(float64(t)), nil
	case float64:
		return Double(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("malformed number %q", t.String())
		}
		return Double(f), nil
	case []string:
		return StringList(t...), nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			ev, err := ValueOf(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = ev
		}
		return Value{kind: KindList, l: items}, nil
	case []Value:
		return List(t...), nil
	case map[string]string:
		return StringMap(t), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := ValueOf(e)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = ev
		}
		return Value{kind: KindMap, m: m}, nil
	case map[string]Value:
		return Map(t), nil
	case nil:
		return Value{}, fmt.Errorf("null is not a supported value shape")
	}
	return Value{}, fmt.Errorf("unsupported value shape %T", x)
}

// ValuesOf converts every entry of a plain argument map.
func ValuesOf(args map[string]any) (map[string]Value, error) {
	out := make(map[string]Value, len(args))
	for k, x := range args {
		v, err := ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
