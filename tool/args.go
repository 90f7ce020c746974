package tool

import (
	"sort"

	"github.com/hupe1980/taskmesh/core"
)

// Args is the validated argument set handed to an executor. It only ever
// contains declared parameters, and every value matches its declared kind.
type Args map[string]core.Value

// Has reports whether the argument was supplied.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Names returns the supplied argument names, sorted.
func (a Args) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String returns the named string argument or "".
func (a Args) String(name string) string {
	s, _ := a[name].AsString()
	return s
}

// StringOr returns the named string argument, or def when absent or empty.
func (a Args) StringOr(name, def string) string {
	if s := a.String(name); s != "" {
		return s
	}
	return def
}

// IntOr returns the named integer argument, or def when absent.
func (a Args) IntOr(name string, def int64) int64 {
	if i, ok := a[name].AsInt(); ok {
		return i
	}
	return def
}

// DoubleOr returns the named numeric argument, or def when absent.
func (a Args) DoubleOr(name string, def float64) float64 {
	if f, ok := a[name].AsDouble(); ok {
		return f
	}
	return def
}

// BoolOr returns the named boolean argument, or def when absent.
func (a Args) BoolOr(name string, def bool) bool {
	if b, ok := a[name].AsBool(); ok {
		return b
	}
	return def
}

// StringList returns the named string list argument or nil.
func (a Args) StringList(name string) []string {
	l, _ := a[name].AsStringList()
	return l
}

// List returns the named list argument or nil.
func (a Args) List(name string) []core.Value {
	l, _ := a[name].AsList()
	return l
}

// StringMap returns the named string map argument or nil.
func (a Args) StringMap(name string) map[string]string {
	m, _ := a[name].AsStringMap()
	return m
}

// Map returns the named map argument or nil.
func (a Args) Map(name string) map[string]core.Value {
	m, _ := a[name].AsMap()
	return m
}
