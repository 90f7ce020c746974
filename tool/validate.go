package tool

import (
	"fmt"

	"github.com/hupe1980/taskmesh/core"
)

// Validate checks args against params in declaration order and returns the
// validated set. Absent optional parameters are skipped, absent required ones
// fail. A KindDouble parameter accepts an int, which is promoted to a double
// in the result. Undeclared keys are dropped.
func Validate(tool string, params []ParamSpec, args map[string]core.Value) (Args, error) {
	out := make(Args, len(params))
	for _, p := range params {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return nil, &ValidationError{Tool: tool, Param: p.Name, Expected: p.Kind.String(), Actual: "missing"}
			}
			continue
		}

		switch {
		case v.Kind() == p.Kind:
			out[p.Name] = v
		case p.Kind == core.KindDouble && v.Kind() == core.KindInt:
			f, _ := v.AsDouble()
			out[p.Name] = core.Double(f)
		default:
			return nil, &ValidationError{Tool: tool, Param: p.Name, Expected: p.Kind.String(), Actual: v.Kind().String()}
		}
	}
	return out, nil
}

// convertDeclared turns raw caller arguments into values, visiting only the
// declared parameters in declaration order. Undeclared keys are ignored and
// nil counts as absent. A conversion failure is reported only when every
// earlier parameter validates, so the first declared problem wins.
func convertDeclared(d Descriptor, raw map[string]any, convert func(p ParamSpec, x any) (core.Value, error)) (map[string]core.Value, error) {
	out := make(map[string]core.Value, len(d.Params))
	for i, p := range d.Params {
		x, present := raw[p.Name]
		if !present || x == nil {
			continue
		}
		v, err := convert(p, x)
		if err != nil {
			if _, earlier := Validate(d.Name, d.Params[:i], out); earlier != nil {
				return nil, earlier
			}
			return nil, &ValidationError{Tool: d.Name, Param: p.Name, Expected: p.Kind.String(), Actual: err.Error()}
		}
		out[p.Name] = v
	}
	return out, nil
}

func nativeValue(_ ParamSpec, x any) (core.Value, error) {
	v, err := core.ValueOf(x)
	if err != nil {
		return core.Value{}, fmt.Errorf("%T", x)
	}
	return v, nil
}
