package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/taskmesh/core"
	"github.com/tidwall/jsonc"
	"github.com/xeipuuv/gojsonschema"
)

// CallJSON runs a tool with arguments given as a JSON object, typically the
// raw arguments of a model's function call. Comments and trailing commas are
// tolerated. The document is checked against the descriptor's JSON Schema,
// decoded into values of the declared kinds and handed to Call.
func (r *Registry) CallJSON(ctx context.Context, name string, raw []byte) (Result, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return Result{}, unsupported(name)
	}

	doc := jsonc.ToJSON(raw)
	if len(bytes.TrimSpace(doc)) == 0 {
		doc = []byte("{}")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(d.JSONSchema()),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return Result{}, &ValidationError{Tool: name, Param: "(root)", Expected: "json object", Actual: err.Error()}
	}
	if !result.Valid() {
		return Result{}, schemaFailure(d, result.Errors())
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var plain map[string]any
	if err := dec.Decode(&plain); err != nil {
		return Result{}, &ValidationError{Tool: name, Param: "(root)", Expected: "json object", Actual: err.Error()}
	}

	args, err := decodeArgs(d, plain)
	if err != nil {
		return Result{}, err
	}
	return r.Call(ctx, name, args)
}

// schemaFailure reports the first declared parameter that has a schema
// error, so the result matches what Validate would have reported.
func schemaFailure(d Descriptor, errs []gojsonschema.ResultError) error {
	for _, p := range d.Params {
		for _, e := range errs {
			if e.Type() == "required" {
				if prop, _ := e.Details()["property"].(string); prop == p.Name {
					return &ValidationError{Tool: d.Name, Param: p.Name, Expected: p.Kind.String(), Actual: "missing"}
				}
				continue
			}
			field := e.Field()
			if field == p.Name || strings.HasPrefix(field, p.Name+".") {
				actual := e.Description()
				if given, ok := e.Details()["given"].(string); ok {
					actual = given
				}
				return &ValidationError{Tool: d.Name, Param: p.Name, Expected: p.Kind.String(), Actual: actual}
			}
		}
	}
	first := errs[0]
	return &ValidationError{Tool: d.Name, Param: first.Field(), Expected: "json object", Actual: first.Description()}
}

// decodeArgs converts JSON decoded values into the declared kinds. Undeclared
// keys are never looked at.
func decodeArgs(d Descriptor, plain map[string]any) (map[string]core.Value, error) {
	return convertDeclared(d, plain, func(p ParamSpec, x any) (core.Value, error) {
		return decodeAs(p.Kind, x)
	})
}

func decodeAs(kind core.Kind, x any) (core.Value, error) {
	switch kind {
	case core.KindInt:
		if n, ok := x.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return core.Int(i), nil
			}
			f, err := n.Float64()
			if err == nil && f == math.Trunc(f) && math.Abs(f) <= math.MaxInt64 {
				return core.Int(int64(f)), nil
			}
		}
	case core.KindDouble:
		if n, ok := x.(json.Number); ok {
			f, err := n.Float64()
			if err != nil {
				return core.Value{}, fmt.Errorf("malformed number %q", n.String())
			}
			return core.Double(f), nil
		}
	case core.KindStringList:
		if items, ok := x.([]any); ok {
			ss := make([]string, len(items))
			for i, e := range items {
				s, isStr := e.(string)
				if !isStr {
					return core.Value{}, fmt.Errorf("item %d is %T", i, e)
				}
				ss[i] = s
			}
			return core.StringList(ss...), nil
		}
	case core.KindStringMap:
		if m, ok := x.(map[string]any); ok {
			sm := make(map[string]string, len(m))
			for k, e := range m {
				s, isStr := e.(string)
				if !isStr {
					return core.Value{}, fmt.Errorf("key %q is %T", k, e)
				}
				sm[k] = s
			}
			return core.StringMap(sm), nil
		}
	}
	return core.ValueOf(x)
}
