package tool

import (
	"fmt"

	"github.com/hupe1980/taskmesh/core"
)

// kindSchema maps a value kind to its JSON Schema fragment.
func kindSchema(k core.Kind) map[string]any {
	switch k {
	case core.KindString:
		return map[string]any{"type": "string"}
	case core.KindInt:
		return map[string]any{"type": "integer"}
	case core.KindDouble:
		return map[string]any{"type": "number"}
	case core.KindBool:
		return map[string]any{"type": "boolean"}
	case core.KindStringList:
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	case core.KindList:
		return map[string]any{"type": "array"}
	case core.KindStringMap:
		return map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}}
	case core.KindMap:
		return map[string]any{"type": "object"}
	}
	return map[string]any{}
}

// JSONSchema renders the descriptor's parameters as a JSON Schema object, the
// shape function-calling models expect. Undeclared properties are allowed
// because Call drops them silently.
func (d Descriptor) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Params))
	required := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		s := kindSchema(p.Kind)
		if p.Description != "" {
			s["description"] = p.Description
		}
		props[p.Name] = s
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Schema returns the JSON Schema of the named tool.
func (r *Registry) Schema(name string) (map[string]any, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return nil, unsupported(name)
	}
	return d.JSONSchema(), nil
}

// FunctionDeclaration is the catalog entry handed to a model.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Declarations exports every tool under prefix as a function declaration.
func (r *Registry) Declarations(prefix string) []FunctionDeclaration {
	ds := r.List(prefix)
	out := make([]FunctionDeclaration, len(ds))
	for i, d := range ds {
		out[i] = FunctionDeclaration{Name: d.Name, Description: d.Summary, Parameters: d.JSONSchema()}
	}
	return out
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s(%d params)", d.Name, len(d.Params))
}
