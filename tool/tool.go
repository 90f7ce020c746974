// Package tool implements the tool invocation registry: a catalog of named,
// schema-typed capabilities that validates free-form arguments against each
// descriptor's parameter specs and dispatches the call to its executor.
//
// The registry never touches conversation history. Executors receive only the
// declared parameters and reach side effects through collaborators injected
// when the executor was constructed.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/taskmesh/core"
)

// Executor runs a tool with already validated arguments.
//
// Implementations hold explicit references to the collaborators they need
// (retrieval, billing, ...) and must be safe for concurrent use. The returned
// payload is forwarded to the caller uninterpreted; it should be composed of
// JSON friendly maps, slices and scalars.
type Executor interface {
	Execute(ctx context.Context, args Args) (any, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, args Args) (any, error)

// Execute calls f(ctx, args).
func (f ExecutorFunc) Execute(ctx context.Context, args Args) (any, error) { return f(ctx, args) }

// ParamSpec declares one tool argument.
type ParamSpec struct {
	// Name is the argument key.
	Name string `json:"name"`
	// Kind is the value shape the argument must have. A KindDouble parameter
	// also accepts KindInt input.
	Kind core.Kind `json:"kind"`
	// Required marks arguments that must be present.
	Required bool `json:"required"`
	// Description is shown to models when the catalog is exported.
	Description string `json:"description,omitempty"`
}

// Param is shorthand for an optional ParamSpec.
func Param(name string, kind core.Kind, description string) ParamSpec {
	return ParamSpec{Name: name, Kind: kind, Description: description}
}

// RequiredParam is shorthand for a required ParamSpec.
func RequiredParam(name string, kind core.Kind, description string) ParamSpec {
	return ParamSpec{Name: name, Kind: kind, Required: true, Description: description}
}

// Descriptor is a registered, named capability. Descriptor names are unique
// within a Registry; the order of Params decides which failure is reported
// first during validation.
type Descriptor struct {
	Name     string      `json:"name"`
	Summary  string      `json:"summary"`
	Params   []ParamSpec `json:"params"`
	Executor Executor    `json:"-"`
}

// RequiredParams returns the names of the required parameters in declaration order.
func (d Descriptor) RequiredParams() []string {
	var out []string
	for _, p := range d.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

func (d Descriptor) check() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor name is required")
	}
	if d.Executor == nil {
		return fmt.Errorf("descriptor %q has no executor", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Params))
	for _, p := range d.Params {
		if p.Name == "" {
			return fmt.Errorf("descriptor %q declares an unnamed parameter", d.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("descriptor %q declares parameter %q twice", d.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Kind < core.KindString || p.Kind > core.KindMap {
			return fmt.Errorf("descriptor %q parameter %q has invalid kind", d.Name, p.Name)
		}
	}
	return nil
}

// Result is the outcome of a successful Call.
type Result struct {
	Tool    string `json:"tool"`
	Payload any    `json:"payload"`
}
