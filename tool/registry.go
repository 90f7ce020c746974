package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/armon/go-radix"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Logger receives tool.call.* events.
	Logger logging.Logger
}

// Registry is the catalog of tool descriptors. Names are stored in a radix
// tree so that dotted categories ("market.", "invoice.") can be listed by
// prefix.
//
// The catalog lock is held only while reading or writing the tree, never
// while an executor runs, so a slow tool never blocks unrelated calls.
type Registry struct {
	mu     sync.RWMutex
	tree   *radix.Tree
	logger logging.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		tree:   radix.New(),
		logger: opts.Logger,
	}
}

// Register adds d to the catalog, replacing any descriptor with the same name.
func (r *Registry) Register(d Descriptor) error {
	if err := d.check(); err != nil {
		return fmt.Errorf("register tool: %w", err)
	}
	d.Params = append([]ParamSpec(nil), d.Params...)

	r.mu.Lock()
	_, replaced := r.tree.Insert(d.Name, d)
	r.mu.Unlock()

	if replaced {
		r.logger.Debug("tool.register.replaced", "tool", d.Name)
	} else {
		r.logger.Debug("tool.register", "tool", d.Name)
	}
	return nil
}

// Unregister removes a descriptor and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tree.Delete(name)
	return ok
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	v, ok := r.tree.Get(name)
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, false
	}
	return v.(Descriptor), true
}

// List returns every descriptor whose name starts with prefix, sorted by name.
// An empty prefix lists the whole catalog.
func (r *Registry) List(prefix string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, r.tree.Len())
	r.tree.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		out = append(out, v.(Descriptor))
		return false
	})
	return out
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	ds := r.List("")
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Len()
}

// Call validates args against the named descriptor and runs its executor.
//
// Error semantics:
//
//	unknown name        -> wraps ErrUnsupportedTool
//	validation failure  -> *ValidationError (errors.Is ErrInvalidArguments)
//	executor error      -> *ExecutorError (errors.Is ErrExecutorFailure)
//
// Logging fields: tool, duration_ms, error.
func (r *Registry) Call(ctx context.Context, name string, args map[string]core.Value) (Result, error) {
	d, ok := r.Lookup(name)
	if !ok {
		r.logger.Warn("tool.call.unsupported", "tool", name)
		return Result{}, unsupported(name)
	}

	start := time.Now()
	r.logger.Debug("tool.call.start", "tool", name, "args", len(args))

	validated, err := Validate(d.Name, d.Params, args)
	if err != nil {
		r.logger.Warn("tool.call.validation_failed", "tool", name, "error", err.Error())
		return Result{}, err
	}

	payload, err := d.Executor.Execute(ctx, validated)
	if tl, ok := r.logger.(toolCallLogger); ok {
		tl.LogToolCall(name, time.Since(start), err == nil, err)
	} else if err != nil {
		r.logger.Error("tool.call.error", "tool", name, "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
	} else {
		r.logger.Info("tool.call.success", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	}
	if err != nil {
		return Result{}, &ExecutorError{Tool: name, Err: err}
	}
	return Result{Tool: name, Payload: payload}, nil
}

// toolCallLogger is implemented by logging.TaskMeshLogger.
type toolCallLogger interface {
	LogToolCall(tool string, dur time.Duration, success bool, err error)
}

// CallNative is Call for plain Go argument maps (string, int64, []string,
// map[string]any, ...). Only declared keys are converted; a declared value
// outside the eight value kinds is reported as a ValidationError on that
// parameter, undeclared keys are dropped whatever their shape.
func (r *Registry) CallNative(ctx context.Context, name string, args map[string]any) (Result, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return Result{}, unsupported(name)
	}
	values, err := convertDeclared(d, args, nativeValue)
	if err != nil {
		return Result{}, err
	}
	return r.Call(ctx, name, values)
}
