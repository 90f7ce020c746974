// Package taskmesh provides a high-level façade over the session engine, the
// tool registry and the built-in tool catalog. Most applications interact
// with this package by:
//  1. Creating a TaskMesh via New() (optionally overriding the in‑memory
//     store, the collaborators of the built-in tools or the logger), or via
//     NewFromConfig for a viper loaded configuration
//  2. Sending turns for a task with Send; tool calls carried by a turn are
//     dispatched through the registry and the history is compacted
//  3. Reading histories back with History, or calling tools directly
//
// All defaults are safe for local development and testing; production
// deployments typically supply a durable store and a structured logger.
package taskmesh

import (
	"context"
	"errors"
	"fmt"
	"io"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/market"
	"github.com/hupe1980/taskmesh/model/anthropic"
	"github.com/hupe1980/taskmesh/model/openai"
	"github.com/hupe1980/taskmesh/retrieval"
	"github.com/hupe1980/taskmesh/session"
	"github.com/hupe1980/taskmesh/tool"
	"github.com/hupe1980/taskmesh/tool/builtin"
)

// Options configures the TaskMesh instance.
type Options struct {
	// EngineConfig holds the compaction limits.
	EngineConfig engine.Config

	// Store persists per-task histories (defaults to an in-memory store).
	Store core.MessageStore

	// Registry receives the built-in tools (defaults to a fresh registry).
	Registry *tool.Registry

	// Services are the collaborators of the built-in tools. Nil members get
	// in-memory defaults.
	Services builtin.Services

	// DisableBuiltins leaves the registry without the built-in catalog.
	DisableBuiltins bool

	// Callbacks hook into the send pipeline. Optional.
	Callbacks *engine.CallbackManager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// TaskMesh is the high-level façade aggregating the engine and the registry.
type TaskMesh struct {
	opts    Options
	engine  *engine.Engine
	closers []io.Closer
}

// New creates a new TaskMesh instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*TaskMesh, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	if opts.Registry == nil {
		opts.Registry = tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = opts.Logger })
	}
	if opts.Services.Logger == nil {
		opts.Services.Logger = opts.Logger
	}

	if !opts.DisableBuiltins {
		if err := builtin.Register(opts.Registry, opts.Services); err != nil {
			return nil, err
		}
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Store = opts.Store
		o.Registry = opts.Registry
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})

	return &TaskMesh{opts: opts, engine: e}, nil
}

// NewFromConfig builds a TaskMesh from a loaded configuration. The SQL store
// is opened (and migrated) here and released by Close. optFns run after the
// configuration has been applied and may override any of it.
func NewFromConfig(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*TaskMesh, error) {
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := NewLogger(cfg.Log)

	var (
		store   core.MessageStore
		closers []io.Closer
	)
	switch cfg.Store.Backend {
	case "sql":
		sqlStore, err := session.OpenSQLStore(ctx, cfg.Store.DSN, func(o *session.SQLOptions) {
			o.OpTimeout = cfg.Store.OpTimeout
			o.Logger = logger
		})
		if err != nil {
			return nil, err
		}
		store = sqlStore
		closers = append(closers, sqlStore)
	default:
		store = session.NewInMemoryStore()
	}

	services := builtin.Services{
		Fetcher: builtin.NewHTTPFetcher(func(o *builtin.HTTPFetcherOptions) {
			o.Timeout = cfg.Tools.FetchTimeout
			o.MaxBytes = cfg.Tools.FetchMaxBytes
		}),
		Drafter: newDrafter(cfg.Tools),
		Retrieval: retrieval.NewIndex(func(o *retrieval.Options) {
			o.ChunkSize = cfg.Tools.Retrieval.ChunkSize
			o.Workers = cfg.Tools.Retrieval.Workers
			o.Exclude = cfg.Tools.Retrieval.Exclude
			o.Logger = logger
		}),
		Market: market.NewCatalog(market.SampleListings(), func(o *market.Options) {
			if cfg.Tools.ProposalAccept > 0 {
				o.AcceptRatio = cfg.Tools.ProposalAccept
			}
		}),
		Logger: logger,
	}

	fns := append([]func(o *Options){func(o *Options) {
		o.EngineConfig = engine.Config{
			Budget:        cfg.Engine.Budget,
			MaxRounds:     cfg.Engine.MaxRounds,
			ExcerptLength: cfg.Engine.ExcerptLength,
		}
		if cfg.Engine.MaxRounds == 0 {
			o.EngineConfig.MaxRounds = -1
		}
		o.Store = store
		o.Services = services
		o.Logger = logger
	}}, optFns...)

	m, err := New(fns...)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	m.closers = closers
	return m, nil
}

// NewLogger builds the Logger selected by cfg. Unknown backends and "none"
// yield the NoOp logger.
func NewLogger(cfg config.LogConfig) logging.Logger {
	level := logging.ParseLevel(cfg.Level)
	switch cfg.Backend {
	case "slog":
		return logging.NewSlogLogger(level, cfg.Format, cfg.AddSource).WithComponent("taskmesh")
	case "zerolog":
		return logging.NewZerologLogger(nil, level, cfg.Format)
	}
	return logging.NoOpLogger{}
}

func newDrafter(cfg config.ToolsConfig) builtin.Drafter {
	switch cfg.DraftProvider {
	case "openai":
		return builtin.NewModelDrafter(openai.NewCompleter(func(o *openai.Options) {
			if cfg.DraftModel != "" {
				o.Model = cfg.DraftModel
			}
		}))
	case "anthropic":
		return builtin.NewModelDrafter(anthropic.NewCompleter(func(o *anthropic.Options) {
			if cfg.DraftModel != "" {
				o.Model = anthropicsdk.Model(cfg.DraftModel)
			}
		}))
	}
	return builtin.NewTemplateDrafter()
}

// Send appends turn to its task, dispatches its tool call and compacts the
// history. See engine.Engine.Send for the failure semantics.
func (m *TaskMesh) Send(ctx context.Context, turn core.Turn) (core.Turn, error) {
	return m.engine.Send(ctx, turn)
}

// History returns a task's stored history.
func (m *TaskMesh) History(ctx context.Context, taskID string) ([]core.Turn, error) {
	return m.engine.History(ctx, taskID)
}

// Clear empties a task's history.
func (m *TaskMesh) Clear(ctx context.Context, taskID string) error {
	return m.engine.Clear(ctx, taskID)
}

// Compact runs a compaction pass outside of Send.
func (m *TaskMesh) Compact(ctx context.Context, taskID string) (engine.CompactionReport, error) {
	return m.engine.Compact(ctx, taskID)
}

// Call invokes a tool directly with native Go arguments, bypassing history.
func (m *TaskMesh) Call(ctx context.Context, name string, args map[string]any) (tool.Result, error) {
	return m.opts.Registry.CallNative(ctx, name, args)
}

// CallJSON invokes a tool with raw JSON (or JSONC) arguments, as produced by
// a model.
func (m *TaskMesh) CallJSON(ctx context.Context, name string, raw []byte) (tool.Result, error) {
	return m.opts.Registry.CallJSON(ctx, name, raw)
}

// Registry exposes the tool registry, e.g. to register custom tools.
func (m *TaskMesh) Registry() *tool.Registry { return m.opts.Registry }

// Engine exposes the underlying engine.
func (m *TaskMesh) Engine() *engine.Engine { return m.engine }

// Close releases resources opened by NewFromConfig.
func (m *TaskMesh) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}
