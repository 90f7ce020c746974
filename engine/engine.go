package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/session"
	"github.com/hupe1980/taskmesh/tool"
)

// Config defines tuning parameters for compaction.
//
// Example:
//
//	cfg := Config{
//	    Budget:    4000,
//	    MaxRounds: 5,
//	}
type Config struct {
	// Budget is the maximum total content length, in characters, a task's
	// stored history may keep after a Send. Values below 1 select
	// DefaultBudget.
	Budget int

	// MaxRounds bounds the summarisation phase of compaction. Zero selects
	// DefaultMaxRounds; a negative value disables summarisation so that only
	// eviction runs.
	MaxRounds int

	// ExcerptLength caps every excerpt quoted in a summary turn.
	ExcerptLength int
}

// DefaultConfig provides the default compaction limits:
//   - Budget: 8000 characters
//   - MaxRounds: 5
//   - ExcerptLength: 120 characters
var DefaultConfig = Config{
	Budget:        DefaultBudget,
	MaxRounds:     DefaultMaxRounds,
	ExcerptLength: DefaultExcerptLength,
}

// Options configures an Engine instance using the functional options pattern.
//
// Default implementations are provided for every dependency so an Engine can
// be constructed with no arguments for development and tests.
//
// Example:
//
//	e := engine.New(func(o *engine.Options) {
//	    o.Store = sqlStore
//	    o.Registry = registry
//	    o.Logger = logger
//	})
type Options struct {
	// Config contains the compaction limits. Defaults to DefaultConfig.
	Config Config

	// Store persists per-task histories.
	// Defaults to an in-memory implementation if not provided.
	Store core.MessageStore

	// Registry executes tool calls carried by turns.
	// Defaults to an empty registry, so every tool call is unsupported.
	Registry *tool.Registry

	// Callbacks receives send lifecycle events. Optional.
	Callbacks *CallbackManager

	// Now stamps incoming turns. Defaults to time.Now in UTC.
	Now func() time.Time

	// Logger provides structured logging for debugging and monitoring.
	// Defaults to NoOp logger if nil to ensure no logging dependencies.
	Logger logging.Logger
}

// Engine is the session orchestrator: it appends incoming turns, dispatches
// the tool calls they carry and keeps every task's history within budget.
//
// Core Responsibilities:
//   - Stamping: every accepted turn gets a creation time (and an ID and
//     token estimate if missing)
//   - Dispatch: tool calls go through the Registry; results are logged and
//     never appended to history
//   - Compaction: after each Send the task's history is folded and evicted
//     until it fits the budget, then written back
//
// Concurrency Model:
//   - Sends for the same task are serialised by a per-task mutex, so a
//     compaction pass always observes its own append
//   - Sends for different tasks proceed concurrently
//   - The task lock is held while the turn's tool runs, so a slow tool
//     delays later Sends for the same task only; store and catalog
//     mutexes are never held across an executor
//   - Per-task locks are reference counted and dropped when idle
//
// Failure Semantics:
//
//	A failed Send means "turn persisted, side effect may or may not have
//	occurred" unless the append itself failed. Tool and callback failures
//	are returned after compaction has run.
type Engine struct {
	store     core.MessageStore
	registry  *tool.Registry
	compactor Compactor
	callbacks *CallbackManager
	now       func() time.Time
	logger    logging.Logger

	locksMu sync.Mutex
	locks   map[string]*taskLock
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

// New creates an Engine with the provided options.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Now:    func() time.Time { return time.Now().UTC() },
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Config.Budget <= 0 {
		opts.Config.Budget = DefaultBudget
	}
	if opts.Config.MaxRounds == 0 {
		opts.Config.MaxRounds = DefaultMaxRounds
	}
	if opts.Config.ExcerptLength <= 0 {
		opts.Config.ExcerptLength = DefaultExcerptLength
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	if opts.Registry == nil {
		opts.Registry = tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = opts.Logger })
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	compactor := NewCompactor()
	compactor.Budget = opts.Config.Budget
	compactor.MaxRounds = opts.Config.MaxRounds
	compactor.ExcerptLength = opts.Config.ExcerptLength

	return &Engine{
		store:     opts.Store,
		registry:  opts.Registry,
		compactor: compactor.normalized(),
		callbacks: opts.Callbacks,
		now:       opts.Now,
		logger:    opts.Logger,
		locks:     make(map[string]*taskLock),
	}
}

// Registry returns the tool registry used for dispatch.
func (e *Engine) Registry() *tool.Registry { return e.registry }

// Store returns the message store.
func (e *Engine) Store() core.MessageStore { return e.store }

// lockTask acquires the task's mutex and returns its release function.
func (e *Engine) lockTask(taskID string) func() {
	e.locksMu.Lock()
	l := e.locks[taskID]
	if l == nil {
		l = &taskLock{}
		e.locks[taskID] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, taskID)
		}
		e.locksMu.Unlock()
	}
}

// Send stamps turn, appends it to its task's history, runs its tool call if
// it carries one and compacts the history.
//
// The returned turn is the stamped input: it keeps its content and role even
// when compaction later drops it from the stored history. When the append
// fails the zero Turn and the storage error are returned. Any later failure
// (tool, callback, compaction write) is returned together with the stamped
// turn; the append is never rolled back.
//
// Logging Fields:
//
//	task_id, turn_id, role, tool, duration_ms, rounds, evicted
func (e *Engine) Send(ctx context.Context, turn core.Turn) (core.Turn, error) {
	if turn.ID == "" {
		turn.ID = core.NewID()
	}
	turn.CreatedAt = e.now()
	if turn.Tokens == 0 {
		turn.Tokens = core.EstimateTokens(turn.Content)
	}
	turn = turn.Clone()

	if err := turn.Validate(); err != nil {
		return core.Turn{}, err
	}

	unlock := e.lockTask(turn.TaskID)
	defer unlock()

	if err := e.store.Append(ctx, turn); err != nil {
		e.logger.Error("engine.send.append_failed", "task_id", turn.TaskID, "turn_id", turn.ID, "error", err)
		e.fail(ctx, turn, err)
		return core.Turn{}, err
	}
	e.logger.Debug("engine.send.appended", "task_id", turn.TaskID, "turn_id", turn.ID, "role", string(turn.Role))

	var errs []error
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterAppend, &CallbackContext{TaskID: turn.TaskID, Turn: turn}); err != nil {
		errs = append(errs, err)
	}

	if turn.ToolCall != nil {
		if err := e.dispatch(ctx, turn); err != nil {
			errs = append(errs, err)
		}
	}

	report, err := e.compactLocked(ctx, turn.TaskID)
	if err != nil {
		errs = append(errs, err)
	} else if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterCompaction, &CallbackContext{TaskID: turn.TaskID, Turn: turn, Report: &report}); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		e.fail(ctx, turn, err)
		return turn, err
	}
	return turn, nil
}

// dispatch runs the turn's tool call through the registry. The payload is
// logged, never appended.
func (e *Engine) dispatch(ctx context.Context, turn core.Turn) error {
	call := turn.ToolCall
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTool, &CallbackContext{TaskID: turn.TaskID, Turn: turn}); err != nil {
		e.logger.Warn("engine.send.tool_vetoed", "task_id", turn.TaskID, "tool", call.Name, "error", err)
		return err
	}

	start := time.Now()
	result, err := e.registry.Call(ctx, call.Name, call.Arguments)
	duration := time.Since(start).Milliseconds()

	after := &CallbackContext{TaskID: turn.TaskID, Turn: turn, Err: err}
	if err != nil {
		e.logger.Warn("engine.send.tool_failed", "task_id", turn.TaskID, "tool", call.Name, "duration_ms", duration, "error", err)
	} else {
		after.Result = &result
		e.logger.Info("engine.send.tool_result", "task_id", turn.TaskID, "tool", call.Name, "duration_ms", duration, "payload", result.Payload)
	}

	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterTool, after); cbErr != nil {
		return errors.Join(err, cbErr)
	}
	return err
}

func (e *Engine) fail(ctx context.Context, turn core.Turn, err error) {
	// OnError callbacks are observers; their own errors are only logged.
	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackOnError, &CallbackContext{TaskID: turn.TaskID, Turn: turn, Err: err}); cbErr != nil {
		e.logger.Warn("engine.callback.on_error_failed", "task_id", turn.TaskID, "error", cbErr)
	}
}

// compactLocked compacts and persists a task's history. The caller holds the
// task lock. Nothing is written when the history already fits.
func (e *Engine) compactLocked(ctx context.Context, taskID string) (CompactionReport, error) {
	history, err := e.store.History(ctx, taskID)
	if err != nil {
		e.logger.Error("engine.compaction.read_failed", "task_id", taskID, "error", err)
		return CompactionReport{TaskID: taskID}, fmt.Errorf("compaction: %w", err)
	}

	compacted, report := e.compactor.Compact(taskID, history)
	if !report.Changed() {
		return report, nil
	}

	if err := e.store.ReplaceHistory(ctx, taskID, compacted); err != nil {
		e.logger.Error("engine.compaction.write_failed", "task_id", taskID, "error", err)
		return report, fmt.Errorf("compaction: %w", err)
	}
	if cl, ok := e.logger.(compactionLogger); ok {
		cl.LogCompaction(taskID, report.TurnsBefore, report.TurnsAfter, report.Rounds, report.Evicted)
	} else {
		e.logger.Info("engine.compaction",
			"task_id", taskID,
			"chars_before", report.CharsBefore,
			"chars_after", report.CharsAfter,
			"rounds", report.Rounds,
			"evicted", report.Evicted,
		)
	}
	return report, nil
}

// compactionLogger is implemented by logging.TaskMeshLogger.
type compactionLogger interface {
	LogCompaction(taskID string, before, after, rounds, evicted int)
}

// Compact runs a compaction pass on a task outside of Send, for example after
// lowering the budget.
func (e *Engine) Compact(ctx context.Context, taskID string) (CompactionReport, error) {
	unlock := e.lockTask(taskID)
	defer unlock()
	return e.compactLocked(ctx, taskID)
}

// History returns the stored history of a task, unmodified.
func (e *Engine) History(ctx context.Context, taskID string) ([]core.Turn, error) {
	return e.store.History(ctx, taskID)
}

// Clear empties a task's history.
func (e *Engine) Clear(ctx context.Context, taskID string) error {
	unlock := e.lockTask(taskID)
	defer unlock()

	if err := e.store.RemoveAll(ctx, taskID); err != nil {
		e.logger.Error("engine.clear.failed", "task_id", taskID, "error", err)
		return err
	}
	e.logger.Info("engine.clear", "task_id", taskID)
	return nil
}
