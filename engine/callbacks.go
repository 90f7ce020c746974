package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/tool"
)

// CallbackType defines the lifecycle points of Send where callbacks run.
//
// Callbacks hook into the send pipeline without modifying core logic:
//   - AfterAppend: the turn has been persisted
//   - BeforeTool/AfterTool: around the registry call of a tool-carrying turn
//   - AfterCompaction: the history has been compacted (and persisted if changed)
//   - OnError: any step of Send failed
//
// Callbacks run synchronously while the task lock is held. A callback error
// never unwinds the append and never skips compaction; it is returned from
// Send together with any other failure. A BeforeTool error vetoes the tool
// call.
type CallbackType string

const (
	// CallbackAfterAppend is triggered once the incoming turn is stored.
	CallbackAfterAppend CallbackType = "after_append"

	// CallbackBeforeTool is triggered before the registry executes a tool.
	// Use for authorisation, auditing, or freezing tool traffic.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool is triggered after the registry returned, with
	// either Result or Err set.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackAfterCompaction is triggered after the compaction pass.
	CallbackAfterCompaction CallbackType = "after_compaction"

	// CallbackOnError is triggered when a Send step fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries what a callback may inspect.
type CallbackContext struct {
	// TaskID is the task the turn belongs to.
	TaskID string

	// Turn is the stamped incoming turn.
	Turn core.Turn

	// Result is set for AfterTool when the call succeeded.
	Result *tool.Result

	// Report is set for AfterCompaction.
	Report *CompactionReport

	// Err is set for AfterTool on failure and for OnError.
	Err error

	// CallbackType indicates which lifecycle point triggered this execution.
	CallbackType CallbackType
}

// Callback defines the interface for send lifecycle hooks.
//
// Implementations should be fast (they hold the task lock), avoid panics and
// keep no state that depends on invocation order across tasks.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackBeforeTool,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("task %s calls %s", cc.TaskID, cc.Turn.ToolCall.Name)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager holds callbacks by type.
//
// Callbacks of one type run in registration order; the first error stops the
// remaining callbacks of that type. Registration and execution are safe for
// concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback registered for callbackType.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}
	return nil
}

// LoggingCallback forwards lifecycle events to a logging function.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackAfterCompaction, func(m string) {
//	    log.Printf("[ENGINE] %s", m)
//	})
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event with task, turn and report details.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	message := fmt.Sprintf("[%s] task: %s, turn: %s", c.callbackType, callbackCtx.TaskID, callbackCtx.Turn.ID)
	if callbackCtx.Report != nil {
		message += fmt.Sprintf(", rounds: %d, evicted: %d, chars: %d->%d",
			callbackCtx.Report.Rounds, callbackCtx.Report.Evicted, callbackCtx.Report.CharsBefore, callbackCtx.Report.CharsAfter)
	}
	if callbackCtx.Err != nil {
		message += fmt.Sprintf(", error: %v", callbackCtx.Err)
	}
	c.logger(message)
	return nil
}

// ToolGuardCallback vetoes tool calls rejected by a predicate, for example an
// allow-list per task.
type ToolGuardCallback struct {
	allow func(taskID, toolName string) error
}

// NewToolGuardCallback creates a BeforeTool guard.
func NewToolGuardCallback(allow func(taskID, toolName string) error) *ToolGuardCallback {
	return &ToolGuardCallback{allow: allow}
}

// Type returns CallbackBeforeTool.
func (c *ToolGuardCallback) Type() CallbackType {
	return CallbackBeforeTool
}

// Execute applies the predicate to the turn's tool call.
func (c *ToolGuardCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.allow == nil || callbackCtx.Turn.ToolCall == nil {
		return nil
	}
	return c.allow(callbackCtx.TaskID, callbackCtx.Turn.ToolCall.Name)
}
