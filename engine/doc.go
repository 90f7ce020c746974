// Package engine implements the session orchestrator of taskmesh.
//
// The Engine is the single entry point through which turns enter a task's
// history. It couples three collaborators that know nothing about each other:
// a core.MessageStore holding per-task histories, a tool.Registry executing
// tool calls, and a Compactor keeping every history within a character
// budget.
//
// # Core Responsibilities
//
// Send Pipeline:
//   - Stamp the incoming turn (CreatedAt, and ID/Tokens when missing)
//   - Append it to the task's history
//   - Dispatch its tool call, if any, through the Registry
//   - Compact the full history and write it back when it changed
//
// Compaction:
//   - Summarisation: fold the earlier half of the history into one system
//     turn, at most MaxRounds times
//   - Eviction: drop the oldest turns (never a leading summary) until the
//     history fits the budget or one turn is left
//
// Callbacks:
//   - AfterAppend, BeforeTool, AfterTool, AfterCompaction, OnError hooks
//   - A BeforeTool error vetoes the call; other callback errors are returned
//     from Send after compaction ran
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────┐
//	│                        Engine                           │
//	│  ┌─────────────┐ ┌─────────────┐ ┌─────────────────┐    │
//	│  │    Send     │ │   Compact   │ │  History/Clear  │    │
//	│  └─────────────┘ └─────────────┘ └─────────────────┘    │
//	├─────────────────────────────────────────────────────────┤
//	│  ┌─────────────┐ ┌─────────────┐ ┌─────────────────┐    │
//	│  │  Per-task   │ │  Callbacks  │ │   Compactor     │    │
//	│  │   locks     │ │  Manager    │ │                 │    │
//	│  └─────────────┘ └─────────────┘ └─────────────────┘    │
//	├─────────────────────────────────────────────────────────┤
//	│  ┌──────────────────────┐ ┌─────────────────────────┐   │
//	│  │  core.MessageStore   │ │      tool.Registry      │   │
//	│  └──────────────────────┘ └─────────────────────────┘   │
//	└─────────────────────────────────────────────────────────┘
//
// # Usage
//
//	e := engine.New(func(o *engine.Options) {
//	    o.Config.Budget = 4000
//	    o.Registry = registry
//	    o.Logger = logger
//	})
//
//	turn := core.NewTurn("task-1", core.RoleWorker, "fetch the report").
//	    WithToolCall("web.fetch", map[string]core.Value{"url": core.String("https://example.com")})
//	stamped, err := e.Send(ctx, turn)
//	if err != nil {
//	    // The turn is stored; only the tool call (or a later step) failed.
//	}
//
// # Concurrency Model
//
//   - Sends for one task are serialised so append and compaction of two
//     Sends never interleave
//   - Sends for different tasks run concurrently
//   - The store and registry guard their own state; no lock is held across
//     an executor by the registry
//   - A slow tool delays later Sends for its own task only, because the
//     task lock spans the tool call
//
// # Error Handling
//
// A Send that returns an error with a zero Turn did not store anything. A
// Send that returns an error together with the stamped turn stored the turn;
// the error joins tool, callback and compaction failures and can be
// inspected with errors.Is against tool.ErrUnsupportedTool,
// tool.ErrInvalidArguments, tool.ErrExecutorFailure and core.ErrStorage.
package engine
