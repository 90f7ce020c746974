package testutil

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// TurnBuilder provides a fluent helper for constructing turns in tests.
// Example:
//
//	t := NewTurnBuilder("task-1").Role(core.RoleManager).Content("plan").At(base).Build()
//
// Chain only the parts you need; defaults are role worker and a fresh ID.
type TurnBuilder struct {
	turn core.Turn
}

// NewTurnBuilder creates a builder for a worker turn of the given task.
func NewTurnBuilder(taskID string) *TurnBuilder {
	return &TurnBuilder{turn: core.Turn{ID: core.NewID(), TaskID: taskID, Role: core.RoleWorker}}
}

// ID overrides the generated turn ID (chainable).
func (b *TurnBuilder) ID(id string) *TurnBuilder { b.turn.ID = id; return b }

// Role sets the authoring persona (chainable).
func (b *TurnBuilder) Role(r core.Role) *TurnBuilder { b.turn.Role = r; return b }

// Content sets the text and derives the token estimate (chainable).
func (b *TurnBuilder) Content(c string) *TurnBuilder {
	b.turn.Content = c
	b.turn.Tokens = core.EstimateTokens(c)
	return b
}

// At sets the creation time (chainable).
func (b *TurnBuilder) At(ts time.Time) *TurnBuilder { b.turn.CreatedAt = ts; return b }

// ToolCall attaches a tool call built from native Go values (chainable).
// It panics on values outside the eight kinds, which is a test bug.
func (b *TurnBuilder) ToolCall(name string, args map[string]any) *TurnBuilder {
	values, err := core.ValuesOf(args)
	if err != nil {
		panic(err)
	}
	b.turn.ToolCall = &core.ToolCall{Name: name, Arguments: values}
	return b
}

// Build returns a copy of the constructed turn.
func (b *TurnBuilder) Build() core.Turn { return b.turn.Clone() }

// HistoryBuilder builds a timestamp ordered history for one task. Each added
// turn is stamped one second after the previous one.
//
//	h := NewHistoryBuilder("task-1", base).Say(core.RoleUser, "hi").Say(core.RoleWorker, "hello").Build()
type HistoryBuilder struct {
	taskID string
	next   time.Time
	turns  []core.Turn
}

// NewHistoryBuilder creates a builder whose first turn is stamped at start.
func NewHistoryBuilder(taskID string, start time.Time) *HistoryBuilder {
	return &HistoryBuilder{taskID: taskID, next: start}
}

// Say appends a turn with the given role and content (chainable).
func (b *HistoryBuilder) Say(role core.Role, content string) *HistoryBuilder {
	b.turns = append(b.turns, NewTurnBuilder(b.taskID).Role(role).Content(content).At(b.next).Build())
	b.next = b.next.Add(time.Second)
	return b
}

// Turn appends a prebuilt turn, restamping it into sequence (chainable).
func (b *HistoryBuilder) Turn(t core.Turn) *HistoryBuilder {
	t.TaskID = b.taskID
	t.CreatedAt = b.next
	b.turns = append(b.turns, t.Clone())
	b.next = b.next.Add(time.Second)
	return b
}

// Build returns a copy of the history.
func (b *HistoryBuilder) Build() []core.Turn { return core.CloneTurns(b.turns) }
