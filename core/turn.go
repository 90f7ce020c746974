package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the persona that authored a turn. The set is closed.
type Role string

const (
	RoleSystem    Role = "system"
	RoleManager   Role = "manager"
	RoleWorker    Role = "worker"
	RoleValidator Role = "validator"
	RoleAdvisor   Role = "advisor"
	RoleUser      Role = "user"
)

// Roles lists every valid role in declaration order.
var Roles = []Role{RoleSystem, RoleManager, RoleWorker, RoleValidator, RoleAdvisor, RoleUser}

// Valid reports whether r is one of the closed set of roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole converts a string to a Role, rejecting unknown personas.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// ToolCall is a tool invocation request embedded in exactly one Turn.
type ToolCall struct {
	Name      string           `json:"name"`
	Arguments map[string]Value `json:"arguments,omitempty"`
}

// Clone returns a copy whose argument map can be mutated independently.
func (tc *ToolCall) Clone() *ToolCall {
	if tc == nil {
		return nil
	}
	args := make(map[string]Value, len(tc.Arguments))
	for k, v := range tc.Arguments {
		args[k] = v
	}
	return &ToolCall{Name: tc.Name, Arguments: args}
}

// Turn is a single conversational message scoped to a task. After it has been
// appended, ID and TaskID never change; compaction may replace the turn in the
// stored history with a summary but never edits it in place.
type Turn struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ToolCall  *ToolCall `json:"tool_call,omitempty"`
	Tokens    int       `json:"tokens"`
}

// charsPerToken is the rough heuristic used for token cost estimation.
const charsPerToken = 4

// EstimateTokens returns an approximate token count for text.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// NewTurn builds an unstamped turn; the engine assigns CreatedAt on Send.
func NewTurn(taskID string, role Role, content string) Turn {
	return Turn{
		ID:      NewID(),
		TaskID:  taskID,
		Role:    role,
		Content: content,
		Tokens:  EstimateTokens(content),
	}
}

// WithToolCall returns a copy of the turn carrying the given tool call.
func (t Turn) WithToolCall(name string, args map[string]Value) Turn {
	t.ToolCall = (&ToolCall{Name: name, Arguments: args}).Clone()
	return t
}

// Clone returns a deep copy of the turn.
func (t Turn) Clone() Turn {
	t.ToolCall = t.ToolCall.Clone()
	return t
}

// Validate checks the structural invariants required before a turn may be appended.
func (t Turn) Validate() error {
	if t.TaskID == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidTurn)
	}
	if !t.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, t.Role)
	}
	if t.ToolCall != nil && t.ToolCall.Name == "" {
		return fmt.Errorf("%w: tool call without a name", ErrInvalidTurn)
	}
	return nil
}

// ContentLength sums the content length of every turn in history.
func ContentLength(history []Turn) int {
	total := 0
	for _, t := range history {
		total += len(t.Content)
	}
	return total
}

// CloneTurns deep copies a history slice.
func CloneTurns(history []Turn) []Turn {
	out := make([]Turn, len(history))
	for i, t := range history {
		out[i] = t.Clone()
	}
	return out
}

// NewID generates a new unique identifier for turns.
func NewID() string { return uuid.NewString() }
