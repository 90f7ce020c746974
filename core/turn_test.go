package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_Parse(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(string(r))
		assert.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseRole("assistant")
	assert.Error(t, err)
}

func TestNewTurn(t *testing.T) {
	turn := NewTurn("task-1", RoleWorker, "hello world")
	assert.NotEmpty(t, turn.ID)
	assert.Equal(t, "task-1", turn.TaskID)
	assert.Equal(t, 3, turn.Tokens)
	assert.True(t, turn.CreatedAt.IsZero())
	assert.NoError(t, turn.Validate())

	other := NewTurn("task-1", RoleWorker, "hello world")
	assert.NotEqual(t, turn.ID, other.ID)
}

func TestTurn_Validate(t *testing.T) {
	cases := map[string]Turn{
		"missing task": {Role: RoleUser},
		"bad role":     {TaskID: "t", Role: "robot"},
		"unnamed tool": {TaskID: "t", Role: RoleUser, ToolCall: &ToolCall{}},
	}
	for name, turn := range cases {
		t.Run(name, func(t *testing.T) {
			err := turn.Validate()
			assert.True(t, errors.Is(err, ErrInvalidTurn), "got %v", err)
		})
	}
}

func TestTurn_CloneIsDeep(t *testing.T) {
	orig := NewTurn("t", RoleWorker, "x").WithToolCall("doc.format", map[string]Value{"input": String("a")})
	cp := orig.Clone()
	cp.ToolCall.Arguments["input"] = String("b")
	got, _ := orig.ToolCall.Arguments["input"].AsString()
	assert.Equal(t, "a", got)
}

func TestEstimateTokensAndContentLength(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))

	h := []Turn{{Content: "abc"}, {Content: "de"}}
	assert.Equal(t, 5, ContentLength(h))
}
