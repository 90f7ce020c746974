package anthropic

import (
	"testing"

	"github.com/hupe1980/taskmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParams_MergesConsecutiveRoles(t *testing.T) {
	c := NewCompleter(func(o *Options) { o.APIKey = "test"; o.MaxTokens = 256 })
	params := c.buildParams(model.Prompt{
		System: "draft emails",
		Messages: []model.Message{
			{Role: model.RoleUser, Text: "a"},
			{Role: "manager", Text: "b"},
			{Role: model.RoleAssistant, Text: "c"},
			{Role: model.RoleUser, Text: "d"},
		},
	})
	require.Len(t, params.Messages, 3)
	require.Len(t, params.System, 1)
	assert.Equal(t, "draft emails", params.System[0].Text)
	assert.Equal(t, int64(256), params.MaxTokens)
	assert.Equal(t, "anthropic", c.Info().Provider)
}
