// Package anthropic provides a model.Completer for the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/taskmesh/model"
)

// Options configures the Anthropic adapter (temperature, model id, max
// tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Completer wraps the Anthropic Messages API behind model.Completer.
type Completer struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Completer = (*Completer)(nil)

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   1024,
	}
}

// NewCompleter creates a Completer using the official client. Without an
// explicit APIKey the client reads ANTHROPIC_API_KEY.
func NewCompleter(optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Completer{client: &client, opts: opts}
}

// NewCompleterFromClient creates a Completer from an existing client.
func NewCompleterFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Completer{client: client, opts: opts}
}

// buildParams converts a prompt into Messages API parameters. Consecutive
// messages of the same role are merged since the API requires alternation.
func (c *Completer) buildParams(p model.Prompt) anthropic.MessageNewParams {
	var messages []anthropic.MessageParam
	var pending []string
	role := ""
	flush := func() {
		if len(pending) == 0 {
			return
		}
		block := anthropic.NewTextBlock(strings.Join(pending, "\n\n"))
		if role == model.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
		pending = nil
	}
	for _, m := range p.Messages {
		r := m.Role
		if r != model.RoleAssistant {
			r = model.RoleUser
		}
		if r != role {
			flush()
			role = r
		}
		if m.Text != "" {
			pending = append(pending, m.Text)
		}
	}
	flush()

	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		Messages:    messages,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}
	return params
}

// Complete implements model.Completer.
func (c *Completer) Complete(ctx context.Context, p model.Prompt) (model.Completion, error) {
	if len(p.Messages) == 0 {
		return model.Completion{}, fmt.Errorf("no messages provided")
	}

	resp, err := c.client.Messages.New(ctx, c.buildParams(p))
	if err != nil {
		return model.Completion{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}
	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)

	return model.Completion{
		Text:         text.String(),
		FinishReason: finishReason,
		Usage:        &model.TokenUsage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

// Info returns metadata describing this implementation.
func (c *Completer) Info() model.Info {
	return model.Info{Name: string(c.opts.Model), Provider: "anthropic"}
}
