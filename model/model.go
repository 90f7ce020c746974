package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Message roles understood by every provider.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prompt message.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Prompt is a provider independent completion request.
type Prompt struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
}

// UserPrompt builds a single-message prompt.
func UserPrompt(system, text string) Prompt {
	return Prompt{System: system, Messages: []Message{{Role: RoleUser, Text: text}}}
}

// TokenUsage captures token usage statistics for a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the final text produced for a Prompt.
type Completion struct {
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "end_turn", ...
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a completer implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock"
}

// Completer is the minimal interface the drafting tools require.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (Completion, error)

	// Info returns information about the implementation.
	Info() Info
}

// MockCompleter is a deterministic in-memory Completer for tests & examples.
type MockCompleter struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	prompts   []Prompt
}

var _ Completer = (*MockCompleter)(nil)

// NewMockCompleter constructs a MockCompleter.
func NewMockCompleter(name string) *MockCompleter {
	return &MockCompleter{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for the text of the last message.
func (m *MockCompleter) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Complete implements Completer. Unknown prompts are echoed back.
func (m *MockCompleter) Complete(ctx context.Context, p Prompt) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	if len(p.Messages) == 0 {
		return Completion{}, fmt.Errorf("no messages provided")
	}
	last := p.Messages[len(p.Messages)-1].Text

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	full, ok := m.responses[last]
	if !ok {
		full = "Mock response to: " + last
	}
	words := len(strings.Fields(last))
	return Completion{
		Text:         full,
		FinishReason: "stop",
		Usage:        &TokenUsage{PromptTokens: words, CompletionTokens: len(strings.Fields(full)), TotalTokens: words + len(strings.Fields(full))},
	}, nil
}

// Prompts returns every prompt received so far.
func (m *MockCompleter) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}

// Info implements Completer.
func (m *MockCompleter) Info() Info { return m.info }
