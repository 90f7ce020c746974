// Package model defines the provider-agnostic completion abstraction used by
// taskmesh's drafting collaborators.
//
// Generating agent replies is outside taskmesh's scope; a Completer is only
// consulted by tools that need free text (the model-backed email drafter).
// Providers (OpenAI, Anthropic) live in sub-packages so that the tool layer
// stays decoupled from vendor SDKs, and MockCompleter serves tests.
package model
