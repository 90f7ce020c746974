package core

import (
	"context"
	"errors"
)

var (
	// ErrStorage marks failures surfaced by a MessageStore implementation.
	// Implementations wrap the underlying cause so errors.Is/As still reach it.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidTurn is returned when a turn violates a structural invariant.
	ErrInvalidTurn = errors.New("invalid turn")
)

// MessageStore persists the ordered per-task conversation log. Any
// implementation must provide read-your-writes within a single process and
// must surface I/O failures as errors instead of blocking indefinitely.
type MessageStore interface {
	// Append adds a turn to the end of its task's history, creating the
	// history on first use. Turn IDs are unique within a task; a duplicate
	// fails with ErrStorage.
	Append(ctx context.Context, turn Turn) error
	// History returns the task's turns ordered by CreatedAt. An unknown task
	// yields an empty history, not an error.
	History(ctx context.Context, taskID string) ([]Turn, error)
	// ReplaceHistory swaps the task's history for the given sequence.
	ReplaceHistory(ctx context.Context, taskID string, turns []Turn) error
	// RemoveAll empties the task's history.
	RemoveAll(ctx context.Context, taskID string) error
}
