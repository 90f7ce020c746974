package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// InMemoryStore is a volatile MessageStore implementation keeping per-task
// histories in a process local map. It is safe for concurrent access and best
// suited for tests or ephemeral deployments. Turns are cloned on the way in and
// on the way out so callers can never mutate stored state.
//
// Turn IDs are unique within a task, matching the (task_id, id) key of
// SQLStore; the same ID may appear in different tasks.
type InMemoryStore struct {
	mu        sync.RWMutex
	histories map[string][]core.Turn
}

// NewInMemoryStore constructs an empty in‑memory message store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{histories: make(map[string][]core.Turn)}
}

// Append adds a turn to its task's history, creating the history lazily.
func (s *InMemoryStore) Append(_ context.Context, turn core.Turn) error {
	if err := turn.Validate(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	cp := turn.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.histories[turn.TaskID] {
		if t.ID == turn.ID {
			return fmt.Errorf("%w: duplicate turn id %s in task %q", core.ErrStorage, turn.ID, turn.TaskID)
		}
	}
	s.histories[turn.TaskID] = append(s.histories[turn.TaskID], cp)
	return nil
}

// History returns a timestamp ordered copy of the task's turns.
func (s *InMemoryStore) History(_ context.Context, taskID string) ([]core.Turn, error) {
	s.mu.RLock()
	out := core.CloneTurns(s.histories[taskID])
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ReplaceHistory swaps the task's history for a copy of turns.
func (s *InMemoryStore) ReplaceHistory(_ context.Context, taskID string, turns []core.Turn) error {
	seen := make(map[string]struct{}, len(turns))
	for _, t := range turns {
		if t.TaskID != taskID {
			return fmt.Errorf("%w: turn %s belongs to task %q, not %q", core.ErrStorage, t.ID, t.TaskID, taskID)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: duplicate turn id %s in task %q", core.ErrStorage, t.ID, taskID)
		}
		seen[t.ID] = struct{}{}
	}
	cp := core.CloneTurns(turns)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[taskID] = cp
	return nil
}

// RemoveAll empties the task's history.
func (s *InMemoryStore) RemoveAll(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, taskID)
	return nil
}

// Tasks lists the identifiers of every task with a non-empty history.
func (s *InMemoryStore) Tasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.histories))
	for id, h := range s.histories {
		if len(h) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
