package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// ErrInjected is the cause wrapped by every FaultyStore failure.
var ErrInjected = errors.New("injected failure")

// FaultyStore wraps a MessageStore and fails selected operations on demand.
type FaultyStore struct {
	core.MessageStore

	mu          sync.Mutex
	failAppend  bool
	failHistory bool
	failReplace bool
	replaces    int
}

var _ core.MessageStore = (*FaultyStore)(nil)

// NewFaultyStore wraps inner.
func NewFaultyStore(inner core.MessageStore) *FaultyStore {
	return &FaultyStore{MessageStore: inner}
}

// FailAppend toggles Append failures.
func (s *FaultyStore) FailAppend(on bool) { s.mu.Lock(); s.failAppend = on; s.mu.Unlock() }

// FailHistory toggles History failures.
func (s *FaultyStore) FailHistory(on bool) { s.mu.Lock(); s.failHistory = on; s.mu.Unlock() }

// FailReplace toggles ReplaceHistory failures.
func (s *FaultyStore) FailReplace(on bool) { s.mu.Lock(); s.failReplace = on; s.mu.Unlock() }

// Replaces returns how many ReplaceHistory calls reached the wrapped store.
func (s *FaultyStore) Replaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaces
}

func (s *FaultyStore) Append(ctx context.Context, turn core.Turn) error {
	s.mu.Lock()
	fail := s.failAppend
	s.mu.Unlock()
	if fail {
		return errors.Join(core.ErrStorage, ErrInjected)
	}
	return s.MessageStore.Append(ctx, turn)
}

func (s *FaultyStore) History(ctx context.Context, taskID string) ([]core.Turn, error) {
	s.mu.Lock()
	fail := s.failHistory
	s.mu.Unlock()
	if fail {
		return nil, errors.Join(core.ErrStorage, ErrInjected)
	}
	return s.MessageStore.History(ctx, taskID)
}

func (s *FaultyStore) ReplaceHistory(ctx context.Context, taskID string, turns []core.Turn) error {
	s.mu.Lock()
	fail := s.failReplace
	if !fail {
		s.replaces++
	}
	s.mu.Unlock()
	if fail {
		return errors.Join(core.ErrStorage, ErrInjected)
	}
	return s.MessageStore.ReplaceHistory(ctx, taskID, turns)
}
