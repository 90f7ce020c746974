package builtin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/tool"
)

// Freeze scopes. ScopeAll freezes every side-effecting tool.
const (
	ScopeAll     = "all"
	ScopeBilling = "billing"
	ScopeMarket  = "market"
)

// ErrFrozen is returned by side-effecting tools while their scope is frozen.
var ErrFrozen = errors.New("operations frozen")

// FreezeState describes one frozen scope.
type FreezeState struct {
	Scope  string `json:"scope"`
	Frozen bool   `json:"frozen"`
	Reason string `json:"reason,omitempty"`
}

// FreezeSwitch is the administrative kill switch consulted by side-effecting
// tools.
type FreezeSwitch interface {
	Set(scope string, frozen bool, reason string) FreezeState
	// Check returns an error wrapping ErrFrozen when scope or ScopeAll is frozen.
	Check(scope string) error
	States() []FreezeState
}

// MemoryFreezeSwitch is an in-process FreezeSwitch.
type MemoryFreezeSwitch struct {
	mu     sync.RWMutex
	frozen map[string]string
}

var _ FreezeSwitch = (*MemoryFreezeSwitch)(nil)

// NewMemoryFreezeSwitch creates a switch with nothing frozen.
func NewMemoryFreezeSwitch() *MemoryFreezeSwitch {
	return &MemoryFreezeSwitch{frozen: make(map[string]string)}
}

// Set freezes or thaws scope.
func (s *MemoryFreezeSwitch) Set(scope string, frozen bool, reason string) FreezeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frozen {
		s.frozen[scope] = reason
	} else {
		delete(s.frozen, scope)
		reason = ""
	}
	return FreezeState{Scope: scope, Frozen: frozen, Reason: reason}
}

// Check implements FreezeSwitch.
func (s *MemoryFreezeSwitch) Check(scope string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range []string{scope, ScopeAll} {
		if reason, ok := s.frozen[sc]; ok {
			if reason == "" {
				return fmt.Errorf("%w: %s", ErrFrozen, sc)
			}
			return fmt.Errorf("%w: %s: %s", ErrFrozen, sc, reason)
		}
	}
	return nil
}

// States lists every frozen scope, sorted.
func (s *MemoryFreezeSwitch) States() []FreezeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FreezeState, 0, len(s.frozen))
	for scope, reason := range s.frozen {
		out = append(out, FreezeState{Scope: scope, Frozen: true, Reason: reason})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out
}

type freeze struct {
	sw     FreezeSwitch
	logger logging.Logger
}

func freezeDescriptor(sw FreezeSwitch, logger logging.Logger) tool.Descriptor {
	return tool.Descriptor{
		Name:    "admin.freeze",
		Summary: "Freeze or thaw side-effecting tools (scope billing, market or all).",
		Params: []tool.ParamSpec{
			tool.RequiredParam("scope", core.KindString, "billing, market or all"),
			tool.RequiredParam("frozen", core.KindBool, "true to freeze, false to thaw"),
			tool.Param("reason", core.KindString, "why"),
		},
		Executor: &freeze{sw: sw, logger: logger},
	}
}

func (t *freeze) Execute(_ context.Context, args tool.Args) (any, error) {
	state := t.sw.Set(args.String("scope"), args.BoolOr("frozen", false), args.String("reason"))
	t.logger.Warn("admin.freeze", "scope", state.Scope, "frozen", state.Frozen, "reason", state.Reason)
	return map[string]any{"changed": state, "frozen": t.sw.States()}, nil
}
