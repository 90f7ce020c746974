package engine

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
)

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func uniformHistory(n, size int) []core.Turn {
	b := testutil.NewHistoryBuilder("task", base)
	for i := 0; i < n; i++ {
		role := core.RoleWorker
		if i%2 == 1 {
			role = core.RoleManager
		}
		b.Say(role, strings.Repeat(string(rune('a'+i%26)), size))
	}
	return b.Build()
}

func TestCompactor_WithinBudgetIsUnchanged(t *testing.T) {
	h := uniformHistory(4, 10)
	c := NewCompactor()

	out, report := c.Compact("task", h)

	assert.Equal(t, h, out)
	assert.False(t, report.Changed())
	assert.Equal(t, 40, report.CharsBefore)
	assert.Equal(t, 40, report.CharsAfter)
}

func TestCompactor_BudgetConvergence(t *testing.T) {
	for _, budget := range []int{1, 10, 80, 500, 1000, 5000} {
		for _, n := range []int{1, 2, 3, 7, 64} {
			t.Run(fmt.Sprintf("budget=%d/n=%d", budget, n), func(t *testing.T) {
				c := NewCompactor()
				c.Budget = budget

				out, report := c.Compact("task", uniformHistory(n, 100))

				total := core.ContentLength(out)
				assert.True(t, total <= budget || len(out) == 1, "total %d over budget %d with %d turns", total, budget, len(out))
				assert.LessOrEqual(t, report.Rounds, DefaultMaxRounds)
				assert.Equal(t, total, report.CharsAfter)
				assert.Equal(t, len(out), report.TurnsAfter)
			})
		}
	}
}

func TestCompactor_StopsAfterMaxRounds(t *testing.T) {
	c := NewCompactor()
	c.Budget = 10

	out, report := c.Compact("task", uniformHistory(64, 100))

	assert.Equal(t, DefaultMaxRounds, report.Rounds)
	require.Len(t, out, 1)
	assert.Equal(t, core.RoleSystem, out[0].Role)
	assert.Len(t, out[0].Content, 10)
	assert.Positive(t, report.Evicted)
}

func TestCompactor_SummaryIsExactlyBudgetWithMultiByteContent(t *testing.T) {
	for _, budget := range []int{101, 102} {
		t.Run(fmt.Sprint(budget), func(t *testing.T) {
			b := testutil.NewHistoryBuilder("task", base)
			for i := 0; i < 32; i++ {
				b.Say(core.RoleWorker, strings.Repeat("é", 60))
			}
			c := NewCompactor()
			c.Budget = budget

			out, _ := c.Compact("task", b.Build())

			require.Len(t, out, 1)
			assert.Equal(t, core.RoleSystem, out[0].Role)
			assert.Len(t, out[0].Content, budget)
			assert.True(t, utf8.ValidString(out[0].Content))
		})
	}
}

func TestCompactor_PreservesIdentityOfSurvivors(t *testing.T) {
	h := uniformHistory(12, 100)
	c := NewCompactor()
	c.Budget = 900

	out, _ := c.Compact("task", h)

	byID := make(map[string]core.Turn, len(h))
	for _, t := range h {
		byID[t.ID] = t
	}
	for _, got := range out {
		if orig, ok := byID[got.ID]; ok {
			assert.Equal(t, orig, got)
			continue
		}
		assert.Equal(t, core.RoleSystem, got.Role, "only summaries may be new")
		assert.Equal(t, "task", got.TaskID)
	}
}

func TestCompactor_DoesNotModifyInput(t *testing.T) {
	h := uniformHistory(10, 100)
	snapshot := core.CloneTurns(h)
	c := NewCompactor()
	c.Budget = 50

	_, _ = c.Compact("task", h)

	assert.Equal(t, snapshot, h)
}

func TestCompactor_SummaryKeepsOrder(t *testing.T) {
	c := NewCompactor()
	c.Budget = 900

	out, report := c.Compact("task", uniformHistory(12, 100))

	require.Positive(t, report.Rounds)
	assert.Equal(t, core.RoleSystem, out[0].Role)
	for i := 1; i < len(out); i++ {
		assert.False(t, out[i].CreatedAt.Before(out[i-1].CreatedAt))
	}
}

func TestCompactor_EvictionKeepsLeadingSystemTurn(t *testing.T) {
	h := testutil.NewHistoryBuilder("task", base).
		Say(core.RoleSystem, "rules").
		Say(core.RoleWorker, strings.Repeat("w", 40)).
		Build()
	c := NewCompactor()
	c.Budget = 20

	out, report := c.Compact("task", h)

	require.Len(t, out, 1)
	assert.Equal(t, "rules", out[0].Content)
	assert.Equal(t, 1, report.Evicted)
	assert.Zero(t, report.Rounds)
}

func TestCompactor_NegativeMaxRoundsOnlyEvicts(t *testing.T) {
	c := NewCompactor()
	c.Budget = 250
	c.MaxRounds = -1

	out, report := c.Compact("task", uniformHistory(6, 100))

	assert.Zero(t, report.Rounds)
	assert.Equal(t, 4, report.Evicted)
	assert.Len(t, out, 2)
}

func TestCompactor_SortsByCreatedAt(t *testing.T) {
	h := uniformHistory(3, 10)
	h[0], h[2] = h[2], h[0]

	out, _ := NewCompactor().Compact("task", h)

	assert.Equal(t, "aaaaaaaaaa", out[0].Content)
	assert.Equal(t, "cccccccccc", out[2].Content)
}

func TestDigest(t *testing.T) {
	h := testutil.NewHistoryBuilder("task", base).
		Say(core.RoleManager, "plan the work").
		Say(core.RoleWorker, strings.Repeat("x", 300)).
		Say(core.RoleManager, "never quoted").
		Say(core.RoleValidator, "checked").
		Build()

	d := Digest(h, 120)

	assert.Contains(t, d, "manager, worker, validator")
	assert.Contains(t, d, "manager: plan the work")
	assert.Contains(t, d, "worker: "+strings.Repeat("x", 120))
	assert.NotContains(t, d, strings.Repeat("x", 121))
	assert.NotContains(t, d, "never quoted")
	assert.Equal(t, d, Digest(h, 120))
}
