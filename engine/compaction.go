package engine

import (
	"sort"
	"strings"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
)

const (
	// DefaultBudget is the default character budget of a task's history.
	DefaultBudget = 8000
	// DefaultMaxRounds bounds the summarisation phase.
	DefaultMaxRounds = 5
	// DefaultExcerptLength caps each excerpt quoted in a summary.
	DefaultExcerptLength = 120
)

// CompactionReport describes what a compaction pass did.
type CompactionReport struct {
	TaskID      string `json:"task_id"`
	CharsBefore int    `json:"chars_before"`
	CharsAfter  int    `json:"chars_after"`
	TurnsBefore int    `json:"turns_before"`
	TurnsAfter  int    `json:"turns_after"`
	// Rounds is the number of summarisation rounds (never above MaxRounds).
	Rounds int `json:"rounds"`
	// Evicted counts turns dropped by the eviction phase.
	Evicted int `json:"evicted"`
}

// Changed reports whether the history was rewritten.
func (r CompactionReport) Changed() bool { return r.Rounds > 0 || r.Evicted > 0 }

// Compactor keeps a history within a character budget.
//
// The first phase repeatedly folds the earlier half of the history into a
// single system summary turn, at most MaxRounds times. The second phase
// evicts turns from the front, skipping a leading system turn so the running
// summary survives, until the history fits or one turn is left.
//
// Lengths are measured in bytes of UTF-8 content, like core.ContentLength. A
// summary longer than Budget is cut to exactly Budget bytes; when the cut
// would split a multi-byte character the remainder is padded with spaces.
//
// Afterwards the total content length is at most Budget, or exactly one turn
// remains. A Compactor is a value type and safe for concurrent use.
type Compactor struct {
	Budget        int
	MaxRounds     int
	ExcerptLength int
	// NewID generates identifiers for summary turns.
	NewID func() string
}

// NewCompactor returns a Compactor with default limits.
func NewCompactor() Compactor {
	return Compactor{
		Budget:        DefaultBudget,
		MaxRounds:     DefaultMaxRounds,
		ExcerptLength: DefaultExcerptLength,
		NewID:         core.NewID,
	}
}

func (c Compactor) normalized() Compactor {
	if c.Budget < 1 {
		c.Budget = DefaultBudget
	}
	if c.MaxRounds < 0 {
		c.MaxRounds = 0
	}
	if c.ExcerptLength < 1 {
		c.ExcerptLength = DefaultExcerptLength
	}
	if c.NewID == nil {
		c.NewID = core.NewID
	}
	return c
}

// Compact returns the compacted history. The input slice is not modified;
// turns that survive are carried over unchanged.
func (c Compactor) Compact(taskID string, history []core.Turn) ([]core.Turn, CompactionReport) {
	c = c.normalized()

	h := make([]core.Turn, len(history))
	copy(h, history)
	sort.SliceStable(h, func(i, j int) bool { return h[i].CreatedAt.Before(h[j].CreatedAt) })

	report := CompactionReport{
		TaskID:      taskID,
		CharsBefore: core.ContentLength(h),
		TurnsBefore: len(h),
	}

	total := report.CharsBefore
	for total > c.Budget && len(h) > 2 && report.Rounds < c.MaxRounds {
		mid := max(1, len(h)/2)
		head, tail := h[:mid], h[mid:]

		summary := c.summarize(taskID, head)
		next := make([]core.Turn, 0, len(tail)+1)
		next = append(next, summary)
		next = append(next, tail...)
		h = next

		report.Rounds++
		total = core.ContentLength(h)
	}

	for total > c.Budget && len(h) > 1 {
		victim := 0
		if h[0].Role == core.RoleSystem {
			victim = 1
		}
		total -= len(h[victim].Content)
		h = append(h[:victim], h[victim+1:]...)
		report.Evicted++
	}

	report.CharsAfter = total
	report.TurnsAfter = len(h)
	return h, report
}

// summarize folds head into one system turn. The summary takes the timestamp
// of the last folded turn so it keeps sorting before the tail.
func (c Compactor) summarize(taskID string, head []core.Turn) core.Turn {
	content := util.Fit(Digest(head, c.ExcerptLength), c.Budget)
	return core.Turn{
		ID:        c.NewID(),
		TaskID:    taskID,
		Role:      core.RoleSystem,
		Content:   content,
		CreatedAt: head[len(head)-1].CreatedAt,
		Tokens:    core.EstimateTokens(content),
	}
}

// Digest renders the deterministic summary of turns: the distinct roles in
// first-seen order, then role-prefixed excerpts of the first two turns.
func Digest(turns []core.Turn, excerptLength int) string {
	var roles []string
	seen := make(map[core.Role]bool)
	for _, t := range turns {
		if !seen[t.Role] {
			seen[t.Role] = true
			roles = append(roles, string(t.Role))
		}
	}

	excerpts := make([]string, 0, 2)
	for _, t := range turns[:min(2, len(turns))] {
		excerpts = append(excerpts, string(t.Role)+": "+util.Truncate(t.Content, excerptLength))
	}

	var b strings.Builder
	b.WriteString("Summary of earlier conversation (roles: ")
	b.WriteString(strings.Join(roles, ", "))
	b.WriteString("): ")
	b.WriteString(strings.Join(excerpts, " | "))
	b.WriteString(" …")
	return b.String()
}
