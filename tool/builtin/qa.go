package builtin

import (
	"context"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/retrieval"
	"github.com/hupe1980/taskmesh/tool"
)

// ChecklistItem is the outcome of one checklist entry.
type ChecklistItem struct {
	Item    string   `json:"item"`
	Passed  bool     `json:"passed"`
	Missing []string `json:"missing,omitempty"`
}

// ChecklistReport is the payload of qa.checklist.
type ChecklistReport struct {
	Passed bool            `json:"passed"`
	Score  float64         `json:"score"`
	Strict bool            `json:"strict"`
	Items  []ChecklistItem `json:"items"`
}

type checklist struct{}

func checklistDescriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:    "qa.checklist",
		Summary: "Check that an artifact covers every item of a checklist.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("items", core.KindStringList, "checklist entries"),
			tool.RequiredParam("artifact", core.KindString, "text under review"),
			tool.Param("strict", core.KindBool, "require every item, default false (half suffices)"),
		},
		Executor: checklist{},
	}
}

func (checklist) Execute(_ context.Context, args tool.Args) (any, error) {
	return RunChecklist(args.StringList("items"), args.String("artifact"), args.BoolOr("strict", false)), nil
}

// RunChecklist marks an item as passed when every token of the item occurs
// in the artifact. Strict reports pass only when all items pass; otherwise
// at least half must pass. An empty checklist passes.
func RunChecklist(items []string, artifact string, strict bool) ChecklistReport {
	present := make(map[string]bool)
	for _, tok := range retrieval.Tokenize(artifact) {
		present[tok] = true
	}

	report := ChecklistReport{Strict: strict, Items: make([]ChecklistItem, 0, len(items))}
	passed := 0
	for _, item := range items {
		res := ChecklistItem{Item: item}
		for _, tok := range retrieval.Tokenize(item) {
			if !present[tok] {
				res.Missing = append(res.Missing, tok)
			}
		}
		res.Passed = len(res.Missing) == 0
		if res.Passed {
			passed++
		}
		report.Items = append(report.Items, res)
	}

	if len(items) == 0 {
		report.Score, report.Passed = 1, true
		return report
	}
	report.Score = float64(passed) / float64(len(items))
	if strict {
		report.Passed = passed == len(items)
	} else {
		report.Passed = report.Score >= 0.5
	}
	return report
}
