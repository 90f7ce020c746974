package builtin

import (
	"context"
	"sort"
	"strings"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/tool"
)

// PatchResult is the payload of patch.apply.
type PatchResult struct {
	Patched   string         `json:"patched"`
	Applied   map[string]int `json:"applied"`
	Unmatched []string       `json:"unmatched"`
	Changed   bool           `json:"changed"`
}

type patchApply struct{}

func patchDescriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:    "patch.apply",
		Summary: "Apply literal search/replace edits to a text.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("original", core.KindString, "text to patch"),
			tool.RequiredParam("replacements", core.KindStringMap, "search text to replacement"),
			tool.Param("all", core.KindBool, "replace every occurrence, default first only"),
		},
		Executor: patchApply{},
	}
}

func (patchApply) Execute(_ context.Context, args tool.Args) (any, error) {
	return ApplyPatch(args.String("original"), args.StringMap("replacements"), args.BoolOr("all", false)), nil
}

// ApplyPatch applies replacements in lexical order of their search keys.
// Empty search keys are ignored.
func ApplyPatch(original string, replacements map[string]string, all bool) PatchResult {
	keys := make([]string, 0, len(replacements))
	for k := range replacements {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	res := PatchResult{Patched: original, Applied: map[string]int{}, Unmatched: []string{}}
	for _, k := range keys {
		n := strings.Count(res.Patched, k)
		if n == 0 {
			res.Unmatched = append(res.Unmatched, k)
			continue
		}
		if all {
			res.Patched = strings.ReplaceAll(res.Patched, k, replacements[k])
		} else {
			n = 1
			res.Patched = strings.Replace(res.Patched, k, replacements[k], 1)
		}
		res.Applied[k] = n
	}
	res.Changed = res.Patched != original
	return res
}
