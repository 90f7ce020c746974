package builtin

import (
	"context"
	"fmt"

	"github.com/hupe1980/taskmesh/compliance"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/tool"
)

type complianceScan struct {
	scanner compliance.Scanner
}

func complianceScanDescriptor(s compliance.Scanner) tool.Descriptor {
	return tool.Descriptor{
		Name:    "compliance.scan",
		Summary: "Scan text or HTML for personal data, secrets and risky claims.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("text", core.KindString, "content to scan"),
			tool.Param("format", core.KindString, "text or html, default text"),
		},
		Executor: &complianceScan{scanner: s},
	}
}

func (t *complianceScan) Execute(ctx context.Context, args tool.Args) (any, error) {
	format := compliance.Format(args.StringOr("format", string(compliance.FormatText)))
	if format != compliance.FormatText && format != compliance.FormatHTML {
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return t.scanner.Scan(ctx, args.String("text"), format)
}
