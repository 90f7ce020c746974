package builtin

import (
	"context"
	"strings"
	"unicode"

	"github.com/hupe1980/taskmesh/compliance"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/tool"
)

// RedactionMask replaces sensitive spans in text.sanitize output.
const RedactionMask = "[REDACTED]"

// SanitizeResult is the payload of text.sanitize.
type SanitizeResult struct {
	Text      string   `json:"text"`
	Redacted  int      `json:"redacted"`
	Flags     []string `json:"flags,omitempty"`
	Truncated bool     `json:"truncated"`
}

type sanitize struct {
	scanner compliance.Scanner
}

func sanitizeDescriptor(s compliance.Scanner) tool.Descriptor {
	return tool.Descriptor{
		Name:    "text.sanitize",
		Summary: "Normalise text, optionally stripping HTML and redacting sensitive data.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("text", core.KindString, "text to clean"),
			tool.Param("strip_html", core.KindBool, "remove markup, default false"),
			tool.Param("redact", core.KindBool, "mask emails, phone numbers, secrets, default false"),
			tool.Param("max_length", core.KindInt, "truncate to this many bytes"),
		},
		Executor: &sanitize{scanner: s},
	}
}

func (t *sanitize) Execute(ctx context.Context, args tool.Args) (any, error) {
	text := args.String("text")
	if args.BoolOr("strip_html", false) {
		text = compliance.StripHTML(text)
	}
	text = stripControl(text)

	res := SanitizeResult{}
	if args.BoolOr("redact", false) {
		report, err := t.scanner.Scan(ctx, text, compliance.FormatText)
		if err != nil {
			return nil, err
		}
		text = compliance.Redact(report, RedactionMask)
		res.Redacted = len(report.Details)
		res.Flags = report.Flags
	}

	if limit := args.IntOr("max_length", 0); limit > 0 && int64(len(text)) > limit {
		text = util.Truncate(text, int(limit))
		res.Truncated = true
	}
	res.Text = text
	return res, nil
}

// stripControl drops control characters other than newlines and tabs and
// collapses blank runs within each line.
func stripControl(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return collapseSpaces(cleaned)
}
