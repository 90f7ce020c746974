package builtin

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/tool"
)

// Format styles accepted by doc.format.
const (
	StylePlain    = "plain"
	StyleFormal   = "formal"
	StyleCasual   = "casual"
	StyleBullet   = "bullet"
	StyleMarkdown = "markdown"
	StyleHTML     = "html"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type docFormat struct{}

func docFormatDescriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:    "doc.format",
		Summary: "Reformat text in a given style (plain, formal, casual, bullet, markdown, html).",
		Params: []tool.ParamSpec{
			tool.RequiredParam("input", core.KindString, "text to format"),
			tool.Param("style", core.KindString, "target style, default plain"),
			tool.Param("title", core.KindString, "optional heading"),
		},
		Executor: docFormat{},
	}
}

func (docFormat) Execute(_ context.Context, args tool.Args) (any, error) {
	input := args.String("input")
	style := strings.ToLower(args.StringOr("style", StylePlain))
	title := args.String("title")

	formatted, err := FormatText(input, style, title)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"formatted": formatted,
		"style":     style,
		"length":    len(formatted),
	}, nil
}

// FormatText renders input in style. The input text is always carried
// through verbatim apart from whitespace normalisation.
func FormatText(input, style, title string) (string, error) {
	text := collapseSpaces(input)
	switch style {
	case StylePlain:
		return withTitle(title, "", text), nil
	case StyleFormal:
		return withTitle(title, "", "Dear reader,\n\n"+terminate(capitalize(text))+"\n\nKind regards"), nil
	case StyleCasual:
		return withTitle(title, "", "Hey! "+text), nil
	case StyleBullet:
		lines := splitSentences(text)
		for i, l := range lines {
			lines[i] = "- " + l
		}
		return withTitle(title, "", strings.Join(lines, "\n")), nil
	case StyleMarkdown:
		return withTitle(title, "# ", input), nil
	case StyleHTML:
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(withTitle(title, "# ", input)), &buf); err != nil {
			return "", fmt.Errorf("render markdown: %w", err)
		}
		return buf.String(), nil
	}
	return "", fmt.Errorf("unknown style %q", style)
}

func withTitle(title, marker, body string) string {
	if title == "" {
		return body
	}
	return marker + title + "\n\n" + body
}

// collapseSpaces trims every line and squeezes runs of blanks.
func collapseSpaces(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func terminate(s string) string {
	if s == "" || strings.ContainsRune(".!?", rune(s[len(s)-1])) {
		return s
	}
	return s + "."
}

// splitSentences splits on line breaks and sentence punctuation.
func splitSentences(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		start := 0
		for i := 0; i < len(line); i++ {
			if strings.IndexByte(".!?", line[i]) >= 0 && (i+1 == len(line) || line[i+1] == ' ') {
				if part := strings.TrimSpace(line[start : i+1]); part != "" {
					out = append(out, part)
				}
				start = i + 1
			}
		}
		if part := strings.TrimSpace(line[start:]); part != "" {
			out = append(out, part)
		}
	}
	return out
}
