// Package util holds small helpers shared by taskmesh packages that are not
// part of the public API.
package util

import (
	"bytes"
	"strings"
	"text/template"
)

// funcs are available to every rendered template.
var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": Title,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"bullets": func(items []string) string {
		if len(items) == 0 {
			return ""
		}
		return "- " + strings.Join(items, "\n- ")
	},
}

// RenderTemplate executes text as a text/template against data. Text without
// template markers is returned unchanged. Missing keys render as empty.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("draft").Option("missingkey=zero").Funcs(funcs).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// Title upper-cases the first byte and lower-cases the rest.
func Title(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Fit cuts s like Truncate and pads the cut result with spaces so that it is
// exactly n bytes long. Strings of at most n bytes are returned unchanged.
func Fit(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := Truncate(s, n)
	return cut + strings.Repeat(" ", n-len(cut))
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
