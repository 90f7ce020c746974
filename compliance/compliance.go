// Package compliance scans text for personal data, secrets and prohibited
// claims. It backs the compliance.scan tool and the redaction mode of
// text.sanitize.
package compliance

import (
	"context"
	"html"
	"regexp"
	"sort"
	"strings"
)

// Severity ranks a finding.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

// String returns the lower case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return "none"
}

// Verdict is the overall outcome of a scan.
type Verdict string

const (
	VerdictPass   Verdict = "pass"
	VerdictReview Verdict = "review"
	VerdictBlock  Verdict = "block"
)

// Format selects how input is interpreted.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
)

// Finding is one rule match. Start and End are byte offsets into the scanned
// (tag-stripped for HTML) text.
type Finding struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Match    string `json:"match"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// Report is the result of a scan.
type Report struct {
	Flags   []string  `json:"flags"`
	Verdict Verdict   `json:"verdict"`
	Details []Finding `json:"details"`
	// Text is the text that was actually scanned.
	Text string `json:"-"`
}

// Scanner is the contract used by the compliance tools.
type Scanner interface {
	Scan(ctx context.Context, input string, format Format) (Report, error)
}

// Rule is a named pattern with a severity. Check, when set, filters regex
// matches (for example a Luhn test for card numbers).
type Rule struct {
	Name     string
	Severity Severity
	Pattern  *regexp.Regexp
	Check    func(match string) bool
}

// DefaultRules covers common personal data, credentials and risky claims.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "email", Severity: SeverityMedium, Pattern: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
		{Name: "phone", Severity: SeverityMedium, Pattern: regexp.MustCompile(`\+?\d{1,3}[ .\-]?\(?\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}\b`)},
		{Name: "ssn", Severity: SeverityHigh, Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{Name: "credit_card", Severity: SeverityHigh, Pattern: regexp.MustCompile(`\b(?:\d[ \-]?){13,19}\b`), Check: luhn},
		{Name: "secret", Severity: SeverityHigh, Pattern: regexp.MustCompile(`\b(?:sk|pk|ghp|xox[bap])[-_][A-Za-z0-9_\-]{16,}\b`)},
		{Name: "guarantee_claim", Severity: SeverityLow, Pattern: regexp.MustCompile(`(?i)\b(?:guaranteed (?:returns|profit|results)|risk[- ]free)\b`)},
	}
}

// RuleScanner implements Scanner over a fixed rule set.
type RuleScanner struct {
	rules []Rule
}

var _ Scanner = (*RuleScanner)(nil)

// NewRuleScanner builds a scanner. Without rules it uses DefaultRules.
func NewRuleScanner(rules ...Rule) *RuleScanner {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &RuleScanner{rules: rules}
}

var tagPattern = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]*>`)

// StripHTML removes tags, script and style bodies and unescapes entities.
func StripHTML(s string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(s, " "))
}

// Scan applies every rule. The verdict is block when any high severity rule
// matched, review for medium, and pass otherwise.
func (s *RuleScanner) Scan(ctx context.Context, input string, format Format) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	text := input
	if format == FormatHTML {
		text = StripHTML(input)
	}

	report := Report{Flags: []string{}, Verdict: VerdictPass, Details: []Finding{}, Text: text}
	worst := Severity(0)
	flagged := map[string]bool{}
	for _, r := range s.rules {
		for _, loc := range r.Pattern.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]
			if r.Check != nil && !r.Check(match) {
				continue
			}
			report.Details = append(report.Details, Finding{
				Rule:     r.Name,
				Severity: r.Severity.String(),
				Match:    match,
				Start:    loc[0],
				End:      loc[1],
			})
			if !flagged[r.Name] {
				flagged[r.Name] = true
				report.Flags = append(report.Flags, r.Name)
			}
			if r.Severity > worst {
				worst = r.Severity
			}
		}
	}
	sort.SliceStable(report.Details, func(i, j int) bool { return report.Details[i].Start < report.Details[j].Start })

	switch {
	case worst >= SeverityHigh:
		report.Verdict = VerdictBlock
	case worst == SeverityMedium:
		report.Verdict = VerdictReview
	}
	return report, nil
}

// Redact replaces every finding in the report's text with mask. Overlapping
// findings are merged.
func Redact(report Report, mask string) string {
	if len(report.Details) == 0 {
		return report.Text
	}
	var b strings.Builder
	pos := 0
	for _, f := range report.Details {
		if f.End <= pos {
			continue
		}
		start := f.Start
		if start < pos {
			start = pos
		}
		b.WriteString(report.Text[pos:start])
		b.WriteString(mask)
		pos = f.End
	}
	b.WriteString(report.Text[pos:])
	return b.String()
}

func luhn(candidate string) bool {
	var digits []int
	for _, r := range candidate {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
