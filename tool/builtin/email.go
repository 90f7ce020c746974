package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/tool"
)

// EmailRequest is the input of a draft.
type EmailRequest struct {
	To        string   `json:"to"`
	Subject   string   `json:"subject"`
	Points    []string `json:"points,omitempty"`
	Tone      string   `json:"tone,omitempty"`
	Signature string   `json:"signature,omitempty"`
}

// Email is a drafted message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Drafter string `json:"drafter"`
}

// Drafter composes email bodies.
type Drafter interface {
	Draft(ctx context.Context, req EmailRequest) (Email, error)
}

// DefaultEmailTemplate is the text/template used by TemplateDrafter. It sees
// the request fields plus Greeting and Closing derived from the tone.
const DefaultEmailTemplate = `{{.Greeting}} {{.To}},

{{if .Points}}{{bullets .Points}}{{else}}I am writing regarding "{{.Subject}}".{{end}}

{{.Closing}},
{{default "The team" .Signature}}`

var tones = map[string][2]string{
	"formal":   {"Dear", "Kind regards"},
	"friendly": {"Hi", "Cheers"},
	"casual":   {"Hey", "Thanks"},
	"urgent":   {"Dear", "Please respond at your earliest convenience"},
}

// TemplateDrafter renders drafts from a text/template.
type TemplateDrafter struct {
	template string
}

var _ Drafter = (*TemplateDrafter)(nil)

// NewTemplateDrafter creates a drafter using DefaultEmailTemplate.
func NewTemplateDrafter() *TemplateDrafter {
	return &TemplateDrafter{template: DefaultEmailTemplate}
}

// NewTemplateDrafterWith creates a drafter from a custom template.
func NewTemplateDrafterWith(tmpl string) *TemplateDrafter {
	return &TemplateDrafter{template: tmpl}
}

// Draft implements Drafter. Unknown tones fall back to formal.
func (d *TemplateDrafter) Draft(_ context.Context, req EmailRequest) (Email, error) {
	tone, ok := tones[strings.ToLower(req.Tone)]
	if !ok {
		tone = tones["formal"]
	}
	body, err := util.RenderTemplate(d.template, map[string]any{
		"To":        req.To,
		"Subject":   req.Subject,
		"Points":    req.Points,
		"Signature": req.Signature,
		"Greeting":  tone[0],
		"Closing":   tone[1],
	})
	if err != nil {
		return Email{}, fmt.Errorf("render email: %w", err)
	}
	return Email{To: req.To, Subject: req.Subject, Body: body, Drafter: "template"}, nil
}

// ModelDrafter asks a language model for the draft body.
type ModelDrafter struct {
	completer model.Completer
}

var _ Drafter = (*ModelDrafter)(nil)

// NewModelDrafter creates a drafter backed by c.
func NewModelDrafter(c model.Completer) *ModelDrafter {
	return &ModelDrafter{completer: c}
}

const draftSystemPrompt = "You draft short, professional emails. Reply with the email body only, without a subject line."

// Draft implements Drafter.
func (d *ModelDrafter) Draft(ctx context.Context, req EmailRequest) (Email, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Recipient: %s\nSubject: %s\n", req.To, req.Subject)
	if req.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", req.Tone)
	}
	if len(req.Points) > 0 {
		b.WriteString("Points to cover:\n- ")
		b.WriteString(strings.Join(req.Points, "\n- "))
		b.WriteString("\n")
	}
	if req.Signature != "" {
		fmt.Fprintf(&b, "Sign as: %s\n", req.Signature)
	}

	completion, err := d.completer.Complete(ctx, model.UserPrompt(draftSystemPrompt, b.String()))
	if err != nil {
		return Email{}, fmt.Errorf("draft email: %w", err)
	}
	return Email{
		To:      req.To,
		Subject: req.Subject,
		Body:    strings.TrimSpace(completion.Text),
		Drafter: d.completer.Info().Provider + ":" + d.completer.Info().Name,
	}, nil
}

type emailDraft struct {
	drafter Drafter
}

func emailDraftDescriptor(d Drafter) tool.Descriptor {
	return tool.Descriptor{
		Name:    "email.draft",
		Summary: "Draft an email to a recipient from a subject and talking points.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("to", core.KindString, "recipient"),
			tool.RequiredParam("subject", core.KindString, "subject line"),
			tool.Param("points", core.KindStringList, "talking points"),
			tool.Param("tone", core.KindString, "formal, friendly, casual or urgent"),
			tool.Param("signature", core.KindString, "sender signature"),
		},
		Executor: &emailDraft{drafter: d},
	}
}

func (t *emailDraft) Execute(ctx context.Context, args tool.Args) (any, error) {
	return t.drafter.Draft(ctx, EmailRequest{
		To:        args.String("to"),
		Subject:   args.String("subject"),
		Points:    args.StringList("points"),
		Tone:      args.String("tone"),
		Signature: args.String("signature"),
	})
}
