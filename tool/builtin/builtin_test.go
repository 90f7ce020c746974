package builtin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/billing"
	"github.com/hupe1980/taskmesh/compliance"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/market"
	"github.com/hupe1980/taskmesh/metrics"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/retrieval"
	"github.com/hupe1980/taskmesh/tool"
)

type fakeFetcher struct {
	mu       sync.Mutex
	requests []FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return FetchResult{URL: req.URL, Status: http.StatusOK, Body: "fetched " + req.URL}, nil
}

func newRegistry(t *testing.T, svc Services) *tool.Registry {
	t.Helper()
	if svc.Fetcher == nil {
		svc.Fetcher = &fakeFetcher{}
	}
	r := tool.NewRegistry()
	require.NoError(t, Register(r, svc))
	return r
}

func call(t *testing.T, r *tool.Registry, name string, args map[string]any) any {
	t.Helper()
	res, err := r.CallNative(context.Background(), name, args)
	require.NoError(t, err)
	assert.Equal(t, name, res.Tool)
	return res.Payload
}

func TestRegister_InstallsCatalog(t *testing.T) {
	r := newRegistry(t, Services{})

	assert.Equal(t, []string{
		"admin.freeze",
		"compliance.scan",
		"doc.format",
		"email.draft",
		"invoice.create",
		"invoice.receipt",
		"market.propose",
		"market.search",
		"market.status",
		"metrics.snapshot",
		"metrics.upsert",
		"patch.apply",
		"qa.checklist",
		"rag.index",
		"rag.query",
		"routing.rebalance",
		"text.sanitize",
		"web.fetch",
	}, r.Names())
	assert.Len(t, r.List("market."), 3)
	assert.Len(t, r.List("invoice."), 2)
}

// sample returns a valid value of kind k.
func sample(k core.Kind) core.Value {
	switch k {
	case core.KindString:
		return core.String("sample")
	case core.KindInt:
		return core.Int(3)
	case core.KindDouble:
		return core.Double(1.5)
	case core.KindBool:
		return core.Bool(false)
	case core.KindStringList:
		return core.StringList("sample")
	case core.KindList:
		return core.List(core.String("sample"))
	case core.KindStringMap:
		return core.StringMap(map[string]string{"k": "v"})
	case core.KindMap:
		return core.Map(map[string]core.Value{"a": core.Double(4), "b": core.Int(2)})
	}
	panic("unknown kind")
}

// mismatch returns a value that kind k never accepts.
func mismatch(k core.Kind) core.Value {
	if k == core.KindString {
		return core.Int(1)
	}
	return core.String("wrong")
}

func TestBuiltins_ValidationCompleteness(t *testing.T) {
	r := newRegistry(t, Services{})
	ctx := context.Background()

	for _, d := range r.List("") {
		t.Run(d.Name, func(t *testing.T) {
			required := map[string]core.Value{}
			for _, p := range d.Params {
				if p.Required {
					required[p.Name] = sample(p.Kind)
				}
			}

			_, err := r.Call(ctx, d.Name, required)
			require.NoError(t, err)

			for _, p := range d.Params {
				if !p.Required {
					continue
				}
				args := map[string]core.Value{}
				for k, v := range required {
					if k != p.Name {
						args[k] = v
					}
				}
				_, err := r.Call(ctx, d.Name, args)
				var ve *tool.ValidationError
				require.ErrorAs(t, err, &ve, "missing %s", p.Name)
				assert.Equal(t, p.Name, ve.Param)
				assert.Equal(t, "missing", ve.Actual)
			}

			for _, p := range d.Params {
				args := map[string]core.Value{}
				for k, v := range required {
					args[k] = v
				}
				args[p.Name] = mismatch(p.Kind)
				_, err := r.Call(ctx, d.Name, args)
				var ve *tool.ValidationError
				require.ErrorAs(t, err, &ve, "wrong kind for %s", p.Name)
				assert.Equal(t, p.Name, ve.Param)
				assert.ErrorIs(t, err, tool.ErrInvalidArguments)
			}
		})
	}
}

func TestDocFormat_KeepsInput(t *testing.T) {
	r := newRegistry(t, Services{})

	payload := call(t, r, "doc.format", map[string]any{"input": "Hello", "style": "formal"})
	formatted, ok := payload.(map[string]any)["formatted"].(string)
	require.True(t, ok)
	assert.Contains(t, formatted, "Hello")

	for _, style := range []string{StylePlain, StyleFormal, StyleCasual, StyleBullet, StyleMarkdown, StyleHTML} {
		out, err := FormatText("Hello world. Second line", style, "Notes")
		require.NoError(t, err, style)
		assert.Contains(t, out, "Hello world", style)
		assert.Contains(t, out, "Notes", style)
	}

	html, err := FormatText("**bold** move", StyleHTML, "")
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>bold</strong>")

	bullets, err := FormatText("One. Two! Three", StyleBullet, "")
	require.NoError(t, err)
	assert.Equal(t, "- One.\n- Two!\n- Three", bullets)
}

func TestDocFormat_UnknownStyle(t *testing.T) {
	r := newRegistry(t, Services{})

	_, err := r.CallNative(context.Background(), "doc.format", map[string]any{"input": "x", "style": "gothic"})
	assert.ErrorIs(t, err, tool.ErrExecutorFailure)
}

func TestWebFetch_RequiresURL(t *testing.T) {
	r := newRegistry(t, Services{})

	_, err := r.Call(context.Background(), "web.fetch", map[string]core.Value{})
	require.ErrorIs(t, err, tool.ErrInvalidArguments)
	var ve *tool.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "url", ve.Param)
}

func TestWebFetch_UsesFetcher(t *testing.T) {
	f := &fakeFetcher{}
	r := newRegistry(t, Services{Fetcher: f})

	payload := call(t, r, "web.fetch", map[string]any{"url": "https://example.com", "headers": map[string]string{"Accept": "text/plain"}})
	assert.Equal(t, "fetched https://example.com", payload.(FetchResult).Body)
	require.Len(t, f.requests, 1)
	assert.Equal(t, "text/plain", f.requests[0].Headers["Accept"])
	assert.EqualValues(t, DefaultMaxFetchBytes, f.requests[0].MaxBytes)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("agent:" + req.Header.Get("User-Agent") + " x-token:" + req.Header.Get("X-Token")))
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	ctx := context.Background()

	res, err := f.Fetch(ctx, FetchRequest{URL: srv.URL, Headers: map[string]string{"X-Token": "abc"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "agent:taskmesh/1.0 x-token:abc", res.Body)
	assert.False(t, res.Truncated)

	res, err = f.Fetch(ctx, FetchRequest{URL: srv.URL, MaxBytes: 5})
	require.NoError(t, err)
	assert.Equal(t, "agent", res.Body)
	assert.True(t, res.Truncated)

	capped := NewHTTPFetcher(func(o *HTTPFetcherOptions) { o.MaxBytes = 3 })
	res, err = capped.Fetch(ctx, FetchRequest{URL: srv.URL, MaxBytes: 100})
	require.NoError(t, err)
	assert.Equal(t, "age", res.Body)
	assert.True(t, res.Truncated)

	_, err = f.Fetch(ctx, FetchRequest{URL: "ftp://example.com/file"})
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestRegistry_OverrideBuiltin(t *testing.T) {
	r := newRegistry(t, Services{})
	require.NoError(t, r.Register(tool.Descriptor{
		Name:   "doc.format",
		Params: []tool.ParamSpec{tool.RequiredParam("input", core.KindString, "")},
		Executor: tool.ExecutorFunc(func(_ context.Context, args tool.Args) (any, error) {
			return "custom:" + args.String("input"), nil
		}),
	}))

	assert.Equal(t, "custom:Hello", call(t, r, "doc.format", map[string]any{"input": "Hello"}))
	assert.Equal(t, 18, r.Len())
}

func TestRag_IndexAndQuery(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.md"), []byte("Invoices are settled within thirty days of issue."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gpu.md"), []byte("GPU hours are billed per started hour."), 0o600))
	r := newRegistry(t, Services{Retrieval: retrieval.NewIndex()})

	report := call(t, r, "rag.index", map[string]any{"paths": []string{dir, filepath.Join(dir, "missing.md")}, "collection": "docs"}).(retrieval.IndexReport)
	assert.Len(t, report.Files, 2)
	assert.Len(t, report.Skipped, 1)

	payload := call(t, r, "rag.query", map[string]any{"query": "when are invoices settled", "k": int64(1)}).(map[string]any)
	chunks := payload["results"].([]retrieval.Chunk)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "Invoices")
}

func TestRunChecklist(t *testing.T) {
	artifact := "The release notes cover the migration guide and the API changes."

	lenient := RunChecklist([]string{"migration guide", "API changes", "security review"}, artifact, false)
	assert.True(t, lenient.Passed)
	assert.InDelta(t, 2.0/3.0, lenient.Score, 1e-9)
	assert.Equal(t, []string{"security", "review"}, lenient.Items[2].Missing)

	strict := RunChecklist([]string{"migration guide", "security review"}, artifact, true)
	assert.False(t, strict.Passed)

	assert.True(t, RunChecklist(nil, artifact, true).Passed)
}

func TestApplyPatch(t *testing.T) {
	first := ApplyPatch("a-a-b", map[string]string{"a": "x", "zz": "y", "": "ignored"}, false)
	assert.Equal(t, "x-a-b", first.Patched)
	assert.Equal(t, map[string]int{"a": 1}, first.Applied)
	assert.Equal(t, []string{"zz"}, first.Unmatched)
	assert.True(t, first.Changed)

	all := ApplyPatch("a-a-b", map[string]string{"a": "x"}, true)
	assert.Equal(t, "x-x-b", all.Patched)
	assert.Equal(t, 2, all.Applied["a"])

	none := ApplyPatch("abc", map[string]string{"q": "r"}, true)
	assert.False(t, none.Changed)
}

func TestEmailDraft(t *testing.T) {
	r := newRegistry(t, Services{})

	email := call(t, r, "email.draft", map[string]any{
		"to":      "Alex",
		"subject": "Quarterly report",
		"points":  []string{"numbers are final", "review by Friday"},
		"tone":    "friendly",
	}).(Email)
	assert.Equal(t, "template", email.Drafter)
	assert.True(t, strings.HasPrefix(email.Body, "Hi Alex,"))
	assert.Contains(t, email.Body, "- numbers are final\n- review by Friday")
	assert.Contains(t, email.Body, "The team")

	plain := call(t, r, "email.draft", map[string]any{"to": "Sam", "subject": "Access", "signature": "Ops"}).(Email)
	assert.True(t, strings.HasPrefix(plain.Body, "Dear Sam,"))
	assert.Contains(t, plain.Body, `regarding "Access"`)
	assert.True(t, strings.HasSuffix(plain.Body, "Ops"))
}

func TestModelDrafter(t *testing.T) {
	mock := model.NewMockCompleter("draft-model")
	r := newRegistry(t, Services{Drafter: NewModelDrafter(mock)})

	email := call(t, r, "email.draft", map[string]any{"to": "Alex", "subject": "Hi", "points": []string{"ship it"}}).(Email)
	assert.Contains(t, email.Body, "Mock response to:")
	assert.Contains(t, email.Body, "ship it")
	require.Len(t, mock.Prompts(), 1)
	assert.Equal(t, draftSystemPrompt, mock.Prompts()[0].System)
}

func TestSanitize(t *testing.T) {
	r := newRegistry(t, Services{})

	res := call(t, r, "text.sanitize", map[string]any{
		"text":       "<p>Mail   me at jane@example.com\x07 now</p>",
		"strip_html": true,
		"redact":     true,
	}).(SanitizeResult)
	assert.Equal(t, "Mail me at [REDACTED] now", res.Text)
	assert.Equal(t, 1, res.Redacted)
	assert.Equal(t, []string{"email"}, res.Flags)

	short := call(t, r, "text.sanitize", map[string]any{"text": "abcdefgh", "max_length": int64(3)}).(SanitizeResult)
	assert.Equal(t, "abc", short.Text)
	assert.True(t, short.Truncated)
}

func TestMarketFlow(t *testing.T) {
	r := newRegistry(t, Services{Market: market.NewCatalog(market.SampleListings())})

	found := call(t, r, "market.search", map[string]any{"query": "gpu"}).(map[string]any)
	require.Equal(t, 1, found["count"])

	accepted := call(t, r, "market.propose", map[string]any{"listing_id": "lst_gpu_hours", "offer": int64(120), "buyer": "b1"}).(market.Proposal)
	assert.Equal(t, market.ProposalAccepted, accepted.Status)

	countered := call(t, r, "market.propose", map[string]any{"listing_id": "lst_gpu_hours", "offer": 100.0, "buyer": "b1"}).(market.Proposal)
	assert.Equal(t, market.ProposalCountered, countered.Status)
	assert.InDelta(t, 110.0, countered.Counter, 1e-9)

	status := call(t, r, "market.status", map[string]any{"proposal_id": countered.ID}).(market.Proposal)
	assert.Equal(t, countered, status)

	missing := call(t, r, "market.status", map[string]any{"proposal_id": "prop_none"}).(map[string]any)
	assert.Equal(t, false, missing["found"])
}

func TestInvoiceFlow(t *testing.T) {
	ledger := billing.NewLedger()
	r := newRegistry(t, Services{Billing: ledger})

	inv := call(t, r, "invoice.create", map[string]any{"customer": "acme", "amount": 250.0, "memo": "GPU hours"}).(billing.Invoice)
	assert.Equal(t, billing.StatusOpen, inv.Status)
	assert.Equal(t, "USD", inv.Currency)

	partial := call(t, r, "invoice.receipt", map[string]any{"invoice_id": inv.ID, "amount": int64(100)}).(ReceiptPayload)
	assert.Equal(t, billing.StatusPartial, partial.Invoice.Status)

	paid := call(t, r, "invoice.receipt", map[string]any{"invoice_id": inv.ID}).(ReceiptPayload)
	assert.Equal(t, billing.StatusPaid, paid.Invoice.Status)
	assert.InDelta(t, 150.0, paid.Receipt.Amount, 1e-9)
	assert.True(t, billing.VerifyReceipt(paid.Receipt))
	assert.Len(t, paid.Events, 3)
}

func TestFreeze(t *testing.T) {
	r := newRegistry(t, Services{})
	ctx := context.Background()

	call(t, r, "admin.freeze", map[string]any{"scope": ScopeBilling, "frozen": true, "reason": "audit"})

	_, err := r.CallNative(ctx, "invoice.create", map[string]any{"customer": "acme", "amount": 10.0})
	require.ErrorIs(t, err, ErrFrozen)
	assert.ErrorIs(t, err, tool.ErrExecutorFailure)
	assert.Contains(t, err.Error(), "audit")

	call(t, r, "market.propose", map[string]any{"listing_id": "lst_review", "offer": 80.0, "buyer": "b"})

	call(t, r, "admin.freeze", map[string]any{"scope": ScopeAll, "frozen": true})
	_, err = r.CallNative(ctx, "market.propose", map[string]any{"listing_id": "lst_review", "offer": 80.0, "buyer": "b"})
	require.ErrorIs(t, err, ErrFrozen)

	state := call(t, r, "admin.freeze", map[string]any{"scope": ScopeAll, "frozen": false}).(map[string]any)
	assert.Equal(t, []FreezeState{{Scope: ScopeBilling, Frozen: true, Reason: "audit"}}, state["frozen"])
	call(t, r, "admin.freeze", map[string]any{"scope": ScopeBilling, "frozen": false})

	_, err = r.CallNative(ctx, "invoice.create", map[string]any{"customer": "acme", "amount": 10.0})
	require.NoError(t, err)
}

func TestMetricsTools(t *testing.T) {
	r := newRegistry(t, Services{Metrics: metrics.NewStore()})

	call(t, r, "metrics.upsert", map[string]any{"name": "revenue", "value": 10.0, "labels": map[string]string{"region": "eu"}})
	snap := call(t, r, "metrics.upsert", map[string]any{"name": "revenue", "value": int64(30), "labels": map[string]string{"region": "us"}}).(metrics.Snapshot)
	assert.Equal(t, 1, snap.Count)

	total := call(t, r, "metrics.snapshot", map[string]any{"name": "revenue"}).(metrics.Snapshot)
	assert.Equal(t, 2, total.Series)
	assert.InDelta(t, 40.0, total.Sum, 1e-9)

	missing := call(t, r, "metrics.snapshot", map[string]any{"name": "latency"}).(map[string]any)
	assert.Equal(t, false, missing["found"])
}

func TestRebalanceTool(t *testing.T) {
	r := newRegistry(t, Services{})

	plan := call(t, r, "routing.rebalance", map[string]any{
		"loads": map[string]any{"a": 30.0, "b": int64(10), "c": 20.0},
	}).(metrics.Plan)
	assert.InDelta(t, 20.0, plan.Mean, 1e-9)
	require.NotEmpty(t, plan.Moves)
	assert.Equal(t, "a", plan.Moves[0].From)
	assert.Equal(t, "b", plan.Moves[0].To)
	assert.Less(t, plan.After, plan.Before)

	_, err := r.CallNative(context.Background(), "routing.rebalance", map[string]any{"loads": map[string]any{"a": "high"}})
	assert.ErrorIs(t, err, tool.ErrExecutorFailure)
}

func TestComplianceScanTool(t *testing.T) {
	r := newRegistry(t, Services{Compliance: compliance.NewRuleScanner()})

	report := call(t, r, "compliance.scan", map[string]any{"text": "<b>SSN 123-45-6789</b>", "format": "html"}).(compliance.Report)
	assert.Equal(t, compliance.VerdictBlock, report.Verdict)
	assert.Contains(t, report.Flags, "ssn")

	_, err := r.CallNative(context.Background(), "compliance.scan", map[string]any{"text": "x", "format": "pdf"})
	assert.True(t, errors.Is(err, tool.ErrExecutorFailure))
}
