// Package builtin provides the default tool catalog of taskmesh.
//
// Register installs eighteen tools into a tool.Registry:
//
//	web.fetch          doc.format        rag.index        rag.query
//	qa.checklist       patch.apply       email.draft      text.sanitize
//	market.search      market.propose    market.status
//	metrics.upsert     metrics.snapshot  routing.rebalance
//	invoice.create     invoice.receipt   compliance.scan  admin.freeze
//
// Every tool is a small struct implementing tool.Executor that holds explicit
// handles to the collaborators it needs (retrieval, billing, compliance,
// market, metrics, fetcher, drafter, freeze switch). Tools never touch a
// task's history; side effects only go through those collaborators.
//
// Lookups of unknown identifiers (an invoice, a proposal, a metric series)
// are reported in the payload as {"found": false} rather than as errors, so
// that a model can react to them without a failed call.
//
// Usage:
//
//	registry := tool.NewRegistry()
//	if err := builtin.Register(registry, builtin.Services{}); err != nil {
//	    return err
//	}
package builtin
