package builtin

import (
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/billing"
	"github.com/hupe1980/taskmesh/compliance"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/market"
	"github.com/hupe1980/taskmesh/metrics"
	"github.com/hupe1980/taskmesh/retrieval"
	"github.com/hupe1980/taskmesh/tool"
)

// Services bundles the collaborators used by the built-in tools. Nil fields
// are replaced by in-memory defaults in Register.
type Services struct {
	Fetcher    Fetcher
	Drafter    Drafter
	Retrieval  retrieval.Service
	Billing    billing.Service
	Compliance compliance.Scanner
	Market     market.Service
	Metrics    metrics.Aggregator
	Freeze     FreezeSwitch
	Logger     logging.Logger
}

// WithDefaults returns a copy of s with every nil collaborator replaced by
// its default implementation.
func (s Services) WithDefaults() Services {
	if s.Logger == nil {
		s.Logger = logging.NoOpLogger{}
	}
	if s.Fetcher == nil {
		s.Fetcher = NewHTTPFetcher(func(o *HTTPFetcherOptions) { o.Timeout = 15 * time.Second })
	}
	if s.Drafter == nil {
		s.Drafter = NewTemplateDrafter()
	}
	if s.Retrieval == nil {
		s.Retrieval = retrieval.NewIndex(func(o *retrieval.Options) { o.Logger = s.Logger })
	}
	if s.Billing == nil {
		s.Billing = billing.NewLedger()
	}
	if s.Compliance == nil {
		s.Compliance = compliance.NewRuleScanner()
	}
	if s.Market == nil {
		s.Market = market.NewCatalog(market.SampleListings())
	}
	if s.Metrics == nil {
		s.Metrics = metrics.NewStore()
	}
	if s.Freeze == nil {
		s.Freeze = NewMemoryFreezeSwitch()
	}
	return s
}

// Descriptors returns the descriptors of every built-in tool bound to svc.
func Descriptors(svc Services) []tool.Descriptor {
	svc = svc.WithDefaults()
	return []tool.Descriptor{
		webFetchDescriptor(svc.Fetcher),
		docFormatDescriptor(),
		ragIndexDescriptor(svc.Retrieval),
		ragQueryDescriptor(svc.Retrieval),
		checklistDescriptor(),
		patchDescriptor(),
		emailDraftDescriptor(svc.Drafter),
		sanitizeDescriptor(svc.Compliance),
		marketSearchDescriptor(svc.Market),
		marketProposeDescriptor(svc.Market, svc.Freeze),
		marketStatusDescriptor(svc.Market),
		metricsUpsertDescriptor(svc.Metrics),
		metricsSnapshotDescriptor(svc.Metrics),
		rebalanceDescriptor(),
		invoiceCreateDescriptor(svc.Billing, svc.Freeze),
		invoiceReceiptDescriptor(svc.Billing),
		complianceScanDescriptor(svc.Compliance),
		freezeDescriptor(svc.Freeze, svc.Logger),
	}
}

// Register installs every built-in tool into r. Tools already registered
// under the same names are replaced.
func Register(r *tool.Registry, svc Services) error {
	for _, d := range Descriptors(svc) {
		if err := r.Register(d); err != nil {
			return fmt.Errorf("builtin %s: %w", d.Name, err)
		}
	}
	return nil
}

// notFound is the payload of lookups that found nothing.
func notFound(kind, id string) map[string]any {
	return map[string]any{"found": false, kind: id}
}
