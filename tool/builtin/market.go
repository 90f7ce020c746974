package builtin

import (
	"context"
	"errors"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/market"
	"github.com/hupe1980/taskmesh/tool"
)

// DefaultSearchLimit bounds market.search results.
const DefaultSearchLimit = 10

type marketSearch struct {
	svc market.Service
}

func marketSearchDescriptor(svc market.Service) tool.Descriptor {
	return tool.Descriptor{
		Name:    "market.search",
		Summary: "Search marketplace listings, cheapest first.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("query", core.KindString, "search terms"),
			tool.Param("category", core.KindString, "restrict to a category"),
			tool.Param("limit", core.KindInt, "maximum results, default 10"),
		},
		Executor: &marketSearch{svc: svc},
	}
}

func (t *marketSearch) Execute(ctx context.Context, args tool.Args) (any, error) {
	listings, err := t.svc.Search(ctx, args.String("query"), args.String("category"), int(args.IntOr("limit", DefaultSearchLimit)))
	if err != nil {
		return nil, err
	}
	return map[string]any{"listings": listings, "count": len(listings)}, nil
}

type marketPropose struct {
	svc    market.Service
	freeze FreezeSwitch
}

func marketProposeDescriptor(svc market.Service, freeze FreezeSwitch) tool.Descriptor {
	return tool.Descriptor{
		Name:    "market.propose",
		Summary: "Make an offer on a listing; the seller accepts, counters or rejects.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("listing_id", core.KindString, "listing identifier"),
			tool.RequiredParam("offer", core.KindDouble, "offered price"),
			tool.RequiredParam("buyer", core.KindString, "buyer identifier"),
			tool.Param("note", core.KindString, "message to the seller"),
		},
		Executor: &marketPropose{svc: svc, freeze: freeze},
	}
}

func (t *marketPropose) Execute(ctx context.Context, args tool.Args) (any, error) {
	if err := t.freeze.Check(ScopeMarket); err != nil {
		return nil, err
	}
	p, err := t.svc.Propose(ctx, market.Proposal{
		ListingID: args.String("listing_id"),
		Offer:     args.DoubleOr("offer", 0),
		Buyer:     args.String("buyer"),
		Note:      args.String("note"),
	})
	if errors.Is(err, market.ErrListingNotFound) {
		return notFound("listing_id", args.String("listing_id")), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type marketStatus struct {
	svc market.Service
}

func marketStatusDescriptor(svc market.Service) tool.Descriptor {
	return tool.Descriptor{
		Name:    "market.status",
		Summary: "Look up the state of a proposal.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("proposal_id", core.KindString, "proposal identifier"),
		},
		Executor: &marketStatus{svc: svc},
	}
}

func (t *marketStatus) Execute(ctx context.Context, args tool.Args) (any, error) {
	p, err := t.svc.Status(ctx, args.String("proposal_id"))
	if errors.Is(err, market.ErrProposalNotFound) {
		return notFound("proposal_id", args.String("proposal_id")), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
