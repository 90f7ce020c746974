package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/metrics"
	"github.com/hupe1980/taskmesh/tool"
)

// DefaultRebalanceTolerance is the relative spread routing.rebalance accepts.
const DefaultRebalanceTolerance = 0.1

type metricsUpsert struct {
	agg metrics.Aggregator
}

func metricsUpsertDescriptor(agg metrics.Aggregator) tool.Descriptor {
	return tool.Descriptor{
		Name:    "metrics.upsert",
		Summary: "Record a sample for a named metric series.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("name", core.KindString, "metric name"),
			tool.RequiredParam("value", core.KindDouble, "sample value"),
			tool.Param("labels", core.KindStringMap, "series labels"),
		},
		Executor: &metricsUpsert{agg: agg},
	}
}

func (t *metricsUpsert) Execute(ctx context.Context, args tool.Args) (any, error) {
	name, labels := args.String("name"), args.StringMap("labels")
	if err := t.agg.Upsert(ctx, name, args.DoubleOr("value", 0), labels); err != nil {
		return nil, err
	}
	return t.agg.Snapshot(ctx, name, labels)
}

type metricsSnapshot struct {
	agg metrics.Aggregator
}

func metricsSnapshotDescriptor(agg metrics.Aggregator) tool.Descriptor {
	return tool.Descriptor{
		Name:    "metrics.snapshot",
		Summary: "Summarise a metric across the series matching the given labels.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("name", core.KindString, "metric name"),
			tool.Param("labels", core.KindStringMap, "label filter"),
		},
		Executor: &metricsSnapshot{agg: agg},
	}
}

func (t *metricsSnapshot) Execute(ctx context.Context, args tool.Args) (any, error) {
	snap, err := t.agg.Snapshot(ctx, args.String("name"), args.StringMap("labels"))
	if errors.Is(err, metrics.ErrUnknownSeries) {
		return notFound("name", args.String("name")), nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

type rebalance struct{}

func rebalanceDescriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:    "routing.rebalance",
		Summary: "Plan load moves that even out per-route load.",
		Params: []tool.ParamSpec{
			tool.RequiredParam("loads", core.KindMap, "route name to numeric load"),
			tool.Param("tolerance", core.KindDouble, "accepted relative spread, default 0.1"),
		},
		Executor: rebalance{},
	}
}

func (rebalance) Execute(_ context.Context, args tool.Args) (any, error) {
	raw := args.Map("loads")
	loads := make(map[string]float64, len(raw))
	for route, v := range raw {
		f, ok := v.AsDouble()
		if !ok {
			return nil, fmt.Errorf("load of route %q is %s, not a number", route, v.Kind())
		}
		loads[route] = f
	}
	return metrics.Rebalance(loads, args.DoubleOr("tolerance", DefaultRebalanceTolerance)), nil
}
