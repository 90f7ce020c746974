package metrics

import (
	"math"
	"sort"
)

// Move shifts load from one worker to another.
type Move struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

// Plan is the outcome of Rebalance.
type Plan struct {
	Mean      float64            `json:"mean"`
	Before    float64            `json:"stddev_before"`
	After     float64            `json:"stddev_after"`
	Moves     []Move             `json:"moves"`
	Projected map[string]float64 `json:"projected"`
}

// Rebalance plans moves that bring every worker within tolerance (a fraction
// of the mean) of the mean load. Donors are drained greedily from the most
// loaded worker into the least loaded one, so the plan is deterministic.
func Rebalance(loads map[string]float64, tolerance float64) Plan {
	plan := Plan{Moves: []Move{}, Projected: make(map[string]float64, len(loads))}
	if len(loads) == 0 {
		return plan
	}

	names := make([]string, 0, len(loads))
	values := make([]float64, 0, len(loads))
	for name := range loads {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values = append(values, loads[name])
		plan.Projected[name] = loads[name]
	}

	snap := summarize("", nil, len(values), values, 0)
	plan.Mean = snap.Mean
	plan.Before = snap.StdDev
	band := math.Abs(plan.Mean) * math.Max(tolerance, 0)

	for i := 0; i < len(names)*len(names); i++ {
		donor, receiver := extremes(names, plan.Projected)
		surplus := plan.Projected[donor] - plan.Mean
		deficit := plan.Mean - plan.Projected[receiver]
		if surplus <= band && deficit <= band {
			break
		}
		amount := math.Min(surplus, deficit)
		if amount <= 1e-9 {
			break
		}
		plan.Projected[donor] -= amount
		plan.Projected[receiver] += amount
		plan.Moves = append(plan.Moves, Move{From: donor, To: receiver, Amount: amount})
	}

	after := make([]float64, len(names))
	for i, name := range names {
		after[i] = plan.Projected[name]
	}
	plan.After = summarize("", nil, len(after), after, 0).StdDev
	return plan
}

// extremes returns the most and least loaded workers; ties go to the name
// that sorts first.
func extremes(names []string, loads map[string]float64) (maxName, minName string) {
	maxName, minName = names[0], names[0]
	for _, n := range names[1:] {
		if loads[n] > loads[maxName] {
			maxName = n
		}
		if loads[n] < loads[minName] {
			minName = n
		}
	}
	return maxName, minName
}
