// Package metrics aggregates named numeric series (revenue, latency, worker
// load) for the metrics.upsert, metrics.snapshot and routing.rebalance tools.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrUnknownSeries is returned when a snapshot matches no series.
var ErrUnknownSeries = errors.New("unknown series")

// Sample is one observation.
type Sample struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// Snapshot summarises the samples of every series matching a name and label
// filter.
type Snapshot struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Series int               `json:"series"`
	Count  int               `json:"count"`
	Sum    float64           `json:"sum"`
	Mean   float64           `json:"mean"`
	StdDev float64           `json:"stddev"`
	Min    float64           `json:"min"`
	Max    float64           `json:"max"`
	P50    float64           `json:"p50"`
	P95    float64           `json:"p95"`
	Last   float64           `json:"last"`
}

// Aggregator is the metrics contract used by the tools.
type Aggregator interface {
	Upsert(ctx context.Context, name string, value float64, labels map[string]string) error
	Snapshot(ctx context.Context, name string, labels map[string]string) (Snapshot, error)
}

// Options configures a Store.
type Options struct {
	// Window caps the samples kept per series; older samples are dropped.
	Window int
	Now    func() time.Time
}

type series struct {
	name    string
	labels  map[string]string
	samples []Sample
}

// Store is an in-memory Aggregator keeping a sliding window per series.
type Store struct {
	opts Options

	mu     sync.RWMutex
	series map[string]*series
}

var _ Aggregator = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := Options{
		Window: 1024,
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{opts: opts, series: make(map[string]*series)}
}

// seriesKey renders name{k=v,...} with sorted label keys.
func seriesKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Upsert appends a sample to the series identified by name and labels,
// creating the series on first use.
func (s *Store) Upsert(_ context.Context, name string, value float64, labels map[string]string) error {
	if name == "" {
		return errors.New("metric name is required")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("metric %s: value must be finite", name)
	}
	key := seriesKey(name, labels)
	sample := Sample{Value: value, At: s.opts.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	sr := s.series[key]
	if sr == nil {
		cp := make(map[string]string, len(labels))
		for k, v := range labels {
			cp[k] = v
		}
		sr = &series{name: name, labels: cp}
		s.series[key] = sr
	}
	sr.samples = append(sr.samples, sample)
	if s.opts.Window > 0 && len(sr.samples) > s.opts.Window {
		sr.samples = append([]Sample(nil), sr.samples[len(sr.samples)-s.opts.Window:]...)
	}
	return nil
}

func labelsMatch(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// Snapshot aggregates every series named name whose labels include all of
// the given labels.
func (s *Store) Snapshot(_ context.Context, name string, labels map[string]string) (Snapshot, error) {
	var (
		values []float64
		last   Sample
		count  int
	)
	s.mu.RLock()
	for _, sr := range s.series {
		if sr.name != name || !labelsMatch(sr.labels, labels) {
			continue
		}
		count++
		for _, smp := range sr.samples {
			values = append(values, smp.Value)
			if !smp.At.Before(last.At) {
				last = smp
			}
		}
	}
	s.mu.RUnlock()

	if count == 0 {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownSeries, seriesKey(name, labels))
	}
	return summarize(name, labels, count, values, last.Value), nil
}

// Names lists the distinct metric names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, sr := range s.series {
		if !seen[sr.name] {
			seen[sr.name] = true
			out = append(out, sr.name)
		}
	}
	sort.Strings(out)
	return out
}

func summarize(name string, labels map[string]string, seriesCount int, values []float64, last float64) Snapshot {
	snap := Snapshot{Name: name, Labels: labels, Series: seriesCount, Count: len(values), Last: last}
	if len(values) == 0 {
		return snap
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	snap.Sum = floats.Sum(sorted)
	snap.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		snap.StdDev = stat.StdDev(sorted, nil)
	}
	snap.Min = floats.Min(sorted)
	snap.Max = floats.Max(sorted)
	snap.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	snap.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return snap
}
