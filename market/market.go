// Package market is the marketplace collaborator behind the market.search,
// market.propose and market.status tools: a listing catalog plus a proposal
// book.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrListingNotFound is returned for unknown listing identifiers.
	ErrListingNotFound = errors.New("listing not found")
	// ErrProposalNotFound is returned for unknown proposal identifiers.
	ErrProposalNotFound = errors.New("proposal not found")
)

// Listing is an offer in the catalog.
type Listing struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Price    float64  `json:"price"`
	Seller   string   `json:"seller"`
	Tags     []string `json:"tags,omitempty"`
}

// ProposalStatus is the state of a proposal.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalAccepted  ProposalStatus = "accepted"
	ProposalCountered ProposalStatus = "countered"
	ProposalRejected  ProposalStatus = "rejected"
)

// Proposal is a buyer's offer on a listing.
type Proposal struct {
	ID        string         `json:"id"`
	ListingID string         `json:"listing_id"`
	Buyer     string         `json:"buyer"`
	Offer     float64        `json:"offer"`
	Note      string         `json:"note,omitempty"`
	Status    ProposalStatus `json:"status"`
	Counter   float64        `json:"counter,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Service is the marketplace contract.
type Service interface {
	Search(ctx context.Context, query, category string, limit int) ([]Listing, error)
	Propose(ctx context.Context, p Proposal) (Proposal, error)
	Status(ctx context.Context, proposalID string) (Proposal, error)
}

// Options configures a Catalog.
type Options struct {
	// AcceptRatio is the share of the asking price at or above which an
	// offer is accepted outright.
	AcceptRatio float64
	// CounterRatio is the share below which an offer is rejected; offers in
	// between receive a counter at the midpoint.
	CounterRatio float64
	Now          func() time.Time
}

// Catalog is an in-memory Service.
type Catalog struct {
	opts Options

	mu        sync.RWMutex
	listings  map[string]Listing
	proposals map[string]Proposal
}

var _ Service = (*Catalog)(nil)

// NewCatalog creates a catalog holding the given listings.
func NewCatalog(listings []Listing, optFns ...func(o *Options)) *Catalog {
	opts := Options{
		AcceptRatio:  0.95,
		CounterRatio: 0.7,
		Now:          time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	c := &Catalog{
		opts:      opts,
		listings:  make(map[string]Listing, len(listings)),
		proposals: make(map[string]Proposal),
	}
	for _, l := range listings {
		c.Add(l)
	}
	return c
}

// Add inserts or replaces a listing; an empty ID is generated.
func (c *Catalog) Add(l Listing) Listing {
	if l.ID == "" {
		l.ID = "lst_" + uuid.NewString()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[l.ID] = l
	return l
}

func matches(l Listing, terms []string) bool {
	hay := strings.ToLower(l.Title + " " + l.Category + " " + strings.Join(l.Tags, " "))
	for _, t := range terms {
		if !strings.Contains(hay, t) {
			return false
		}
	}
	return true
}

// Search returns listings whose title, category or tags contain every query
// term, cheapest first.
func (c *Catalog) Search(ctx context.Context, query, category string, limit int) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(query))

	c.mu.RLock()
	out := []Listing{}
	for _, l := range c.listings {
		if category != "" && !strings.EqualFold(l.Category, category) {
			continue
		}
		if matches(l, terms) {
			out = append(out, l)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Propose records an offer and decides it against the asking price.
func (c *Catalog) Propose(ctx context.Context, p Proposal) (Proposal, error) {
	if err := ctx.Err(); err != nil {
		return Proposal{}, err
	}
	if p.Offer <= 0 {
		return Proposal{}, fmt.Errorf("offer must be positive, got %v", p.Offer)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listings[p.ListingID]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: %s", ErrListingNotFound, p.ListingID)
	}

	p.ID = "prop_" + uuid.NewString()
	p.CreatedAt = c.opts.Now().UTC()
	switch ratio := p.Offer / l.Price; {
	case ratio >= c.opts.AcceptRatio:
		p.Status = ProposalAccepted
	case ratio >= c.opts.CounterRatio:
		p.Status = ProposalCountered
		p.Counter = (p.Offer + l.Price) / 2
	default:
		p.Status = ProposalRejected
	}
	c.proposals[p.ID] = p
	return p, nil
}

// Status returns a recorded proposal.
func (c *Catalog) Status(ctx context.Context, proposalID string) (Proposal, error) {
	if err := ctx.Err(); err != nil {
		return Proposal{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.proposals[proposalID]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: %s", ErrProposalNotFound, proposalID)
	}
	return p, nil
}

// SampleListings is a small seed catalog for demos and tests.
func SampleListings() []Listing {
	return []Listing{
		{ID: "lst_gpu_hours", Title: "GPU hours (A100)", Category: "compute", Price: 120, Seller: "cloudco", Tags: []string{"training", "gpu"}},
		{ID: "lst_label_batch", Title: "Data labeling batch", Category: "services", Price: 300, Seller: "labelers", Tags: []string{"annotation"}},
		{ID: "lst_cpu_hours", Title: "CPU hours", Category: "compute", Price: 15, Seller: "cloudco", Tags: []string{"batch"}},
		{ID: "lst_review", Title: "Code review session", Category: "services", Price: 80, Seller: "reviewers", Tags: []string{"qa"}},
	}
}
