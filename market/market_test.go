package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Search(t *testing.T) {
	c := NewCatalog(SampleListings())
	ctx := context.Background()

	got, err := c.Search(ctx, "hours", "", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "lst_cpu_hours", got[0].ID, "cheapest first")

	got, err = c.Search(ctx, "", "services", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lst_review", got[0].ID)

	got, err = c.Search(ctx, "gpu training", "compute", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCatalog_ProposeDecisions(t *testing.T) {
	c := NewCatalog(SampleListings())
	ctx := context.Background()

	accepted, err := c.Propose(ctx, Proposal{ListingID: "lst_gpu_hours", Buyer: "b", Offer: 120})
	require.NoError(t, err)
	assert.Equal(t, ProposalAccepted, accepted.Status)

	countered, err := c.Propose(ctx, Proposal{ListingID: "lst_gpu_hours", Buyer: "b", Offer: 100})
	require.NoError(t, err)
	assert.Equal(t, ProposalCountered, countered.Status)
	assert.InDelta(t, 110, countered.Counter, 1e-9)

	rejected, err := c.Propose(ctx, Proposal{ListingID: "lst_gpu_hours", Buyer: "b", Offer: 10})
	require.NoError(t, err)
	assert.Equal(t, ProposalRejected, rejected.Status)

	status, err := c.Status(ctx, countered.ID)
	require.NoError(t, err)
	assert.Equal(t, countered, status)

	_, err = c.Propose(ctx, Proposal{ListingID: "missing", Offer: 1})
	assert.ErrorIs(t, err, ErrListingNotFound)
	_, err = c.Status(ctx, "missing")
	assert.ErrorIs(t, err, ErrProposalNotFound)
}
