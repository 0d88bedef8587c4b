package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ichiragkumar/auction/internal/models"
)

func seedAuction(t *testing.T, m *Memory, id string, status models.AuctionStatus, endTime time.Time) {
	t.Helper()
	require.NoError(t, m.CreateAuction(context.Background(), &models.Auction{
		ID:           id,
		ProductName:  "lot " + id,
		ReservePrice: decimal.NewFromInt(10),
		CreatedBy:    "merchant-1",
		StartTime:    endTime.Add(-time.Hour),
		EndTime:      endTime,
		Status:       status,
	}))
}

func TestFindDueAuctions(t *testing.T) {
	m := NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	seedAuction(t, m, "past-active", models.AuctionStatusActive, now.Add(-time.Minute))
	seedAuction(t, m, "past-extended", models.AuctionStatusExtended, now.Add(-2*time.Minute))
	seedAuction(t, m, "past-completed", models.AuctionStatusCompleted, now.Add(-time.Minute))
	seedAuction(t, m, "future", models.AuctionStatusActive, now.Add(time.Minute))
	seedAuction(t, m, "exactly-now", models.AuctionStatusActive, now)

	due, err := m.FindDueAuctions(ctx, now)
	require.NoError(t, err)

	ids := make([]string, len(due))
	for i, a := range due {
		ids[i] = a.ID
	}
	// Ordered soonest deadline first; terminal states never come back.
	assert.Equal(t, []string{"past-extended", "past-active", "exactly-now"}, ids)
}

func TestFindEndingSoon_WindowIsInclusive(t *testing.T) {
	m := NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	seedAuction(t, m, "at-start", models.AuctionStatusActive, now)
	seedAuction(t, m, "inside", models.AuctionStatusActive, now.Add(time.Minute))
	seedAuction(t, m, "at-end", models.AuctionStatusExtended, now.Add(3*time.Minute))
	seedAuction(t, m, "beyond", models.AuctionStatusActive, now.Add(4*time.Minute))
	seedAuction(t, m, "already-past", models.AuctionStatusActive, now.Add(-time.Second))

	soon, err := m.FindEndingSoon(ctx, now, now.Add(3*time.Minute))
	require.NoError(t, err)

	ids := make([]string, len(soon))
	for i, a := range soon {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"at-start", "inside", "at-end"}, ids)
}

func TestGetWinningBid_TieGoesToEarlierBid(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	bids := []*models.Bid{
		{ID: "b1", AuctionID: "a1", BidderID: "alice", Amount: decimal.NewFromInt(200), Timestamp: base.Add(2 * time.Minute)},
		{ID: "b2", AuctionID: "a1", BidderID: "bob", Amount: decimal.NewFromInt(200), Timestamp: base.Add(time.Minute)},
		{ID: "b3", AuctionID: "a1", BidderID: "carol", Amount: decimal.NewFromInt(300), Timestamp: base.Add(3 * time.Minute)},
	}
	for _, b := range bids {
		require.NoError(t, m.AppendBid(ctx, b))
	}

	winner, err := m.GetWinningBid(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "carol", winner.BidderID)

	// With the top bid gone the tie resolves to the earlier of the two.
	m2 := NewMemory()
	require.NoError(t, m2.AppendBid(ctx, bids[0]))
	require.NoError(t, m2.AppendBid(ctx, bids[1]))
	winner, err = m2.GetWinningBid(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "bob", winner.BidderID)
}

func TestGetWinningBid_NoBids(t *testing.T) {
	m := NewMemory()
	winner, err := m.GetWinningBid(context.Background(), "empty")
	require.NoError(t, err)
	assert.Nil(t, winner)
}

func TestInsertBidEvent_Idempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	event := &models.BidEvent{
		EventID:   "e1",
		AuctionID: "a1",
		BidID:     "b1",
		BidderID:  "alice",
		Amount:    decimal.NewFromInt(100),
		Timestamp: time.Now().UTC(),
	}

	require.NoError(t, m.InsertBidEvent(ctx, event))
	require.NoError(t, m.InsertBidEvent(ctx, event))
	assert.Len(t, m.events, 1)
}

func TestGetAuction_ReturnsIsolatedCopy(t *testing.T) {
	m := NewMemory()
	now := time.Now().UTC()
	seedAuction(t, m, "a1", models.AuctionStatusActive, now.Add(time.Hour))
	ctx := context.Background()

	first, err := m.GetAuction(ctx, "a1")
	require.NoError(t, err)
	first.Status = models.AuctionStatusCancelled
	first.SubscriberIDs = append(first.SubscriberIDs, "intruder")

	second, err := m.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, second.Status)
	assert.Empty(t, second.SubscriberIDs)
}

func TestUpdateAuction_UnknownID(t *testing.T) {
	m := NewMemory()
	err := m.UpdateAuction(context.Background(), &models.Auction{ID: "ghost"})
	assert.ErrorIs(t, err, ErrAuctionNotFound)
}
