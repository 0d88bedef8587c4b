package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ichiragkumar/auction/internal/bus"
	"github.com/ichiragkumar/auction/internal/cache"
	"github.com/ichiragkumar/auction/internal/models"
	"github.com/ichiragkumar/auction/internal/ranking"
	"github.com/ichiragkumar/auction/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type biddingFixture struct {
	store   *store.Memory
	fanout  *bus.Memory
	bidding *BiddingService
}

func newBiddingFixture(t *testing.T) *biddingFixture {
	t.Helper()
	st := store.NewMemory()
	fanout := bus.NewMemory()
	logger := testLogger()
	engine := ranking.NewEngine(st)
	snapshots := cache.NewSnapshotCache(cache.NewMemory(), st, logger)
	return &biddingFixture{
		store:   st,
		fanout:  fanout,
		bidding: NewBiddingService(st, engine, snapshots, fanout, logger),
	}
}

func (f *biddingFixture) seedAuction(t *testing.T, id string, reserve int64, status models.AuctionStatus) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.store.CreateAuction(context.Background(), &models.Auction{
		ID:           id,
		ProductName:  "vintage synth",
		ReservePrice: decimal.NewFromInt(reserve),
		CreatedBy:    "merchant-1",
		StartTime:    now,
		EndTime:      now.Add(time.Hour),
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
}

func TestPlaceBid_UnknownAuction(t *testing.T) {
	f := newBiddingFixture(t)

	_, err := f.bidding.PlaceBid(context.Background(), "missing", "bidder-a", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, store.ErrAuctionNotFound)
}

func TestPlaceBid_RejectsInactiveAuction(t *testing.T) {
	f := newBiddingFixture(t)

	for _, status := range []models.AuctionStatus{
		models.AuctionStatusPending,
		models.AuctionStatusCompleted,
		models.AuctionStatusCancelled,
	} {
		id := "auction-" + string(status)
		f.seedAuction(t, id, 100, status)

		result, err := f.bidding.PlaceBid(context.Background(), id, "bidder-a", decimal.NewFromInt(200))
		require.NoError(t, err)
		assert.False(t, result.Accepted)
		assert.Equal(t, RejectAuctionNotActive, result.Reason)
	}
}

func TestPlaceBid_RejectsBelowReserve(t *testing.T) {
	f := newBiddingFixture(t)
	f.seedAuction(t, "a1", 100, models.AuctionStatusActive)

	result, err := f.bidding.PlaceBid(context.Background(), "a1", "bidder-a", decimal.NewFromInt(99))
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, RejectBelowReserve, result.Reason)

	// A rejected bid is never partially applied.
	bids, err := f.store.GetBids(context.Background(), "a1")
	require.NoError(t, err)
	assert.Empty(t, bids)
	entry, err := f.store.GetEntry(context.Background(), "a1", "bidder-a")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestPlaceBid_ReserveAmountIsAdmitted(t *testing.T) {
	f := newBiddingFixture(t)
	f.seedAuction(t, "a1", 100, models.AuctionStatusActive)

	result, err := f.bidding.PlaceBid(context.Background(), "a1", "bidder-a", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestPlaceBid_ExtendedAuctionAcceptsBids(t *testing.T) {
	f := newBiddingFixture(t)
	f.seedAuction(t, "a1", 100, models.AuctionStatusExtended)

	result, err := f.bidding.PlaceBid(context.Background(), "a1", "bidder-a", decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestPlaceBid_CallerObservesOwnWrite(t *testing.T) {
	f := newBiddingFixture(t)
	f.seedAuction(t, "a1", 100, models.AuctionStatusActive)
	ctx := context.Background()

	_, err := f.bidding.PlaceBid(ctx, "a1", "bidder-a", decimal.NewFromInt(150))
	require.NoError(t, err)
	result, err := f.bidding.PlaceBid(ctx, "a1", "bidder-b", decimal.NewFromInt(200))
	require.NoError(t, err)

	require.Len(t, result.Leaderboard, 2)
	assert.Equal(t, "bidder-b", result.Leaderboard[0].BidderID)

	// The snapshot read right after the call sees the same ranking.
	entries, err := f.bidding.GetLeaderboard(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bidder-b", entries[0].BidderID)
	assert.Equal(t, 1, entries[0].Rank)
}

func TestPlaceBid_PublishesNewBidEvent(t *testing.T) {
	f := newBiddingFixture(t)
	f.seedAuction(t, "a1", 100, models.AuctionStatusActive)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	envelopes, err := f.fanout.Subscribe(ctx, bus.TopicPattern)
	require.NoError(t, err)

	_, err = f.bidding.PlaceBid(ctx, "a1", "bidder-a", decimal.NewFromInt(150))
	require.NoError(t, err)

	select {
	case env := <-envelopes:
		assert.Equal(t, "a1", env.AuctionID)
		var msg models.Message
		require.NoError(t, json.Unmarshal(env.Payload, &msg))
		assert.Equal(t, models.MessageNewBid, msg.Type)

		var data models.NewBidData
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, "bidder-a", data.Bid.BidderID)
		require.Len(t, data.Leaderboard, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no NEW_BID event published")
	}
}

func TestGetLeaderboard_Limit(t *testing.T) {
	f := newBiddingFixture(t)
	f.seedAuction(t, "a1", 1, models.AuctionStatusActive)
	ctx := context.Background()

	for i, bidder := range []string{"b1", "b2", "b3", "b4"} {
		_, err := f.bidding.PlaceBid(ctx, "a1", bidder, decimal.NewFromInt(int64(10+i)))
		require.NoError(t, err)
	}

	entries, err := f.bidding.GetLeaderboard(ctx, "a1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b4", entries[0].BidderID)
}

func TestGetBids_OrderedByAmount(t *testing.T) {
	f := newBiddingFixture(t)
	f.seedAuction(t, "a1", 1, models.AuctionStatusActive)
	ctx := context.Background()

	for _, amount := range []int64{50, 200, 120} {
		_, err := f.bidding.PlaceBid(ctx, "a1", "bidder-a", decimal.NewFromInt(amount))
		require.NoError(t, err)
	}

	bids, err := f.bidding.GetBids(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.True(t, bids[0].Amount.Equal(decimal.NewFromInt(200)))
	assert.True(t, bids[2].Amount.Equal(decimal.NewFromInt(50)))
}
