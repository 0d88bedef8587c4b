package scheduler

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/ichiragkumar/auction/internal/notify"
	"github.com/ichiragkumar/auction/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type endNotice struct {
	recipient string
	isWinner  bool
}

// endNotifier records end-of-auction notices and can be told to fail for
// specific recipients.
type endNotifier struct {
	merchants []string
	notices   []endNotice
	failFor   map[string]bool
}

func (n *endNotifier) SendAuctionInvitation(context.Context, []string, notify.AuctionSummary) error {
	return nil
}

func (n *endNotifier) SendJoinConfirmation(context.Context, string, notify.AuctionSummary) error {
	return nil
}

func (n *endNotifier) SendAuctionEndNotification(_ context.Context, recipient string, _ notify.AuctionSummary, isWinner bool) error {
	if n.failFor[recipient] {
		return errors.New("delivery failed")
	}
	n.notices = append(n.notices, endNotice{recipient: recipient, isWinner: isWinner})
	return nil
}

func (n *endNotifier) SendMerchantNotification(_ context.Context, merchant string, _ notify.AuctionSummary) error {
	n.merchants = append(n.merchants, merchant)
	return nil
}

type schedulerFixture struct {
	store     *store.Memory
	snapshots *cache.SnapshotCache
	fanout    *bus.Memory
	notifier  *endNotifier
	now       time.Time
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	st := store.NewMemory()
	return &schedulerFixture{
		store:     st,
		snapshots: cache.NewSnapshotCache(cache.NewMemory(), st, testLogger()),
		fanout:    bus.NewMemory(),
		notifier:  &endNotifier{},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *schedulerFixture) extensionMonitor() *ExtensionMonitor {
	m := NewExtensionMonitor(f.store, f.snapshots, f.fanout, testLogger(), 0)
	m.now = func() time.Time { return f.now }
	return m
}

func (f *schedulerFixture) lifecycleScheduler() *LifecycleScheduler {
	s := NewLifecycleScheduler(f.store, f.snapshots, f.fanout, f.notifier, testLogger(), 0)
	s.now = func() time.Time { return f.now }
	return s
}

func (f *schedulerFixture) seedAuction(t *testing.T, id string, endsIn time.Duration, subscribers ...string) {
	t.Helper()
	require.NoError(t, f.store.CreateAuction(context.Background(), &models.Auction{
		ID:            id,
		ProductName:   "lot " + id,
		ReservePrice:  decimal.NewFromInt(10),
		CreatedBy:     "merchant-1",
		StartTime:     f.now.Add(-time.Hour),
		EndTime:       f.now.Add(endsIn),
		Status:        models.AuctionStatusActive,
		SubscriberIDs: subscribers,
		CreatedAt:     f.now.Add(-time.Hour),
		UpdatedAt:     f.now.Add(-time.Hour),
	}))
}

// setStandings persists a leaderboard order and refreshes the cached
// snapshot, the way the bid path does after every admitted bid.
func (f *schedulerFixture) setStandings(t *testing.T, auctionID string, bidders ...string) {
	t.Helper()
	ctx := context.Background()
	entries := make([]*models.LeaderboardEntry, len(bidders))
	for i, bidder := range bidders {
		entries[i] = &models.LeaderboardEntry{
			AuctionID:   auctionID,
			BidderID:    bidder,
			HighestBid:  decimal.NewFromInt(int64(100 * (len(bidders) - i))),
			Rank:        i + 1,
			LastBidTime: f.now.Add(-time.Minute),
			TotalBids:   1,
		}
		require.NoError(t, f.store.UpsertEntry(ctx, entries[i]))
	}
	f.snapshots.SetLeaderboard(ctx, auctionID, entries)
}

func (f *schedulerFixture) appendBid(t *testing.T, auctionID, bidderID string, amount int64, at time.Time) {
	t.Helper()
	require.NoError(t, f.store.AppendBid(context.Background(), &models.Bid{
		ID:        auctionID + "-" + bidderID + at.String(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    decimal.NewFromInt(amount),
		Timestamp: at,
		IsValid:   true,
	}))
}

func (f *schedulerFixture) subscribe(t *testing.T) <-chan *bus.Envelope {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	envelopes, err := f.fanout.Subscribe(ctx, bus.TopicPattern)
	require.NoError(t, err)
	return envelopes
}

func receiveMessage(t *testing.T, envelopes <-chan *bus.Envelope) *models.Message {
	t.Helper()
	select {
	case env := <-envelopes:
		var msg models.Message
		require.NoError(t, json.Unmarshal(env.Payload, &msg))
		return &msg
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
		return nil
	}
}

func TestExtensionSweep_ExtendsOnTopRankChurn(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seedAuction(t, "a1", 2*time.Minute)
	f.setStandings(t, "a1", "alice", "bob")
	monitor := f.extensionMonitor()
	ctx := context.Background()
	originalEnd := f.now.Add(2 * time.Minute)

	// First sweep records the baseline fingerprint, nothing moves.
	monitor.Sweep(ctx)
	auction, err := f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, auction.Status)
	assert.True(t, auction.EndTime.Equal(originalEnd))

	envelopes := f.subscribe(t)

	f.setStandings(t, "a1", "bob", "alice")
	monitor.Sweep(ctx)

	auction, err = f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusExtended, auction.Status)
	assert.True(t, auction.EndTime.Equal(originalEnd.Add(5*time.Minute)))
	assert.Equal(t, 1, auction.ExtensionCount)
	require.NotNil(t, auction.LastExtendedAt)

	msg := receiveMessage(t, envelopes)
	assert.Equal(t, models.MessageAuctionExtended, msg.Type)
	var data models.AuctionExtendedData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "a1", data.AuctionID)
	assert.Equal(t, 1, data.ExtensionCount)

	// Standings settled again, the next sweep leaves the deadline alone.
	monitor.Sweep(ctx)
	auction, err = f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, auction.ExtensionCount)
}

func TestExtensionSweep_StableStandingsNeverExtend(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seedAuction(t, "a1", time.Minute)
	f.setStandings(t, "a1", "alice", "bob")
	monitor := f.extensionMonitor()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		monitor.Sweep(ctx)
	}

	auction, err := f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, auction.Status)
	assert.Equal(t, 0, auction.ExtensionCount)
}

func TestExtensionSweep_IgnoresAuctionsOutsideWindow(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seedAuction(t, "far", 10*time.Minute)
	f.setStandings(t, "far", "alice", "bob")
	monitor := f.extensionMonitor()
	ctx := context.Background()

	monitor.Sweep(ctx)
	f.setStandings(t, "far", "bob", "alice")
	monitor.Sweep(ctx)

	auction, err := f.store.GetAuction(ctx, "far")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, auction.Status)
	assert.Equal(t, 0, auction.ExtensionCount)
}

func TestExtension_StaleSweepEntryNeverRevivesTerminalAuction(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seedAuction(t, "a1", 2*time.Minute)
	f.setStandings(t, "a1", "alice", "bob")
	monitor := f.extensionMonitor()
	ctx := context.Background()

	monitor.Sweep(ctx)
	f.setStandings(t, "a1", "bob", "alice")

	// The sweep works off a listing taken before this cancellation.
	stale, err := f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	cancelled, err := f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	cancelled.Status = models.AuctionStatusCancelled
	require.NoError(t, f.store.UpdateAuction(ctx, cancelled))

	envelopes := f.subscribe(t)
	require.NoError(t, monitor.checkExtension(ctx, stale, f.now))

	auction, err := f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCancelled, auction.Status)
	assert.Equal(t, 0, auction.ExtensionCount)

	select {
	case env := <-envelopes:
		t.Fatalf("unexpected event on topic %s", env.Topic)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLifecycleSweep_FinalizesDueAuctionWithWinner(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seedAuction(t, "a1", -time.Second, "alice", "bob", "carol")
	f.setStandings(t, "a1", "bob", "alice", "carol")

	// Tied top amount goes to the earlier bid.
	f.appendBid(t, "a1", "alice", 200, f.now.Add(-2*time.Minute))
	f.appendBid(t, "a1", "bob", 200, f.now.Add(-3*time.Minute))
	f.appendBid(t, "a1", "carol", 150, f.now.Add(-time.Minute))

	envelopes := f.subscribe(t)
	scheduler := f.lifecycleScheduler()
	ctx := context.Background()

	scheduler.Sweep(ctx)

	auction, err := f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCompleted, auction.Status)
	require.NotNil(t, auction.WinnerID)
	assert.Equal(t, "bob", *auction.WinnerID)
	require.NotNil(t, auction.WinningAmount)
	assert.True(t, auction.WinningAmount.Equal(decimal.NewFromInt(200)))

	msg := receiveMessage(t, envelopes)
	assert.Equal(t, models.MessageAuctionEnded, msg.Type)
	var data models.AuctionEndedData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	require.NotNil(t, data.Winner)
	assert.Equal(t, "bob", data.Winner.BidderID)
	assert.Len(t, data.FinalLeaderboard, 3)

	assert.Equal(t, []string{"merchant-1"}, f.notifier.merchants)
	assert.Equal(t, []endNotice{
		{recipient: "alice", isWinner: false},
		{recipient: "bob", isWinner: true},
		{recipient: "carol", isWinner: false},
	}, f.notifier.notices)
}

func TestFinalize_NoBidsMeansNoWinner(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seedAuction(t, "a1", -time.Minute)
	envelopes := f.subscribe(t)
	scheduler := f.lifecycleScheduler()
	ctx := context.Background()

	require.NoError(t, scheduler.Finalize(ctx, "a1"))

	auction, err := f.store.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCompleted, auction.Status)
	assert.Nil(t, auction.WinnerID)
	assert.Nil(t, auction.WinningAmount)

	msg := receiveMessage(t, envelopes)
	var data models.AuctionEndedData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Nil(t, data.Winner)
}

func TestFinalize_AlreadyTerminalIsNoOp(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seedAuction(t, "a1", -time.Minute, "alice")
	f.appendBid(t, "a1", "alice", 100, f.now.Add(-time.Minute))
	scheduler := f.lifecycleScheduler()
	ctx := context.Background()

	require.NoError(t, scheduler.Finalize(ctx, "a1"))
	require.NoError(t, scheduler.Finalize(ctx, "a1"))

	// Merchant and subscribers hear about the result exactly once.
	assert.Len(t, f.notifier.merchants, 1)
	assert.Len(t, f.notifier.notices, 1)
}

func TestFinalize_NotificationFailureIsIsolated(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seedAuction(t, "a1", -time.Minute, "alice", "bob")
	f.notifier.failFor = map[string]bool{"alice": true}
	scheduler := f.lifecycleScheduler()

	require.NoError(t, scheduler.Finalize(context.Background(), "a1"))

	// bob still hears about the result even though alice's notice failed.
	assert.Equal(t, []endNotice{{recipient: "bob", isWinner: false}}, f.notifier.notices)
	assert.Equal(t, []string{"merchant-1"}, f.notifier.merchants)
}
