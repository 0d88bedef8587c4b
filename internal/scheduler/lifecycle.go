package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ichiragkumar/auction/internal/bus"
	"github.com/ichiragkumar/auction/internal/cache"
	"github.com/ichiragkumar/auction/internal/models"
	"github.com/ichiragkumar/auction/internal/notify"
	"github.com/ichiragkumar/auction/internal/store"
)

// DefaultLifecycleInterval is the finalize sweep period.
const DefaultLifecycleInterval = time.Second

// LifecycleScheduler finalizes auctions whose deadline has passed. Run
// exactly one instance per deployment; Finalize itself re-checks status
// so an overlapping or retried tick stays a no-op.
type LifecycleScheduler struct {
	store     store.Store
	snapshots *cache.SnapshotCache
	fanout    bus.Bus
	notifier  notify.Notifier
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time
}

// NewLifecycleScheduler wires the finalize sweep.
func NewLifecycleScheduler(st store.Store, snapshots *cache.SnapshotCache, fanout bus.Bus, notifier notify.Notifier, logger *slog.Logger, interval time.Duration) *LifecycleScheduler {
	if interval <= 0 {
		interval = DefaultLifecycleInterval
	}
	return &LifecycleScheduler{
		store:     st,
		snapshots: snapshots,
		fanout:    fanout,
		notifier:  notifier,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// Run sweeps on the configured period until ctx is cancelled. An
// in-flight sweep completes before Run returns.
func (s *LifecycleScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("lifecycle scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("lifecycle scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep finalizes every auction whose deadline has passed. One auction's
// failure never blocks the rest of the tick.
func (s *LifecycleScheduler) Sweep(ctx context.Context) {
	due, err := s.store.FindDueAuctions(ctx, s.now().UTC())
	if err != nil {
		s.logger.Error("failed to find due auctions", "error", err)
		return
	}

	for _, auction := range due {
		if err := s.Finalize(ctx, auction.ID); err != nil {
			s.logger.Error("failed to finalize auction",
				"auction_id", auction.ID, "error", err)
		}
	}
}

// Finalize completes one auction: picks the winner from the bid log
// (highest amount, earliest timestamp on ties), persists the result,
// publishes the Ended event and notifies merchant and subscribers.
// Finalizing an already-terminal auction is a no-op.
func (s *LifecycleScheduler) Finalize(ctx context.Context, auctionID string) error {
	auction, err := s.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if auction.Status.IsTerminal() {
		return nil
	}

	winningBid, err := s.store.GetWinningBid(ctx, auctionID)
	if err != nil {
		return err
	}

	auction.Status = models.AuctionStatusCompleted
	if winningBid != nil {
		auction.WinnerID = &winningBid.BidderID
		auction.WinningAmount = &winningBid.Amount
	}
	if err := s.store.UpdateAuction(ctx, auction); err != nil {
		return err
	}

	finalLeaderboard, err := s.snapshots.GetLeaderboard(ctx, auctionID)
	if err != nil {
		s.logger.Warn("failed to load final leaderboard",
			"auction_id", auctionID, "error", err)
		finalLeaderboard = nil
	}

	data := models.AuctionEndedData{
		AuctionID:        auctionID,
		FinalLeaderboard: finalLeaderboard,
	}
	if winningBid != nil {
		data.Winner = &models.WinnerInfo{
			BidderID:   winningBid.BidderID,
			WinningBid: winningBid.Amount,
		}
	}

	msg, err := models.NewMessage(models.MessageAuctionEnded, data)
	if err != nil {
		return err
	}
	if err := s.fanout.Publish(ctx, bus.TopicFor(auctionID), msg); err != nil {
		s.logger.Warn("failed to publish ended event",
			"auction_id", auctionID, "error", err)
	}

	s.sendEndNotifications(ctx, auction, winningBid, len(finalLeaderboard))

	s.logger.Info("auction finalized",
		"auction_id", auctionID,
		"has_winner", winningBid != nil)
	return nil
}

// sendEndNotifications notifies the merchant and every subscriber.
// Failures are isolated per recipient and only logged.
func (s *LifecycleScheduler) sendEndNotifications(ctx context.Context, auction *models.Auction, winningBid *models.Bid, participants int) {
	summary := notify.AuctionSummary{
		AuctionID:         auction.ID,
		ProductName:       auction.ProductName,
		ReservePrice:      auction.ReservePrice,
		StartTime:         auction.StartTime,
		EndTime:           auction.EndTime,
		TotalParticipants: participants,
	}
	if winningBid != nil {
		summary.WinnerID = winningBid.BidderID
		summary.WinningBid = winningBid.Amount
	}

	if err := s.notifier.SendMerchantNotification(ctx, auction.CreatedBy, summary); err != nil {
		s.logger.Warn("failed to notify merchant",
			"auction_id", auction.ID, "merchant", auction.CreatedBy, "error", err)
	}

	for _, subscriberID := range auction.SubscriberIDs {
		isWinner := winningBid != nil && subscriberID == winningBid.BidderID
		if err := s.notifier.SendAuctionEndNotification(ctx, subscriberID, summary, isWinner); err != nil {
			s.logger.Warn("failed to notify subscriber",
				"auction_id", auction.ID, "subscriber", subscriberID, "error", err)
		}
	}
}
