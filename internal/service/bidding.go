// Package service implements the auction core operations behind the HTTP
// surface: bid admission, leaderboard reads and auction lifecycle ops.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"

	"github.com/ichiragkumar/auction/internal/archive"
	"github.com/ichiragkumar/auction/internal/bus"
	"github.com/ichiragkumar/auction/internal/cache"
	"github.com/ichiragkumar/auction/internal/models"
	"github.com/ichiragkumar/auction/internal/ranking"
	"github.com/ichiragkumar/auction/internal/store"
)

// RejectReason says why a bid was not admitted.
type RejectReason string

const (
	RejectAuctionNotActive RejectReason = "auction_not_active"
	RejectBelowReserve     RejectReason = "below_reserve"
)

// BidResult is the outcome of a PlaceBid call. When Accepted is true,
// Leaderboard holds the ranking recomputed with this bid included.
type BidResult struct {
	Accepted    bool
	Reason      RejectReason
	Bid         *models.Bid
	Leaderboard []*models.LeaderboardEntry
}

// BiddingService admits bids and serves leaderboard and bid-log reads.
type BiddingService struct {
	store     store.Store
	engine    *ranking.Engine
	snapshots *cache.SnapshotCache
	fanout    bus.Bus
	js        jetstream.JetStream
	logger    *slog.Logger
	now       func() time.Time
}

// NewBiddingService wires the bid admission path.
func NewBiddingService(st store.Store, engine *ranking.Engine, snapshots *cache.SnapshotCache, fanout bus.Bus, logger *slog.Logger) *BiddingService {
	return &BiddingService{
		store:     st,
		engine:    engine,
		snapshots: snapshots,
		fanout:    fanout,
		logger:    logger,
		now:       time.Now,
	}
}

// AttachArchival enables publishing accepted bids to the JetStream
// archival stream, creating the stream when needed.
func (s *BiddingService) AttachArchival(ctx context.Context, natsConn *nats.Conn) error {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if _, err := archive.EnsureStream(ctx, js); err != nil {
		return err
	}
	s.js = js
	return nil
}

// PlaceBid validates and records one bid. Admission, the bid append, the
// ranking update and the cache refresh run inside the auction's write
// lock, so a caller reading the leaderboard right after a successful bid
// observes its own write. Returns store.ErrAuctionNotFound when the
// auction does not exist.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*BidResult, error) {
	unlock := s.engine.Lock(auctionID)
	defer unlock()

	auction, err := s.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if !auction.Status.AcceptsBids() {
		return &BidResult{Reason: RejectAuctionNotActive}, nil
	}
	if amount.LessThan(auction.ReservePrice) {
		return &BidResult{Reason: RejectBelowReserve}, nil
	}

	bid := &models.Bid{
		ID:        uuid.New().String(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		Timestamp: s.now().UTC(),
		IsValid:   true,
	}

	if err := s.store.AppendBid(ctx, bid); err != nil {
		return nil, fmt.Errorf("failed to append bid: %w", err)
	}

	if err := s.engine.RecordBid(ctx, auctionID, bidderID, amount, bid.Timestamp); err != nil {
		return nil, err
	}

	leaderboard, err := s.engine.Recompute(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	s.snapshots.SetLeaderboard(ctx, auctionID, leaderboard)

	s.publishNewBid(bid, leaderboard)
	s.publishToArchivalStream(bid)

	return &BidResult{
		Accepted:    true,
		Bid:         bid,
		Leaderboard: leaderboard,
	}, nil
}

// GetLeaderboard returns the ordered leaderboard, cache first. A zero or
// negative limit returns all entries.
func (s *BiddingService) GetLeaderboard(ctx context.Context, auctionID string, limit int) ([]*models.LeaderboardEntry, error) {
	entries, err := s.snapshots.GetLeaderboard(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GetBids returns the auction's bid log ordered by amount descending.
func (s *BiddingService) GetBids(ctx context.Context, auctionID string) ([]*models.Bid, error) {
	if _, err := s.store.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.store.GetBids(ctx, auctionID)
}

// publishNewBid fans the accepted bid out to live viewers, best effort.
func (s *BiddingService) publishNewBid(bid *models.Bid, leaderboard []*models.LeaderboardEntry) {
	msg, err := models.NewMessage(models.MessageNewBid, models.NewBidData{
		Bid:         bid,
		Leaderboard: leaderboard,
	})
	if err != nil {
		s.logger.Warn("failed to build new bid message", "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.fanout.Publish(ctx, bus.TopicFor(bid.AuctionID), msg); err != nil {
			s.logger.Warn("failed to publish new bid event",
				"auction_id", bid.AuctionID, "error", err)
		}
	}()
}

// publishToArchivalStream hands the accepted bid to JetStream. The write
// path never depends on archival: failures are logged and dropped.
func (s *BiddingService) publishToArchivalStream(bid *models.Bid) {
	if s.js == nil {
		return
	}

	event := &models.BidEvent{
		EventID:   uuid.New().String(),
		AuctionID: bid.AuctionID,
		BidID:     bid.ID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Timestamp: bid.Timestamp,
	}

	go func() {
		data, err := json.Marshal(event)
		if err != nil {
			s.logger.Warn("failed to marshal bid event", "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := s.js.Publish(ctx, archive.SubjectFor(bid.AuctionID), data); err != nil {
			s.logger.Warn("failed to publish to archival stream",
				"event_id", event.EventID, "error", err)
		}
	}()
}
