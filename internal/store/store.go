package store

import (
	"context"
	"errors"
	"time"

	"github.com/ichiragkumar/auction/internal/models"
)

// ErrAuctionNotFound is returned when an auction id has no record.
var ErrAuctionNotFound = errors.New("auction not found")

// AuctionStore persists auctions and serves the sweep queries.
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *models.Auction) error
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
	UpdateAuction(ctx context.Context, auction *models.Auction) error
	// ListAuctions returns auctions in any of the given statuses,
	// newest first. A zero limit means no limit.
	ListAuctions(ctx context.Context, statuses []models.AuctionStatus, limit, offset int) ([]*models.Auction, error)
	// FindDueAuctions returns non-terminal auctions whose deadline has
	// passed: status in {active, extended} and endTime <= now.
	FindDueAuctions(ctx context.Context, now time.Time) ([]*models.Auction, error)
	// FindEndingSoon returns non-terminal auctions with endTime inside
	// [from, to], the extension monitor's lookahead window.
	FindEndingSoon(ctx context.Context, from, to time.Time) ([]*models.Auction, error)
}

// BidStore is the append-only bid log.
type BidStore interface {
	AppendBid(ctx context.Context, bid *models.Bid) error
	// GetBids returns the auction's bid log ordered by amount descending,
	// earliest timestamp first within equal amounts.
	GetBids(ctx context.Context, auctionID string) ([]*models.Bid, error)
	// GetWinningBid returns the admitted bid with the highest amount,
	// ties broken by earliest timestamp. Returns (nil, nil) when the
	// auction has no bids.
	GetWinningBid(ctx context.Context, auctionID string) (*models.Bid, error)
}

// LeaderboardStore persists per-bidder standings.
type LeaderboardStore interface {
	// GetEntry returns the entry for (auctionID, bidderID), or (nil, nil)
	// when the bidder has not bid on the auction yet.
	GetEntry(ctx context.Context, auctionID, bidderID string) (*models.LeaderboardEntry, error)
	UpsertEntry(ctx context.Context, entry *models.LeaderboardEntry) error
	// GetEntries returns all entries for the auction ordered by rank.
	GetEntries(ctx context.Context, auctionID string) ([]*models.LeaderboardEntry, error)
}

// BidEventStore is the audit trail written by the archival worker.
type BidEventStore interface {
	// InsertBidEvent records an archived bid event. Inserting the same
	// event id twice is a no-op.
	InsertBidEvent(ctx context.Context, event *models.BidEvent) error
}

// Store is the full system of record.
type Store interface {
	AuctionStore
	BidStore
	LeaderboardStore
	BidEventStore
}
