package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid is a single admitted bid on an auction. The bid log is append-only:
// records are never mutated or deleted once written.
type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	IsValid   bool            `json:"is_valid"`
}

// BidEvent is published to the archival stream for every accepted bid.
// Consumed by the archival worker; inserts are idempotent on EventID.
type BidEvent struct {
	EventID   string          `json:"event_id"`
	AuctionID string          `json:"auction_id"`
	BidID     string          `json:"bid_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}
