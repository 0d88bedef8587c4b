package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus tracks where an auction is in its lifecycle.
// Transitions only move forward: pending -> active -> (extended <-> active)
// -> completed, or -> cancelled from any non-terminal state.
type AuctionStatus string

const (
	AuctionStatusPending   AuctionStatus = "pending"
	AuctionStatusExtended  AuctionStatus = "extended"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusCompleted AuctionStatus = "completed"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// IsTerminal reports whether the status accepts no further mutation.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionStatusCompleted || s == AuctionStatusCancelled
}

// AcceptsBids reports whether bids may be admitted in this status.
func (s AuctionStatus) AcceptsBids() bool {
	return s == AuctionStatusActive || s == AuctionStatusExtended
}

// Auction represents a timed bidding event for a single product.
// ReservePrice is immutable after creation; EndTime only ever moves forward.
type Auction struct {
	ID             string           `json:"id"`
	ProductName    string           `json:"product_name"`
	ReservePrice   decimal.Decimal  `json:"reserve_price"`
	CreatedBy      string           `json:"created_by"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
	Status         AuctionStatus    `json:"status"`
	SubscriberIDs  []string         `json:"subscriber_ids,omitempty"`
	ExtensionCount int              `json:"extension_count"`
	LastExtendedAt *time.Time       `json:"last_extended_at,omitempty"`
	WinnerID       *string          `json:"winner_id,omitempty"`
	WinningAmount  *decimal.Decimal `json:"winning_amount,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// HasSubscriber reports whether userID is already in the subscriber set.
func (a *Auction) HasSubscriber(userID string) bool {
	for _, id := range a.SubscriberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
