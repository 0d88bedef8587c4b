package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MessageType identifies the kind of fanout message on an auction topic.
type MessageType string

const (
	MessageNewBid          MessageType = "NEW_BID"
	MessageAuctionExtended MessageType = "AUCTION_EXTENDED"
	MessageAuctionEnded    MessageType = "AUCTION_ENDED"
)

// Message is the envelope published on the fanout bus. Data holds the
// type-specific payload; the live gateway relays it verbatim.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewMessage marshals payload into a Message envelope.
func NewMessage(kind MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: kind, Data: data}, nil
}

// NewBidData is the payload for MessageNewBid.
type NewBidData struct {
	Bid         *Bid                `json:"bid"`
	Leaderboard []*LeaderboardEntry `json:"leaderboard"`
}

// AuctionExtendedData is the payload for MessageAuctionExtended.
type AuctionExtendedData struct {
	AuctionID      string    `json:"auction_id"`
	NewEndTime     time.Time `json:"new_end_time"`
	ExtensionCount int       `json:"extension_count"`
}

// WinnerInfo identifies the winning bidder of a completed auction.
type WinnerInfo struct {
	BidderID   string          `json:"bidder_id"`
	WinningBid decimal.Decimal `json:"winning_bid"`
}

// AuctionEndedData is the payload for MessageAuctionEnded. Winner is nil
// when the auction completed without any admitted bids.
type AuctionEndedData struct {
	AuctionID        string              `json:"auction_id"`
	Winner           *WinnerInfo         `json:"winner,omitempty"`
	FinalLeaderboard []*LeaderboardEntry `json:"final_leaderboard"`
}
