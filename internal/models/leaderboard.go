package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeaderboardEntry is the per-bidder standing in one auction, derived
// entirely from that bidder's admitted bids. HighestBid is monotonic: it
// only increases. TotalBids counts every admitted bid, improving or not.
type LeaderboardEntry struct {
	AuctionID   string          `json:"auction_id"`
	BidderID    string          `json:"bidder_id"`
	HighestBid  decimal.Decimal `json:"highest_bid"`
	Rank        int             `json:"rank"`
	LastBidTime time.Time       `json:"last_bid_time"`
	TotalBids   int             `json:"total_bids"`
}

// LeaderboardView is the snapshot shape pushed to live viewers.
type LeaderboardView struct {
	Top5  []*LeaderboardEntry `json:"top5"`
	All   []*LeaderboardEntry `json:"all"`
	Total int                 `json:"total"`
}

// BuildLeaderboardView wraps an ordered leaderboard for delivery.
func BuildLeaderboardView(entries []*LeaderboardEntry) *LeaderboardView {
	top := entries
	if len(top) > 5 {
		top = top[:5]
	}
	return &LeaderboardView{
		Top5:  top,
		All:   entries,
		Total: len(entries),
	}
}
