// Package ranking recomputes leaderboard order from admitted bids.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ichiragkumar/auction/internal/models"
	"github.com/ichiragkumar/auction/internal/store"
)

// Engine maintains per-bidder standings and assigns dense ranks.
//
// Engine methods do not lock by themselves. Writers racing through
// RecordBid + Recompute on the same auction can lose updates, so callers
// serialize the whole sequence with Lock; operations on different
// auctions stay fully parallel.
type Engine struct {
	store store.LeaderboardStore
	locks sync.Map // auctionID -> *sync.Mutex
}

// NewEngine creates a ranking engine over the given leaderboard store.
func NewEngine(st store.LeaderboardStore) *Engine {
	return &Engine{store: st}
}

// Lock acquires the auction's write lock and returns the unlock func.
func (e *Engine) Lock(auctionID string) func() {
	v, _ := e.locks.LoadOrStore(auctionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// RecordBid folds one admitted bid into the bidder's entry. A first bid
// creates the entry; a strictly higher amount advances HighestBid and
// LastBidTime; a non-improving bid leaves the recorded best untouched.
// Every admitted bid increments TotalBids.
func (e *Engine) RecordBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal, at time.Time) error {
	entry, err := e.store.GetEntry(ctx, auctionID, bidderID)
	if err != nil {
		return fmt.Errorf("failed to load leaderboard entry: %w", err)
	}

	if entry == nil {
		entry = &models.LeaderboardEntry{
			AuctionID:   auctionID,
			BidderID:    bidderID,
			HighestBid:  amount,
			LastBidTime: at,
			TotalBids:   1,
		}
	} else {
		entry.TotalBids++
		if amount.GreaterThan(entry.HighestBid) {
			entry.HighestBid = amount
			entry.LastBidTime = at
		}
	}

	if err := e.store.UpsertEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to save leaderboard entry: %w", err)
	}
	return nil
}

// Recompute reorders the auction's entries by (HighestBid desc,
// LastBidTime asc, BidderID asc), assigns ranks 1..N and persists them.
// It is a pure function of entry state: with no intervening writes a
// second call yields identical output.
func (e *Engine) Recompute(ctx context.Context, auctionID string) ([]*models.LeaderboardEntry, error) {
	entries, err := e.store.GetEntries(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard entries: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].HighestBid.Equal(entries[j].HighestBid) {
			return entries[i].HighestBid.GreaterThan(entries[j].HighestBid)
		}
		if !entries[i].LastBidTime.Equal(entries[j].LastBidTime) {
			return entries[i].LastBidTime.Before(entries[j].LastBidTime)
		}
		return entries[i].BidderID < entries[j].BidderID
	})

	for i, entry := range entries {
		entry.Rank = i + 1
		if err := e.store.UpsertEntry(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to persist rank for bidder %s: %w", entry.BidderID, err)
		}
	}
	return entries, nil
}
