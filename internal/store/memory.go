package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ichiragkumar/auction/internal/models"
)

// Memory is an in-memory Store. It backs component tests and local runs
// without a database; the semantics mirror the Postgres implementation.
type Memory struct {
	mu       sync.RWMutex
	auctions map[string]*models.Auction
	bids     map[string][]*models.Bid                     // auctionID -> append-only log
	entries  map[string]map[string]*models.LeaderboardEntry // auctionID -> bidderID -> entry
	events   map[string]*models.BidEvent
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		auctions: make(map[string]*models.Auction),
		bids:     make(map[string][]*models.Bid),
		entries:  make(map[string]map[string]*models.LeaderboardEntry),
		events:   make(map[string]*models.BidEvent),
	}
}

// CreateAuction inserts a new auction record.
func (m *Memory) CreateAuction(_ context.Context, a *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[a.ID] = copyAuction(a)
	return nil
}

// GetAuction fetches one auction by id.
func (m *Memory) GetAuction(_ context.Context, id string) (*models.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return copyAuction(a), nil
}

// UpdateAuction persists the auction's mutable fields.
func (m *Memory) UpdateAuction(_ context.Context, a *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auctions[a.ID]; !ok {
		return ErrAuctionNotFound
	}
	m.auctions[a.ID] = copyAuction(a)
	return nil
}

// ListAuctions returns auctions in the given statuses, newest first.
func (m *Memory) ListAuctions(_ context.Context, statuses []models.AuctionStatus, limit, offset int) ([]*models.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[models.AuctionStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var out []*models.Auction
	for _, a := range m.auctions {
		if wanted[a.Status] {
			out = append(out, copyAuction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindDueAuctions returns non-terminal auctions whose deadline has passed.
func (m *Memory) FindDueAuctions(_ context.Context, now time.Time) ([]*models.Auction, error) {
	return m.findByDeadline(func(a *models.Auction) bool {
		return !a.EndTime.After(now)
	})
}

// FindEndingSoon returns non-terminal auctions ending inside [from, to].
func (m *Memory) FindEndingSoon(_ context.Context, from, to time.Time) ([]*models.Auction, error) {
	return m.findByDeadline(func(a *models.Auction) bool {
		return !a.EndTime.Before(from) && !a.EndTime.After(to)
	})
}

func (m *Memory) findByDeadline(match func(*models.Auction) bool) ([]*models.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Auction
	for _, a := range m.auctions {
		if a.Status.AcceptsBids() && match(a) {
			out = append(out, copyAuction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

// AppendBid writes one bid to the append-only log.
func (m *Memory) AppendBid(_ context.Context, bid *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := *bid
	m.bids[bid.AuctionID] = append(m.bids[bid.AuctionID], &b)
	return nil
}

// GetBids returns the bid log ordered by amount descending.
func (m *Memory) GetBids(_ context.Context, auctionID string) ([]*models.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Bid, 0, len(m.bids[auctionID]))
	for _, bid := range m.bids[auctionID] {
		b := *bid
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// GetWinningBid returns the highest bid, earliest timestamp breaking ties.
func (m *Memory) GetWinningBid(ctx context.Context, auctionID string) (*models.Bid, error) {
	bids, err := m.GetBids(ctx, auctionID)
	if err != nil || len(bids) == 0 {
		return nil, err
	}
	return bids[0], nil
}

// GetEntry returns the leaderboard entry for one bidder, nil when absent.
func (m *Memory) GetEntry(_ context.Context, auctionID, bidderID string) (*models.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[auctionID][bidderID]
	if !ok {
		return nil, nil
	}
	e := *entry
	return &e, nil
}

// UpsertEntry creates or replaces the entry keyed by (auction, bidder).
func (m *Memory) UpsertEntry(_ context.Context, entry *models.LeaderboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries[entry.AuctionID] == nil {
		m.entries[entry.AuctionID] = make(map[string]*models.LeaderboardEntry)
	}
	e := *entry
	m.entries[entry.AuctionID][entry.BidderID] = &e
	return nil
}

// GetEntries returns the auction's leaderboard ordered by rank.
func (m *Memory) GetEntries(_ context.Context, auctionID string) ([]*models.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.LeaderboardEntry, 0, len(m.entries[auctionID]))
	for _, entry := range m.entries[auctionID] {
		e := *entry
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

// InsertBidEvent records an archived bid event, idempotent on event id.
func (m *Memory) InsertBidEvent(_ context.Context, event *models.BidEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.EventID]; ok {
		return nil
	}
	e := *event
	m.events[event.EventID] = &e
	return nil
}

func copyAuction(a *models.Auction) *models.Auction {
	c := *a
	c.SubscriberIDs = append([]string(nil), a.SubscriberIDs...)
	if a.LastExtendedAt != nil {
		t := *a.LastExtendedAt
		c.LastExtendedAt = &t
	}
	if a.WinnerID != nil {
		id := *a.WinnerID
		c.WinnerID = &id
	}
	if a.WinningAmount != nil {
		amt := *a.WinningAmount
		c.WinningAmount = &amt
	}
	return &c
}
