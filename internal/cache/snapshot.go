package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ichiragkumar/auction/internal/models"
	"github.com/ichiragkumar/auction/internal/store"
)

const (
	// TopRankCount is how many leading bidders form the churn fingerprint.
	TopRankCount = 5

	leaderboardTTL = 300 * time.Second
	topRanksTTL    = 180 * time.Second
)

// SnapshotCache caches the last computed leaderboard per auction and a
// top-5 identity fingerprint used to detect churn near the deadline.
// Cache failures degrade to store reads and are logged, never surfaced.
type SnapshotCache struct {
	cache  Cache
	store  store.LeaderboardStore
	logger *slog.Logger
}

// NewSnapshotCache creates a snapshot cache over cache and store.
func NewSnapshotCache(c Cache, st store.LeaderboardStore, logger *slog.Logger) *SnapshotCache {
	return &SnapshotCache{cache: c, store: st, logger: logger}
}

// GetLeaderboard serves the ordered leaderboard from cache. On a miss it
// reads the persisted ranking from the store and repopulates the cache.
func (s *SnapshotCache) GetLeaderboard(ctx context.Context, auctionID string) ([]*models.LeaderboardEntry, error) {
	key := leaderboardKey(auctionID)

	val, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("leaderboard cache read failed, falling back to store",
			"auction_id", auctionID, "error", err)
	} else if ok {
		var entries []*models.LeaderboardEntry
		if err := json.Unmarshal([]byte(val), &entries); err == nil {
			return entries, nil
		}
		s.logger.Warn("discarding unreadable cached leaderboard", "auction_id", auctionID)
	}

	entries, err := s.store.GetEntries(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard from store: %w", err)
	}

	s.SetLeaderboard(ctx, auctionID, entries)
	return entries, nil
}

// SetLeaderboard refreshes the cached leaderboard. Write failures are
// logged only; the store stays the system of record.
func (s *SnapshotCache) SetLeaderboard(ctx context.Context, auctionID string, entries []*models.LeaderboardEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		s.logger.Warn("failed to marshal leaderboard for cache", "auction_id", auctionID, "error", err)
		return
	}
	if err := s.cache.SetWithExpiry(ctx, leaderboardKey(auctionID), string(data), leaderboardTTL); err != nil {
		s.logger.Warn("failed to cache leaderboard", "auction_id", auctionID, "error", err)
	}
}

// TopRanks returns the bidder ids of the current top count entries, in
// rank order.
func (s *SnapshotCache) TopRanks(ctx context.Context, auctionID string, count int) ([]string, error) {
	entries, err := s.GetLeaderboard(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if len(entries) > count {
		entries = entries[:count]
	}
	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.BidderID
	}
	return ids, nil
}

// HasTopRanksChanged compares the current top-5 identity against the
// stored fingerprint. The first observation is recorded as the baseline
// and reported as no change. On a detected change the fingerprint is
// replaced so repeated calls settle back to false.
func (s *SnapshotCache) HasTopRanksChanged(ctx context.Context, auctionID string) (bool, error) {
	current, err := s.TopRanks(ctx, auctionID, TopRankCount)
	if err != nil {
		return false, err
	}

	key := topRanksKey(auctionID)
	prev, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		// No fingerprint to compare against; report no change rather
		// than trigger extensions off a cache outage.
		s.logger.Warn("top ranks fingerprint read failed", "auction_id", auctionID, "error", err)
		return false, nil
	}

	if !ok {
		s.storeFingerprint(ctx, auctionID, current)
		return false, nil
	}

	var previous []string
	if err := json.Unmarshal([]byte(prev), &previous); err != nil {
		s.storeFingerprint(ctx, auctionID, current)
		return false, nil
	}

	if equalIDs(current, previous) {
		return false, nil
	}

	s.storeFingerprint(ctx, auctionID, current)
	return true, nil
}

func (s *SnapshotCache) storeFingerprint(ctx context.Context, auctionID string, ids []string) {
	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := s.cache.SetWithExpiry(ctx, topRanksKey(auctionID), string(data), topRanksTTL); err != nil {
		s.logger.Warn("failed to store top ranks fingerprint", "auction_id", auctionID, "error", err)
	}
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func leaderboardKey(auctionID string) string {
	return "leaderboard:" + auctionID
}

func topRanksKey(auctionID string) string {
	return "top_ranks:" + auctionID
}
