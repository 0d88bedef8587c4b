// Package scheduler runs the periodic sweeps that extend and finalize
// auctions. Deadlines are recovered from persisted end times on every
// tick, so a process restart drops no pending transition.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ichiragkumar/auction/internal/bus"
	"github.com/ichiragkumar/auction/internal/cache"
	"github.com/ichiragkumar/auction/internal/models"
	"github.com/ichiragkumar/auction/internal/store"
)

const (
	// DefaultExtensionInterval is the extension sweep period.
	DefaultExtensionInterval = 30 * time.Second

	extensionLookahead = 3 * time.Minute
	extensionIncrement = 5 * time.Minute
)

// ExtensionMonitor extends deadlines of auctions whose top-5 standings
// changed close to the deadline, guaranteeing a minimum stability window
// before the clock can lapse. Run exactly one instance per deployment.
type ExtensionMonitor struct {
	store     store.AuctionStore
	snapshots *cache.SnapshotCache
	fanout    bus.Bus
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time
}

// NewExtensionMonitor wires the anti-sniping sweep.
func NewExtensionMonitor(st store.AuctionStore, snapshots *cache.SnapshotCache, fanout bus.Bus, logger *slog.Logger, interval time.Duration) *ExtensionMonitor {
	if interval <= 0 {
		interval = DefaultExtensionInterval
	}
	return &ExtensionMonitor{
		store:     st,
		snapshots: snapshots,
		fanout:    fanout,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// Run sweeps on the configured period until ctx is cancelled. An
// in-flight sweep completes before Run returns.
func (m *ExtensionMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("extension monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("extension monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep checks every auction ending inside the lookahead window and
// extends those whose top ranks churned. One auction's failure never
// blocks the rest of the tick.
func (m *ExtensionMonitor) Sweep(ctx context.Context) {
	now := m.now().UTC()

	auctions, err := m.store.FindEndingSoon(ctx, now, now.Add(extensionLookahead))
	if err != nil {
		m.logger.Error("failed to find auctions ending soon", "error", err)
		return
	}

	for _, auction := range auctions {
		if err := m.checkExtension(ctx, auction, now); err != nil {
			m.logger.Error("extension check failed",
				"auction_id", auction.ID, "error", err)
		}
	}
}

func (m *ExtensionMonitor) checkExtension(ctx context.Context, auction *models.Auction, now time.Time) error {
	changed, err := m.snapshots.HasTopRanksChanged(ctx, auction.ID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	// The sweep list is a point-in-time snapshot; the auction may have
	// been cancelled or finalized since. Re-fetch so a terminal status is
	// never overwritten with an extension.
	auction, err = m.store.GetAuction(ctx, auction.ID)
	if err != nil {
		return err
	}
	if !auction.Status.AcceptsBids() {
		return nil
	}

	auction.EndTime = auction.EndTime.Add(extensionIncrement)
	auction.Status = models.AuctionStatusExtended
	auction.ExtensionCount++
	auction.LastExtendedAt = &now

	if err := m.store.UpdateAuction(ctx, auction); err != nil {
		return err
	}

	msg, err := models.NewMessage(models.MessageAuctionExtended, models.AuctionExtendedData{
		AuctionID:      auction.ID,
		NewEndTime:     auction.EndTime,
		ExtensionCount: auction.ExtensionCount,
	})
	if err != nil {
		return err
	}
	if err := m.fanout.Publish(ctx, bus.TopicFor(auction.ID), msg); err != nil {
		m.logger.Warn("failed to publish extension event",
			"auction_id", auction.ID, "error", err)
	}

	m.logger.Info("auction extended",
		"auction_id", auction.ID,
		"new_end_time", auction.EndTime,
		"extension_count", auction.ExtensionCount)
	return nil
}
