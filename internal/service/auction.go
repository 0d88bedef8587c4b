package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ichiragkumar/auction/internal/models"
	"github.com/ichiragkumar/auction/internal/notify"
	"github.com/ichiragkumar/auction/internal/store"
)

var (
	// ErrInvalidAuction is returned for unusable creation parameters.
	ErrInvalidAuction = errors.New("invalid auction parameters")
	// ErrAuctionFinished is returned when mutating a terminal auction.
	ErrAuctionFinished = errors.New("auction already finished")
)

// AuctionService owns auction administration: creation, listing,
// cancellation and subscriber joins.
type AuctionService struct {
	store    store.Store
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuctionService wires the auction admin operations.
func NewAuctionService(st store.Store, notifier notify.Notifier, logger *slog.Logger) *AuctionService {
	return &AuctionService{
		store:    st,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateAuction creates and activates an auction running for duration.
// Invitees become subscribers and receive an invitation, fire and forget.
func (s *AuctionService) CreateAuction(ctx context.Context, productName string, reservePrice decimal.Decimal, duration time.Duration, merchantID string, inviteeIDs []string) (*models.Auction, error) {
	if productName == "" || merchantID == "" {
		return nil, ErrInvalidAuction
	}
	if reservePrice.IsNegative() || duration <= 0 {
		return nil, ErrInvalidAuction
	}

	now := s.now().UTC()
	auction := &models.Auction{
		ID:            uuid.New().String(),
		ProductName:   productName,
		ReservePrice:  reservePrice,
		CreatedBy:     merchantID,
		StartTime:     now,
		EndTime:       now.Add(duration),
		Status:        models.AuctionStatusPending,
		SubscriberIDs: append([]string(nil), inviteeIDs...),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	if len(inviteeIDs) > 0 {
		summary := s.summarize(auction)
		go func() {
			if err := s.notifier.SendAuctionInvitation(context.Background(), inviteeIDs, summary); err != nil {
				s.logger.Warn("failed to send auction invitations",
					"auction_id", auction.ID, "error", err)
			}
		}()
	}

	auction.Status = models.AuctionStatusActive
	if err := s.store.UpdateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to activate auction: %w", err)
	}

	s.logger.Info("auction created",
		"auction_id", auction.ID,
		"product", auction.ProductName,
		"ends_at", auction.EndTime)
	return auction, nil
}

// GetAuction fetches one auction.
func (s *AuctionService) GetAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	return s.store.GetAuction(ctx, auctionID)
}

// ListAuctions returns running auctions, newest first.
func (s *AuctionService) ListAuctions(ctx context.Context, page, limit int) ([]*models.Auction, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	statuses := []models.AuctionStatus{models.AuctionStatusActive, models.AuctionStatusExtended}
	return s.store.ListAuctions(ctx, statuses, limit, (page-1)*limit)
}

// CancelAuction moves a non-terminal auction to cancelled.
func (s *AuctionService) CancelAuction(ctx context.Context, auctionID string) error {
	auction, err := s.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if auction.Status.IsTerminal() {
		return ErrAuctionFinished
	}

	auction.Status = models.AuctionStatusCancelled
	if err := s.store.UpdateAuction(ctx, auction); err != nil {
		return fmt.Errorf("failed to cancel auction: %w", err)
	}

	s.logger.Info("auction cancelled", "auction_id", auctionID)
	return nil
}

// JoinAuction adds userID to the subscriber set and confirms the join.
// Joining twice is a no-op.
func (s *AuctionService) JoinAuction(ctx context.Context, auctionID, userID string) error {
	auction, err := s.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if auction.Status.IsTerminal() {
		return ErrAuctionFinished
	}

	if !auction.HasSubscriber(userID) {
		auction.SubscriberIDs = append(auction.SubscriberIDs, userID)
		if err := s.store.UpdateAuction(ctx, auction); err != nil {
			return fmt.Errorf("failed to add subscriber: %w", err)
		}
	}

	summary := s.summarize(auction)
	go func() {
		if err := s.notifier.SendJoinConfirmation(context.Background(), userID, summary); err != nil {
			s.logger.Warn("failed to send join confirmation",
				"auction_id", auctionID, "user_id", userID, "error", err)
		}
	}()

	return nil
}

func (s *AuctionService) summarize(auction *models.Auction) notify.AuctionSummary {
	summary := notify.AuctionSummary{
		AuctionID:         auction.ID,
		ProductName:       auction.ProductName,
		ReservePrice:      auction.ReservePrice,
		StartTime:         auction.StartTime,
		EndTime:           auction.EndTime,
		TotalParticipants: len(auction.SubscriberIDs),
	}
	if auction.WinnerID != nil {
		summary.WinnerID = *auction.WinnerID
	}
	if auction.WinningAmount != nil {
		summary.WinningBid = *auction.WinningAmount
	}
	return summary
}
