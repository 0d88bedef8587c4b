package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes every notice to the log instead of delivering it.
// It stands in wherever a real delivery channel is not wired up.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendAuctionInvitation logs an invitation notice.
func (n *LogNotifier) SendAuctionInvitation(_ context.Context, recipients []string, summary AuctionSummary) error {
	n.logger.Info("auction invitation",
		"auction_id", summary.AuctionID,
		"product", summary.ProductName,
		"recipients", len(recipients))
	return nil
}

// SendJoinConfirmation logs a join confirmation notice.
func (n *LogNotifier) SendJoinConfirmation(_ context.Context, recipient string, summary AuctionSummary) error {
	n.logger.Info("join confirmation",
		"auction_id", summary.AuctionID,
		"recipient", recipient)
	return nil
}

// SendAuctionEndNotification logs a win/lose notice.
func (n *LogNotifier) SendAuctionEndNotification(_ context.Context, recipient string, summary AuctionSummary, isWinner bool) error {
	n.logger.Info("auction end notification",
		"auction_id", summary.AuctionID,
		"recipient", recipient,
		"is_winner", isWinner)
	return nil
}

// SendMerchantNotification logs the merchant completion notice.
func (n *LogNotifier) SendMerchantNotification(_ context.Context, merchant string, summary AuctionSummary) error {
	n.logger.Info("merchant notification",
		"auction_id", summary.AuctionID,
		"merchant", merchant,
		"winning_bid", summary.WinningBid)
	return nil
}
