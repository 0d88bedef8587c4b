// Package notify defines the outbound notification collaborator.
// Composition and delivery live outside this system; callers invoke the
// interface fire-and-forget and only log failures.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AuctionSummary carries the auction facts a notification needs.
type AuctionSummary struct {
	AuctionID         string
	ProductName       string
	ReservePrice      decimal.Decimal
	StartTime         time.Time
	EndTime           time.Time
	WinnerID          string
	WinningBid        decimal.Decimal
	TotalParticipants int
}

// Notifier sends auction notices to recipients. Implementations must not
// let one failed recipient abort a batch.
type Notifier interface {
	SendAuctionInvitation(ctx context.Context, recipients []string, summary AuctionSummary) error
	SendJoinConfirmation(ctx context.Context, recipient string, summary AuctionSummary) error
	SendAuctionEndNotification(ctx context.Context, recipient string, summary AuctionSummary, isWinner bool) error
	SendMerchantNotification(ctx context.Context, merchant string, summary AuctionSummary) error
}
