// Package archive moves accepted-bid events through NATS JetStream into
// the durable audit trail.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the JetStream stream holding accepted-bid events.
	StreamName = "BID_EVENTS"

	subjectPrefix = "bid.events."
	// SubjectWildcard matches the bid event subjects of every auction.
	SubjectWildcard = subjectPrefix + "*"
)

// SubjectFor returns the archival subject for one auction.
func SubjectFor(auctionID string) string {
	return subjectPrefix + auctionID
}

// EnsureStream creates or updates the archival stream. Work-queue
// retention: each event is consumed exactly once by the archival worker.
func EnsureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Stream for accepted bid events archival",
		Subjects:    []string{SubjectWildcard},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	return stream, nil
}
