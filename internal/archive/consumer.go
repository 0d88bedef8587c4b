package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ichiragkumar/auction/internal/models"
	"github.com/ichiragkumar/auction/internal/store"
)

// Consumer pulls bid events off the JetStream stream and persists them.
// Delivery is at-least-once; the insert is idempotent on event id.
type Consumer struct {
	conn   *nats.Conn
	db     store.BidEventStore
	logger *slog.Logger
}

// NewConsumer connects to NATS and prepares the consumer.
func NewConsumer(natsURL string, db store.BidEventStore, logger *slog.Logger) (*Consumer, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Consumer{conn: conn, db: db, logger: logger}, nil
}

// Start consumes bid events until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	js, err := jetstream.New(c.conn)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := EnsureStream(ctx, js); err != nil {
		return err
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       "archival-worker",
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: SubjectWildcard,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cctx, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cctx.Stop()

	c.logger.Info("consuming bid events", "stream", StreamName)
	<-ctx.Done()
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var event models.BidEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		c.logger.Error("failed to unmarshal bid event", "error", err)
		// Poison message; acking keeps it from blocking the queue.
		_ = msg.Ack()
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.db.InsertBidEvent(dbCtx, &event); err != nil {
		c.logger.Error("failed to persist bid event",
			"event_id", event.EventID, "error", err)
		// No ack: JetStream redelivers and the insert is idempotent.
		return
	}

	c.logger.Info("persisted bid event",
		"event_id", event.EventID,
		"auction_id", event.AuctionID,
		"bidder_id", event.BidderID)

	_ = msg.Ack()
}

// Close closes the NATS connection.
func (c *Consumer) Close() error {
	c.conn.Close()
	return nil
}
