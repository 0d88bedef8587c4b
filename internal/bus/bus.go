// Package bus is the publish/subscribe fanout decoupling writers from
// live viewers. Topics are per-auction; delivery is at-most-once to
// currently subscribed consumers, with no replay for late subscribers.
package bus

import (
	"context"
	"strings"

	"github.com/ichiragkumar/auction/internal/models"
)

const topicPrefix = "auction_events:"

// TopicPattern matches every auction topic.
const TopicPattern = topicPrefix + "*"

// TopicFor returns the fanout topic for one auction.
func TopicFor(auctionID string) string {
	return topicPrefix + auctionID
}

// AuctionIDFromTopic extracts the auction id from a topic name.
func AuctionIDFromTopic(topic string) string {
	return strings.TrimPrefix(topic, topicPrefix)
}

// Envelope is a received fanout message with its topic context.
type Envelope struct {
	Topic     string
	AuctionID string
	Payload   []byte
}

// Bus publishes messages to topics and subscribes to topic patterns.
type Bus interface {
	Publish(ctx context.Context, topic string, msg *models.Message) error
	// Subscribe delivers matching messages until ctx is cancelled.
	Subscribe(ctx context.Context, pattern string) (<-chan *Envelope, error)
	Close() error
}
