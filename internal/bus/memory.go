package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/ichiragkumar/auction/internal/models"
)

type memorySub struct {
	pattern string
	ch      chan *Envelope
	ctx     context.Context
}

// Memory is an in-process Bus for tests and single-process runs. It keeps
// the at-most-once contract: a message published before a subscription
// exists is not replayed.
type Memory struct {
	mu   sync.Mutex
	subs []*memorySub
}

// NewMemory creates an empty in-memory bus.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish delivers msg to every currently matching subscriber.
func (m *Memory) Publish(_ context.Context, topic string, msg *models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	env := &Envelope{
		Topic:     topic,
		AuctionID: AuctionIDFromTopic(topic),
		Payload:   payload,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alive := m.subs[:0]
	for _, sub := range m.subs {
		if sub.ctx.Err() != nil {
			close(sub.ch)
			continue
		}
		alive = append(alive, sub)
		if ok, _ := path.Match(sub.pattern, topic); !ok {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			// Subscriber is not draining; at-most-once allows dropping.
		}
	}
	m.subs = alive
	return nil
}

// Subscribe registers a pattern subscription tied to ctx.
func (m *Memory) Subscribe(ctx context.Context, pattern string) (<-chan *Envelope, error) {
	sub := &memorySub{
		pattern: pattern,
		ch:      make(chan *Envelope, 256),
		ctx:     ctx,
	}

	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	return sub.ch, nil
}

// Close drops all subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		close(sub.ch)
	}
	m.subs = nil
	return nil
}
