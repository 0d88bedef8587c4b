// Package ws is the live view gateway: it groups websocket connections
// per auction, pushes snapshots to joiners and relays fanout messages.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ichiragkumar/auction/internal/bus"
	"github.com/ichiragkumar/auction/internal/cache"
	"github.com/ichiragkumar/auction/internal/models"
)

// Manager manages all websocket connections, one group per auction.
type Manager struct {
	snapshots *cache.SnapshotCache
	logger    *slog.Logger

	// Map of auctionID -> set of connections watching that auction.
	groups sync.Map // map[string]*sync.Map

	register   chan *Client
	unregister chan *Client
	relay      chan *bus.Envelope
}

// Client represents one websocket viewer connection.
type Client struct {
	ID        string
	AuctionID string
	Conn      *websocket.Conn
	Send      chan []byte

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// trySend queues payload for the write pump. It reports false when the
// client is closed or its buffer is full. Sends and close share a lock;
// snapshot pushes run concurrently with the manager loop that closes
// clients, and a send must never hit a closed channel.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.Send)
		c.Conn.Close()
	})
}

// NewManager creates a gateway manager reading snapshots from snapshots.
func NewManager(snapshots *cache.SnapshotCache, logger *slog.Logger) *Manager {
	return &Manager{
		snapshots:  snapshots,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		relay:      make(chan *bus.Envelope, 256),
	}
}

// Run starts the manager's main loop. Run it in a goroutine.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-m.register:
			m.registerClient(ctx, client)
		case client := <-m.unregister:
			m.unregisterClient(client)
		case env := <-m.relay:
			m.relayEnvelope(env)
		}
	}
}

// RegisterClient joins a client to its auction's group.
func (m *Manager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient removes a client and closes its connection.
func (m *Manager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// Relay hands a fanout envelope to the manager for group delivery.
func (m *Manager) Relay(env *bus.Envelope) {
	m.relay <- env
}

// ViewerCount returns the number of connections watching an auction.
func (m *Manager) ViewerCount(auctionID string) int {
	group, ok := m.groups.Load(auctionID)
	if !ok {
		return 0
	}
	count := 0
	group.(*sync.Map).Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// registerClient adds the client to its group, pushes a full snapshot so
// late joiners need not wait for the next event, and re-broadcasts the
// group's viewer count. The snapshot load does cache and store IO, so it
// runs off the manager loop; a slow read must not stall relay or other
// joins. The goroutine keeps the snapshot ahead of the count for the
// joiner itself.
func (m *Manager) registerClient(ctx context.Context, client *Client) {
	group, _ := m.groups.LoadOrStore(client.AuctionID, &sync.Map{})
	group.(*sync.Map).Store(client, true)

	go client.writePump()

	m.logger.Info("viewer joined",
		"connection_id", client.ID, "auction_id", client.AuctionID)

	go func() {
		m.pushSnapshot(ctx, client)
		m.broadcastViewerCount(client.AuctionID)
	}()
}

// unregisterClient removes a client and re-broadcasts the viewer count
// to the remaining members.
func (m *Manager) unregisterClient(client *Client) {
	if group, ok := m.groups.Load(client.AuctionID); ok {
		group.(*sync.Map).Delete(client)
	}
	client.close()

	m.logger.Info("viewer left",
		"connection_id", client.ID, "auction_id", client.AuctionID)

	m.broadcastViewerCount(client.AuctionID)
}

// relayEnvelope forwards a fanout message verbatim to the auction's
// group. After an Ended message the group is retired: no further joins
// are expected for a completed auction.
func (m *Manager) relayEnvelope(env *bus.Envelope) {
	m.broadcast(env.AuctionID, env.Payload)

	var msg models.Message
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		m.logger.Warn("unparseable fanout message", "topic", env.Topic)
		return
	}
	if msg.Type == models.MessageAuctionEnded {
		m.groups.Delete(env.AuctionID)
	}
}

func (m *Manager) broadcast(auctionID string, payload []byte) {
	group, ok := m.groups.Load(auctionID)
	if !ok {
		return
	}
	group.(*sync.Map).Range(func(key, _ any) bool {
		client := key.(*Client)
		if !client.trySend(payload) {
			// Client is closed or not draining; drop it so one slow
			// viewer cannot block the rest of the group.
			go m.UnregisterClient(client)
		}
		return true
	})
}

type gatewayMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type snapshotData struct {
	AuctionID     string                  `json:"auction_id"`
	Leaderboard   *models.LeaderboardView `json:"leaderboard"`
	ActiveViewers int                     `json:"active_viewers"`
}

type viewerCountData struct {
	AuctionID     string `json:"auction_id"`
	ActiveViewers int    `json:"active_viewers"`
}

func (m *Manager) pushSnapshot(ctx context.Context, client *Client) {
	entries, err := m.snapshots.GetLeaderboard(ctx, client.AuctionID)
	if err != nil {
		m.logger.Warn("failed to load snapshot for joiner",
			"auction_id", client.AuctionID, "error", err)
		return
	}

	payload, err := json.Marshal(gatewayMessage{
		Type: "SNAPSHOT",
		Data: snapshotData{
			AuctionID:     client.AuctionID,
			Leaderboard:   models.BuildLeaderboardView(entries),
			ActiveViewers: m.ViewerCount(client.AuctionID),
		},
	})
	if err != nil {
		return
	}

	client.trySend(payload)
}

func (m *Manager) broadcastViewerCount(auctionID string) {
	payload, err := json.Marshal(gatewayMessage{
		Type: "VIEWER_COUNT",
		Data: viewerCountData{
			AuctionID:     auctionID,
			ActiveViewers: m.ViewerCount(auctionID),
		},
	})
	if err != nil {
		return
	}
	m.broadcast(auctionID, payload)
}

// writePump pumps messages from the Send channel to the websocket
// connection, pinging to keep it alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames and detects disconnects.
func (c *Client) readPump(unregister chan<- *Client) {
	defer func() {
		unregister <- c
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

// StartReadPump starts the read pump for this client.
func (c *Client) StartReadPump(unregister chan<- *Client) {
	go c.readPump(unregister)
}
