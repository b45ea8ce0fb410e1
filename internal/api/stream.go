package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// QueueEvent describes websocket payloads emitted when the review queue changes.
type QueueEvent struct {
	Type      string    `json:"type"`
	RequestID uint      `json:"request_id,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Reviewer  string    `json:"reviewer,omitempty"`
	Mismatch  bool      `json:"mismatch,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// QueueNotifier keeps track of active websocket clients and broadcasts queue events.
type QueueNotifier struct {
	mu        sync.Mutex
	clients   map[*wsClient]struct{}
	lastEvent *QueueEvent
}

// NewQueueNotifier constructs a notifier instance.
func NewQueueNotifier() *QueueNotifier {
	return &QueueNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection and returns a client handle. A late
// joiner immediately receives the most recent event so its view can catch up.
func (n *QueueNotifier) Register(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	last := n.lastEvent
	n.mu.Unlock()

	if last != nil {
		_ = client.writeJSON(*last)
	}
	return client
}

// Unregister removes the websocket client from the notifier and closes the socket.
func (n *QueueNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast sends the supplied event to all registered websocket clients.
func (n *QueueNotifier) Broadcast(event QueueEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	snapshot := event
	n.lastEvent = &snapshot
	for client := range n.clients {
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
	n.mu.Unlock()
}

// LastEvent returns a copy of the most recently broadcast event, if any.
func (n *QueueNotifier) LastEvent() *QueueEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastEvent == nil {
		return nil
	}
	copied := *n.lastEvent
	return &copied
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}
