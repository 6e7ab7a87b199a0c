// Package feed pushes view-state snapshots to connected dashboards
// over WebSocket, so the browser never has to poll the node.
package feed

import (
	"log"
	"sync"

	"github.com/nats-io/nats.go"
)

// Bus is the slice of the embedded NATS server the hub consumes
type Bus interface {
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// Hub fans the snapshot stream out to every connected client. Each
// client also receives the most recent snapshot on connect, so a
// freshly opened dashboard renders without waiting for a state change.
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	register   chan *Client
	unregister chan *Client

	lastSnapshot   []byte
	lastSnapshotMu sync.RWMutex

	sub *nats.Subscription
}

// NewHub creates a hub subscribed to the snapshot subject on the bus
func NewHub(bus Bus, subject string) (*Hub, error) {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}

	sub, err := bus.Subscribe(subject, func(msg *nats.Msg) {
		h.broadcast(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	h.sub = sub
	return h, nil
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	log.Println("📺 Feed hub started")

	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			log.Printf("📺 Dashboard connected: %s (%s)", client.id, client.remoteAddr)

			// Seed the new client with the current state
			h.lastSnapshotMu.RLock()
			snapshot := h.lastSnapshot
			h.lastSnapshotMu.RUnlock()
			if snapshot != nil {
				client.enqueue(snapshot)
			}

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientsMu.Unlock()
			log.Printf("📺 Dashboard disconnected: %s (%s)", client.id, client.remoteAddr)
		}
	}
}

// ClientCount returns the number of connected dashboards
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// broadcast delivers a snapshot to every connected client. Clients
// whose send buffer is full miss this snapshot and catch up with the
// next one; snapshots are whole-state, so dropping one is safe.
func (h *Hub) broadcast(snapshot []byte) {
	h.lastSnapshotMu.Lock()
	h.lastSnapshot = snapshot
	h.lastSnapshotMu.Unlock()

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for client := range h.clients {
		client.enqueue(snapshot)
	}
}
