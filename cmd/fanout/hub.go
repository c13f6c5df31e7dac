package main

import (
	"log"
	"sync"
)

// Hub tracks open websockets per user and delivers each event to every
// connection of its user. Register, unregister and deliver all run on the
// Run goroutine; the mutex only guards the stats readers.
type Hub struct {
	connections map[string][]*Client
	mu          sync.RWMutex

	register   chan *Client
	unregister chan *Client
	events     chan *UserEvent
}

// UserEvent is one progress payload addressed to a user. The payload is the
// scheduler's JSON, passed through untouched.
type UserEvent struct {
	UserID  string
	Payload []byte
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		events:      make(chan *UserEvent, 256),
	}
}

// Run processes registrations and deliveries until the process exits
func (h *Hub) Run() {
	log.Println("hub started")

	for {
		select {
		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case event := <-h.events:
			h.deliver(event)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[client.userID] = append(h.connections[client.userID], client)
	log.Printf("client connected: user=%s connections=%d",
		client.userID, len(h.connections[client.userID]))
}

// remove drops a client and closes its send channel. A client already
// dropped by deliver is not found here, so the channel closes exactly once.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.connections[client.userID]
	for i, c := range clients {
		if c == client {
			h.connections[client.userID] = append(clients[:i], clients[i+1:]...)
			close(client.send)

			if len(h.connections[client.userID]) == 0 {
				delete(h.connections, client.userID)
			}

			log.Printf("client disconnected: user=%s remaining=%d",
				client.userID, len(h.connections[client.userID]))
			return
		}
	}
}

// deliver sends the event to every connection of its user. A connection
// whose send buffer is full is dropped on the spot; stalling here would
// delay events for every other user.
func (h *Hub) deliver(event *UserEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.connections[event.UserID]
	if len(clients) == 0 {
		return
	}

	for i := 0; i < len(clients); {
		client := clients[i]
		select {
		case client.send <- event.Payload:
			i++
		default:
			log.Printf("dropping slow connection: user=%s", client.userID)
			clients = append(clients[:i], clients[i+1:]...)
			close(client.send)
		}
	}

	if len(clients) == 0 {
		delete(h.connections, event.UserID)
	} else {
		h.connections[event.UserID] = clients
	}
}

// ConnectionCount returns the number of open websockets
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.connections {
		count += len(clients)
	}
	return count
}

// UserCount returns the number of distinct connected users
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.connections)
}
