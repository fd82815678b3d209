package realtime

import (
	"encoding/json"
	"sync"
)

// EventDreamAnalysis announces that a stored dream received a new analysis.
const EventDreamAnalysis = "dream.analysis"

// Hub fans events out to every open connection of a user.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
}

type Client struct {
	UserID int64
	Send   chan []byte

	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{clients: map[int64]map[*Client]struct{}{}}
}

func NewClient(userID int64) *Client {
	return &Client{UserID: userID, Send: make(chan []byte, 16)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = map[*Client]struct{}{}
	}
	h.clients[client.UserID][client] = struct{}{}
}

// Unregister is safe to call more than once for the same client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if clients, ok := h.clients[client.UserID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	h.mu.Unlock()
	client.closeOnce.Do(func() { close(client.Send) })
}

// Broadcast delivers payload to the user's connections. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(userID int64, payload any) {
	message, err := json.Marshal(payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.Send <- message:
		default:
		}
	}
}

func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
