package services

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"mealscan-backend/models"
)

type WSClient struct {
	UserID uint
	Conn   *websocket.Conn
}

// RealtimeHub fans scan status transitions out to the owning user's open
// websocket connections, so clients observe progress without polling.
type RealtimeHub struct {
	mu      sync.RWMutex
	clients map[uint]map[*WSClient]struct{}
}

func NewRealtimeHub() *RealtimeHub {
	return &RealtimeHub{clients: make(map[uint]map[*WSClient]struct{})}
}

func (h *RealtimeHub) Register(c *WSClient) {
	h.mu.Lock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*WSClient]struct{})
	}
	h.clients[c.UserID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *RealtimeHub) Unregister(c *WSClient) {
	h.mu.Lock()
	if set := h.clients[c.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()
	_ = c.Conn.Close()
}

// BroadcastScanUpdate pushes the scan's current state to every connection
// the owner has open. Write errors are ignored; the read loop reaps dead
// connections.
func (h *RealtimeHub) BroadcastScanUpdate(scan *models.FoodScan) {
	msg, _ := json.Marshal(map[string]any{
		"kind": "scan.updated",
		"scan": scan,
	})
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[scan.UserID] {
		_ = c.Conn.WriteMessage(websocket.TextMessage, msg)
	}
}
