// Package hub fans ledger events out to connected realtime clients according to what each
// client subscribed to.
package hub

import (
	"encoding/json"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
)

const (
	ScopeAll  = "all"
	ScopeFile = "file"
	ScopeMine = "mine"
)

// Subscription is a client's filter. The zero value receives nothing.
type Subscription struct {
	UserName string
	Role     string
	Scope    string
	FileID   string
}

// Meta describes an outgoing event for matching.
type Meta struct {
	FileID     string
	AssignedTo string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action string `json:"action"`
	Scope  string `json:"scope"`
	FileID string `json:"file_id"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast returns how many clients the payload was queued for. Slow clients drop messages.
func (h *Hub) Broadcast(payload []byte, meta Meta) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.clients {
		if !Match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
			delivered++
		default:
			log.WithField("client_id", client.ID).Warn("drop realtime message for slow client")
		}
	}
	return delivered
}

func Match(sub Subscription, meta Meta) bool {
	switch sub.Scope {
	case ScopeAll:
		return true
	case ScopeFile:
		return sub.FileID != "" && sub.FileID == meta.FileID
	case ScopeMine:
		return sub.UserName != "" && sub.UserName == meta.AssignedTo
	default:
		return false
	}
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	switch msg.Action {
	case "unsubscribe":
		return msg, true
	case "subscribe":
	default:
		return SubscribeMessage{}, false
	}
	msg.Scope = strings.ToLower(strings.TrimSpace(msg.Scope))
	if msg.Scope == "" {
		msg.Scope = ScopeAll
	}
	msg.FileID = models.NormalizeFileID(msg.FileID)
	switch msg.Scope {
	case ScopeAll, ScopeMine:
		return msg, true
	case ScopeFile:
		return msg, msg.FileID != ""
	default:
		return SubscribeMessage{}, false
	}
}
