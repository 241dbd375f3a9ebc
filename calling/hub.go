package calling

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	EventCallStarted  = "call_started"
	EventStatusUpdate = "status_update"
	EventTranscript   = "transcript"
	EventCallEnded    = "call_ended"
	EventCallAnalyzed = "call_analyzed"
)

// Event is pushed to a user's live-call sockets
type Event struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

func NewEvent(kind string, data map[string]interface{}) Event {
	return Event{Type: kind, Data: data, Timestamp: time.Now().UTC()}
}

// Broadcaster delivers events to every live connection of a user
type Broadcaster interface {
	Broadcast(userID uint, ev Event)
}

// Conn is the write side of a websocket connection
type Conn interface {
	WriteJSON(v interface{}) error
}

// Hub fans call events out to connected dashboards
type Hub struct {
	mu     sync.Mutex
	conns  map[uint]map[Conn]struct{}
	logger *logrus.Entry
}

func NewHub(logger *logrus.Entry) *Hub {
	return &Hub{conns: make(map[uint]map[Conn]struct{}), logger: logger}
}

// Register adds a connection; the returned func removes it again
func (h *Hub) Register(userID uint, c Conn) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[Conn]struct{})
	}
	h.conns[userID][c] = struct{}{}
	return func() { h.remove(userID, c) }
}

func (h *Hub) remove(userID uint, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(userID, c)
}

func (h *Hub) removeLocked(userID uint, c Conn) {
	delete(h.conns[userID], c)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

func (h *Hub) Count(userID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// Broadcast writes under the hub lock so a connection never sees concurrent writes
func (h *Hub) Broadcast(userID uint, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[userID] {
		if err := c.WriteJSON(ev); err != nil {
			h.logger.WithError(err).WithField("user_id", userID).Debug("Dropping dead live-call connection")
			h.removeLocked(userID, c)
		}
	}
}
