// Package stream fans classified records out to live WebSocket watchers.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/logsieve/logsieve/internal/accesslog"
)

// Event is one classified record as published to watchers.
type Event struct {
	Timestamp   string  `json:"timestamp"`
	ClientIP    string  `json:"client_ip,omitempty"`
	Method      string  `json:"method"`
	URL         string  `json:"url"`
	StatusCode  int     `json:"status_code"`
	IsAttack    bool    `json:"is_attack"`
	AttackScore float64 `json:"attack_score"`
	AttackType  string  `json:"attack_type,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub is a fan-out hub for verdict events. Slow subscribers drop events
// rather than stalling the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	logger      *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{}), logger: logger}
}

// Subscribe registers a watcher. The returned cancel must be called on
// disconnect; it unregisters and closes the channel.
func (h *Hub) Subscribe() (chan Event, func()) {
	ch := make(chan Event, 64)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount returns the number of connected watchers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// PublishBatch publishes one event per record of a classified batch.
// records and verdicts must be row-aligned.
func (h *Hub) PublishBatch(records []accesslog.Record, verdicts []accesslog.Verdict) {
	if h.SubscriberCount() == 0 {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for i, rec := range records {
		if i >= len(verdicts) {
			break
		}
		v := verdicts[i]
		h.publish(Event{
			Timestamp:   now,
			ClientIP:    rec.ClientIP,
			Method:      rec.Method,
			URL:         rec.URL,
			StatusCode:  int(rec.StatusCode),
			IsAttack:    v.IsAttack,
			AttackScore: v.AttackScore,
			AttackType:  v.AttackType,
		})
	}
}

func (h *Hub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("stream: dropped event for slow client")
		}
	}
}

// HandleWS upgrades the connection and relays hub events until the client
// goes away. Inbound messages are read only to detect disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
