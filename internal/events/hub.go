// Package events fans wizard state changes out to WebSocket subscribers.
// Each session is a topic; a client follows exactly the sessions it subscribed to.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Event types
const (
	TypeState         = "state"
	TypeSessionClosed = "session.closed"
)

// SendBuffer is the per-client queue length. Events for a full queue are dropped.
const SendBuffer = 64

// Event is one notification sent to WebSocket clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Version   uint64          `json:"version,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an event for topic
func NewEvent(eventType, topic string, version uint64, data interface{}) (Event, error) {
	ev := Event{Type: eventType, Topic: topic, Version: version, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		ev.Data = raw
	}
	return ev, nil
}

func marshalEvent(event Event) ([]byte, error) {
	return json.Marshal(event)
}

// Publisher defines the interface for publishing events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client represents a single subscriber connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// NewClient creates a client subscribed to topics
func NewClient(id string, topics ...string) *Client {
	return &Client{
		ID:     id,
		Topics: append([]string(nil), topics...),
		Send:   make(chan []byte, SendBuffer),
	}
}

// Hub tracks clients and their topic subscriptions. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  logrus.FieldLogger
	dropped atomic.Uint64
}

// NewHub creates a new Hub
func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client and subscribes it to its topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

// Unregister removes a client from every topic and closes its Send channel.
// Unregistering twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(client)
}

func (h *Hub) unregisterLocked(client *Client) {
	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}
	delete(h.all, client)
	close(client.Send)
}

// Broadcast sends an event to every client subscribed to topic.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := marshalEvent(event)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.dropped.Add(1)
			h.logger.WithFields(logrus.Fields{
				"client_id": client.ID,
				"topic":     topic,
				"type":      event.Type,
			}).Warn("client buffer full, dropping event")
		}
	}
}

// Publish broadcasts event to subscribers of event.Topic
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	return nil
}

// CloseTopic sends a final session.closed event and disconnects every
// subscriber of topic.
func (h *Hub) CloseTopic(topic string) {
	closed, _ := NewEvent(TypeSessionClosed, topic, 0, nil)
	h.Broadcast(topic, closed)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[topic] {
		h.unregisterLocked(client)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Dropped returns how many events were discarded because a client was too slow
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
