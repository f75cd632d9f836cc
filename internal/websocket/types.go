package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDetection is emitted after each masking operation
	EventTypeDetection EventType = "pii_detection"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// DetectionEvent summarizes one masking operation. It carries per-category
// counts only; detected values never leave the process.
type DetectionEvent struct {
	RequestID     string         `json:"request_id,omitempty"`
	Operation     string         `json:"operation"`
	Backend       string         `json:"backend"`
	Counts        map[string]int `json:"counts"`
	TotalFindings int            `json:"total_findings"`
	ProcessingMS  float64        `json:"processing_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	Model            string `json:"model"`
	BackendReachable bool   `json:"backend_reachable"`
	ModelAvailable   bool   `json:"model_available"`
	ActiveRules      int    `json:"active_rules"`
	ConnectedClients int    `json:"connected_clients"`
	TotalRequests    int64  `json:"total_requests"`
	TotalDetections  int64  `json:"total_detections"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscriptionRequest limits the event types a client receives
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	conn         *websocket.Conn
	mu           sync.Mutex
	subscription *SubscriptionRequest
	lastPing     time.Time
}

func (c *Client) subscribe(sub *SubscriptionRequest) {
	c.mu.Lock()
	c.subscription = sub
	c.mu.Unlock()
}

// wants reports whether the client's subscription admits the event type
func (c *Client) wants(t EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscription == nil || len(c.subscription.Events) == 0 {
		return true
	}
	for _, eventType := range c.subscription.Events {
		if eventType == t {
			return true
		}
	}
	return false
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}
