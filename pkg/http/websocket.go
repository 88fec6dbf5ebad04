package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"calltriage-server/pkg/lifecycle"
	"calltriage-server/pkg/metrics"
)

// SummaryMessage is one batch of lifecycle summaries pushed to live
// subscribers
type SummaryMessage struct {
	Timestamp time.Time               `json:"timestamp"`
	Count     int                     `json:"count"`
	Summaries []lifecycle.CallSummary `json:"summaries"`
}

// Client represents a connected WebSocket client
type Client struct {
	hub    *SummaryHub
	conn   *websocket.Conn
	send   chan []byte
	logger *logrus.Logger
	callID string // If client subscribes to a specific call
}

// SummaryHub manages WebSocket clients and broadcasts summary batches
type SummaryHub struct {
	logger          *logrus.Logger
	clients         map[*Client]bool
	callSubscribers map[string]map[*Client]bool
	broadcast       chan *SummaryMessage
	register        chan *Client
	unregister      chan *Client
	mutex           sync.RWMutex
}

// WebSocketUpgrader configures the WebSocket connection
var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all connections
		return true
	},
}

// NewSummaryHub creates a new summary hub
func NewSummaryHub(logger *logrus.Logger) *SummaryHub {
	return &SummaryHub{
		logger:          logger,
		clients:         make(map[*Client]bool),
		callSubscribers: make(map[string]map[*Client]bool),
		broadcast:       make(chan *SummaryMessage, 16),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
	}
}

// Run starts the summary hub
func (h *SummaryHub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket summary hub")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Shutting down WebSocket summary hub")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true

			if client.callID != "" {
				if _, exists := h.callSubscribers[client.callID]; !exists {
					h.callSubscribers[client.callID] = make(map[*Client]bool)
				}
				h.callSubscribers[client.callID][client] = true
				h.logger.WithField("call_id", client.callID).Info("Client subscribed to specific call")
			}

			clientCount := len(h.clients)
			h.mutex.Unlock()

			h.setClientGauge(clientCount)
			h.logger.Info("Client connected to WebSocket")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)

				if client.callID != "" {
					if subscribers, exists := h.callSubscribers[client.callID]; exists {
						delete(subscribers, client)
						if len(subscribers) == 0 {
							delete(h.callSubscribers, client.callID)
						}
					}
				}

				h.logger.Info("Client disconnected from WebSocket")
			}
			clientCount := len(h.clients)
			h.mutex.Unlock()

			h.setClientGauge(clientCount)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver fans one summary batch out to all matching clients
func (h *SummaryHub) deliver(message *SummaryMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal summary message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		payload := data
		if client.callID != "" {
			// Per-call subscribers only see their call's summaries
			filtered := filterSummaries(message, client.callID)
			if filtered == nil {
				continue
			}
			payload, err = json.Marshal(filtered)
			if err != nil {
				continue
			}
		}

		select {
		case client.send <- payload:
		default:
			close(client.send)
			delete(h.clients, client)
			if client.callID != "" {
				if subscribers, exists := h.callSubscribers[client.callID]; exists {
					delete(subscribers, client)
				}
			}
		}
	}
}

func filterSummaries(message *SummaryMessage, callID string) *SummaryMessage {
	matched := make([]lifecycle.CallSummary, 0, 1)
	for _, s := range message.Summaries {
		if s.CallID == callID {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	return &SummaryMessage{
		Timestamp: message.Timestamp,
		Count:     len(matched),
		Summaries: matched,
	}
}

// BroadcastSummaries queues a summary batch for delivery to all
// connected clients. Non-blocking: when the hub is saturated the batch
// is dropped.
func (h *SummaryHub) BroadcastSummaries(summaries []lifecycle.CallSummary) {
	message := &SummaryMessage{
		Timestamp: time.Now().UTC(),
		Count:     len(summaries),
		Summaries: summaries,
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Summary broadcast queue full, dropping batch")
	}
}

// ClientCount returns the number of connected clients
func (h *SummaryHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *SummaryHub) setClientGauge(count int) {
	if metrics.IsMetricsEnabled() && metrics.WebSocketClients != nil {
		metrics.WebSocketClients.Set(float64(count))
	}
}

// ServeWs handles WebSocket requests from clients
func (h *SummaryHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	// Optional per-call subscription
	callID := r.URL.Query().Get("call_id")

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: h.logger,
		callID: callID,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(60 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames so pings are answered and close frames
// unregister the client
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
