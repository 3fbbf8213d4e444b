// Package websocket holds the server side of the status channel: a hub of
// per-job subscriber connections fed by the analysis workers.
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/clipsight/api/internal/model"
)

// Client represents one dashboard connection subscribed to a job
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues one frame for the writer unless the client is already closed
// or its buffer is full. Both the hub loop and the connection's reader call
// this, so the closed flag is what makes eviction safe against a late send.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub maintains active status channel connections grouped by job id
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu sync.RWMutex
}

type broadcastMessage struct {
	jobID string
	data  []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			log.Printf("Channel subscriber registered for job %s", client.JobID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.JobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					client.closeSend()
					if len(clients) == 0 {
						delete(h.clients, client.JobID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Channel subscriber left job %s", client.JobID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.jobID]; ok {
				for client := range clients {
					if !client.trySend(msg.data) {
						client.closeSend()
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast sends a message to every subscriber of a job
func (h *Hub) Broadcast(jobID string, msg model.Message) {
	msg.JobID = jobID
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal channel message: %v", err)
		return
	}
	h.broadcast <- &broadcastMessage{jobID: jobID, data: data}
}

// BroadcastProgress sends a progress update to all job subscribers
func (h *Hub) BroadcastProgress(jobID string, progress int, status model.JobStatus, step, message string) {
	h.Broadcast(jobID, model.Message{
		Type:     model.MessageTypeProgress,
		Progress: &progress,
		Status:   string(status),
		Step:     step,
		Message:  message,
	})
}

// BroadcastComplete sends a completion message to all job subscribers
func (h *Hub) BroadcastComplete(jobID string, result interface{}) {
	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("Failed to marshal completion payload: %v", err)
		return
	}
	full := 100
	h.Broadcast(jobID, model.Message{
		Type:     model.MessageTypeComplete,
		Progress: &full,
		Status:   string(model.JobStatusSucceeded),
		Data:     data,
	})
}

// BroadcastError sends an error message to all job subscribers
func (h *Hub) BroadcastError(jobID, message string) {
	h.Broadcast(jobID, model.Message{
		Type:    model.MessageTypeError,
		Status:  string(model.JobStatusFailed),
		Message: message,
	})
}

// HandleConnection pumps one subscriber connection until it drops. Client
// pings are answered with a pong frame; nothing else inbound is expected.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Writer goroutine. The ticker covers proxies that drop idle
	// connections even when the client-side heartbeat is filtered out.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Channel connection error: %v", err)
			}
			break
		}

		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if msg.Type == model.MessageTypePing {
			// trySend: the hub may have evicted this client mid-broadcast and
			// closed its channel; a late ping must not take the process down.
			reply, _ := json.Marshal(model.Pong())
			client.trySend(reply)
		}
	}
}
