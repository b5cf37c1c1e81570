package api

import (
	"io"
	"log"
	"sync"
	"time"

	"kickchoice/domain/run"

	"github.com/gin-gonic/gin"
)

// SSEHub fans run lifecycle events out to Server-Sent Events clients
type SSEHub struct {
	mu sync.RWMutex
	// clients maps each channel to the run id it follows; "" follows all runs.
	clients map[chan run.Event]string
	buffer  int
}

// NewSSEHub creates a new SSE hub
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[chan run.Event]string),
		buffer:  16,
	}
}

// Subscribe registers a client for events of runID, or of every run when
// runID is empty
func (h *SSEHub) Subscribe(runID string) chan run.Event {
	ch := make(chan run.Event, h.buffer)
	h.mu.Lock()
	h.clients[ch] = runID
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[SSE] Client registered (run filter %q, total clients: %d)", runID, total)
	return ch
}

// Unsubscribe removes a client and closes its channel
func (h *SSEHub) Unsubscribe(ch chan run.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
		log.Printf("[SSE] Client unregistered (remaining clients: %d)", len(h.clients))
	}
}

// Publish delivers an event to every interested client. Clients whose
// buffer is full miss the event.
func (h *SSEHub) Publish(event run.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch, filter := range h.clients {
		if filter != "" && filter != event.RunID.String() {
			continue
		}
		select {
		case ch <- event:
		default:
			log.Printf("[SSE] Client channel full, dropping %s for run %s", event.Type, event.RunID)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleSSE streams run events; ?run_id= restricts the stream to one run
func (h *SSEHub) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ch := h.Subscribe(c.Query("run_id"))
	defer h.Unsubscribe(ch)

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("run", event)
			return true

		case <-time.After(30 * time.Second):
			c.SSEvent("ping", gin.H{"status": "alive", "timestamp": time.Now().UTC().Format(time.RFC3339)})
			return true

		case <-ctx.Done():
			return false
		}
	})
}
