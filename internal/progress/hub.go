// Package progress streams turn progress to browser clients over WebSocket.
package progress

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/notify"
	"github.com/mimic-ai/interview/internal/turn"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	sendBuffer = 64
)

// Event names sent to clients.
const (
	EventState    = "state"
	EventElapsed  = "elapsed"
	EventQuestion = "question"
	EventNotice   = "notice"
	EventReport   = "report"
)

// Commands clients may send.
const (
	CommandStart  = "start_turn"
	CommandFinish = "finish_turn"
	CommandAbort  = "abort"
)

// CommandHandler is called for each command a client sends.
type CommandHandler func(command string)

// Hub keeps the connected clients and the latest value of each event, which
// late joiners receive on connect.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	last      map[string]WSMessage
	onCommand CommandHandler
	logger    *zap.Logger
}

// NewHub creates a hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		last:    make(map[string]WSMessage),
		logger:  logger,
	}
}

// SetCommandHandler sets the callback for client commands.
func (h *Hub) SetCommandHandler(fn CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCommand = fn
}

// Register adds a client and replays the latest events to it.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	replay := make([]WSMessage, 0, len(h.last))
	for _, ev := range []string{EventQuestion, EventState, EventElapsed, EventNotice, EventReport} {
		if msg, ok := h.last[ev]; ok {
			replay = append(replay, msg)
		}
	}
	h.mu.Unlock()
	for _, msg := range replay {
		c.enqueue(msg)
	}
	h.logger.Debug("progress client joined", zap.String("client_id", c.ID))
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("progress client left", zap.String("client_id", c.ID))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client and remembers it for late joiners.
func (h *Hub) Broadcast(event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("encode progress event", zap.String("event", event), zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.Lock()
	h.last[event] = msg
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.enqueue(msg)
	}
}

func (h *Hub) command(cmd string) {
	h.mu.RLock()
	fn := h.onCommand
	h.mu.RUnlock()
	if fn != nil {
		fn(cmd)
	}
}

type statePayload struct {
	Turn  int    `json:"turn"`
	From  string `json:"from"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
	At    string `json:"at"`
}

// TurnChanged implements turn.Observer.
func (h *Hub) TurnChanged(e turn.Event) {
	p := statePayload{Turn: e.Turn, From: string(e.From), State: string(e.To), At: e.At.Format(time.RFC3339)}
	if e.Err != nil {
		p.Error = notify.FromError(e.Err).Text
	}
	h.Broadcast(EventState, p)
}

// Notify implements notify.Notifier.
func (h *Hub) Notify(m notify.Message) { h.Broadcast(EventNotice, m) }

// Clear implements notify.Notifier.
func (h *Hub) Clear() { h.Broadcast(EventNotice, nil) }
