package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"idle-arena/internal/battle"
	"idle-arena/internal/event"
)

const (
	// Default socket caps, overridable through HubConfig
	MaxWSConnectionsTotal = 500
	MaxWSConnectionsPerIP = 10

	clientSendBuffer = 64
	writeWait        = 5 * time.Second
	maxClientMessage = 512
)

// Outbound event names
const (
	EventBattle = "battle" // data: battle.Notification
	EventFrame  = "frame"  // data: FrameSummary
)

// HubConfig configures the WebSocket hub
type HubConfig struct {
	MaxConnections int
	MaxPerIP       int
	Origins        []string
}

// FrameSummary describes one persisted frame for observers
type FrameSummary struct {
	Frame   uint32         `json:"frame"`
	Records int            `json:"records"`
	Lanes   map[string]int `json:"lanes"`
	Types   map[string]int `json:"types"`
}

// SummarizeFrame counts a frame's records per lane and per event type
func SummarizeFrame(frame uint32, records []event.Record) FrameSummary {
	s := FrameSummary{
		Frame:   frame,
		Records: len(records),
		Lanes:   make(map[string]int, event.LaneCount),
		Types:   make(map[string]int),
	}
	for _, r := range records {
		s.Lanes[r.Priority.String()]++
		s.Types[r.Type.String()]++
	}
	return s
}

// envelope is the wire format of every outbound message
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// clientCommand is what observers send to pick their feed
type clientCommand struct {
	Action   string `json:"action"` // "subscribe", "unsubscribe", "frames"
	BattleID string `json:"battleId,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`
}

// outbound is a marshalled message with its routing key
type outbound struct {
	battleID string // Empty for frame summaries
	payload  []byte
}

// wsClient tracks a WebSocket connection with its source IP and feed filter
type wsClient struct {
	conn *websocket.Conn
	ip   string
	send chan []byte

	mu       sync.Mutex
	battleID string // Only this battle's notifications when set
	frames   bool   // Receives frame summaries
}

func (c *wsClient) wants(msg outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.battleID == "" {
		return c.frames
	}
	return c.battleID == "" || c.battleID == msg.battleID
}

func (c *wsClient) apply(cmd clientCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch cmd.Action {
	case "subscribe":
		c.battleID = cmd.BattleID
	case "unsubscribe":
		c.battleID = ""
	case "frames":
		c.frames = cmd.Enabled
	}
}

// Hub fans battle notifications and frame summaries out to WebSocket
// observers. It implements battle.Notifier.
type Hub struct {
	cfg     HubConfig
	origins *OriginPolicy

	clients    map[*wsClient]struct{}
	broadcast  chan outbound
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{} // Closed when Run returns
	mu         sync.RWMutex

	// Connection limiting per IP
	wsLimiter *WebSocketRateLimiter
	upgrader  websocket.Upgrader
}

var _ battle.Notifier = (*Hub)(nil)

// NewHub creates a new hub with connection limiting
func NewHub(cfg HubConfig) *Hub {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = MaxWSConnectionsTotal
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = MaxWSConnectionsPerIP
	}
	h := &Hub{
		cfg:        cfg,
		origins:    NewOriginPolicy(cfg.Origins),
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		wsLimiter:  NewWebSocketRateLimiter(cfg.MaxPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if h.origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ Observer socket refused, origin %q not allowed", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run routes messages to clients until ctx is cancelled, then disconnects everyone
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("📱 Observer attached from %s (%d attached)", c.ip, count)
			UpdateWSConnections(count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("📱 Observer left (%d attached)", count)
			UpdateWSConnections(count)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(msg) {
					continue
				}
				select {
				case c.send <- msg.payload:
					wsMessagesTotal.Inc()
				default:
					// Slow consumer, cut it loose
					wsMessagesDropped.Inc()
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes a client. Caller holds h.mu.
func (h *Hub) drop(c *wsClient) {
	delete(h.clients, c)
	close(c.send)
	h.wsLimiter.Release(c.ip)
}

// Publish implements battle.Notifier. It never blocks.
func (h *Hub) Publish(n battle.Notification) {
	h.enqueue(n.BattleID, envelope{Event: EventBattle, Data: n})
}

// ObserveFrame publishes a summary of a non-empty frame. It has the shape
// of an eventlog.FrameObserver.
func (h *Hub) ObserveFrame(frame uint32, records []event.Record) {
	if len(records) == 0 || h.ClientCount() == 0 {
		return
	}
	h.enqueue("", envelope{Event: EventFrame, Data: SummarizeFrame(frame, records)})
}

func (h *Hub) enqueue(battleID string, env envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		log.Printf("⚠️ WebSocket marshal %s: %v", env.Event, err)
		return
	}
	select {
	case h.broadcast <- outbound{battleID: battleID, payload: payload}:
	default:
		// Hub backed up
		wsMessagesDropped.Inc()
	}
}

// ClientCount returns the number of attached observers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades an observer connection after the total and
// per-address caps. Query: battle=<id> narrows battle events, frames=1 adds
// frame summaries.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= h.cfg.MaxConnections {
		log.Printf("⚠️ Observer socket refused, %d already attached", total)
		RecordConnectionRejected("ws_total_limit")
		writeError(w, http.StatusServiceUnavailable, "too many connections")
		return
	}

	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ Observer socket refused, %s at its per-address cap", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, http.StatusTooManyRequests, "too many connections from your IP")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ Observer upgrade failed: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	c := &wsClient{
		conn:     conn,
		ip:       ip,
		send:     make(chan []byte, clientSendBuffer),
		battleID: r.URL.Query().Get("battle"),
		frames:   r.URL.Query().Get("frames") == "1",
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		h.wsLimiter.Release(ip)
		return
	}

	go h.writeLoop(c)
	go h.readLoop(c)
}

// writeLoop drains the client's send buffer until the hub closes it
func (h *Hub) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readLoop applies feed commands until the connection fails
func (h *Hub) readLoop(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	c.conn.SetReadLimit(maxClientMessage)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}
		c.apply(cmd)
	}
}
