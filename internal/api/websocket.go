package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/feeder-core/internal/events"
	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
	"github.com/nerrad567/feeder-core/internal/infrastructure/logging"
)

// Message types on the /ws connection.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	// wsSendBufferSize is how many events may queue for one slow client
	// before further events to it are skipped.
	wsSendBufferSize = 64

	wsDefaultPing = 30 * time.Second
	wsDefaultPong = 10 * time.Second
)

// knownChannels are the event streams a client may subscribe to.
var knownChannels = map[string]struct{}{
	events.EventFeedDecided:    {},
	events.EventSchedulePushed: {},
	events.EventDeviceLog:      {},
}

var _ events.Broadcaster = (*Hub)(nil)

// WSMessage is the envelope for everything sent either way.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub tracks live operator connections grouped by user, so device events
// reach only the device owner's sessions.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu    sync.RWMutex
	users map[string]map[*WSClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		users:  make(map[string]map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client under its user.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	set, ok := h.users[c.userID]
	if !ok {
		set = make(map[*WSClient]struct{})
		h.users[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "user_id", c.userID, "clients", h.ClientCount())
}

// Unregister removes a client and closes its send channel. Calling it
// again for the same client is a no-op.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	removed := h.remove(c)
	h.mu.Unlock()

	if removed {
		c.close()
		h.logger.Debug("websocket client disconnected", "user_id", c.userID, "clients", h.ClientCount())
	}
}

// remove requires h.mu.
func (h *Hub) remove(c *WSClient) bool {
	set, ok := h.users[c.userID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.users, c.userID)
	}
	return true
}

// BroadcastToUser sends an event to userID's clients subscribed to
// eventType.
func (h *Hub) BroadcastToUser(userID, eventType string, payload any) {
	data, ok := h.encodeEvent(eventType, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, eventType, data)
}

// Broadcast sends an event to every subscribed client regardless of user.
func (h *Hub) Broadcast(eventType string, payload any) {
	data, ok := h.encodeEvent(eventType, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	var targets []*WSClient
	for _, set := range h.users {
		for c := range set {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, eventType, data)
}

func (h *Hub) encodeEvent(eventType string, payload any) ([]byte, bool) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "event_type", eventType, "error", err)
		return nil, false
	}
	return data, true
}

// deliver runs without the hub lock; clients guard their own state.
func (h *Hub) deliver(targets []*WSClient, eventType string, data []byte) {
	sent := 0
	for _, c := range targets {
		if c.isSubscribed(eventType) && c.trySend(data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("websocket event sent", "event_type", eventType, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.users {
		n += len(set)
	}
	return n
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, set := range h.users {
		for c := range set {
			c.close()
			if c.conn != nil {
				c.conn.Close()
			}
		}
	}
	h.users = make(map[string]map[*WSClient]struct{})
}

// WSClient is one operator connection.
type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	mu            sync.Mutex
	send          chan []byte
	closed        bool
	subscriptions map[string]struct{}
}

// trySend queues data without blocking. It reports false when the client
// has gone away or its buffer is full.
func (c *WSClient) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) setSubscribed(channels []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if on {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
}

// upgrader leaves origin checks to the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades a connection authenticated by a single-use
// ticket from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	userID, err := s.tickets.Redeem(ticket)
	if err != nil {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		userID:        userID,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.Register(client)

	ka := keepaliveFor(s.wsCfg)
	go client.writePump(ka)
	go client.readPump(ka, int64(s.wsCfg.MaxMessageSize))
}

// keepalive holds the ping cadence and how long a pong may take.
type keepalive struct {
	ping time.Duration
	pong time.Duration
}

func keepaliveFor(cfg config.WebSocketConfig) keepalive {
	ka := keepalive{ping: wsDefaultPing, pong: wsDefaultPong}
	if cfg.PingInterval > 0 {
		ka.ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		ka.pong = time.Duration(cfg.PongTimeout) * time.Second
	}
	return ka
}

func (k keepalive) readDeadline() time.Time {
	return time.Now().Add(k.ping + k.pong)
}

// readPump handles client messages until the connection drops. Any inbound
// frame counts as liveness, not only pongs.
func (c *WSClient) readPump(ka keepalive, limit int64) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if limit > 0 {
		c.conn.SetReadLimit(limit)
	}
	c.conn.SetReadDeadline(ka.readDeadline()) //nolint:errcheck // read error surfaces below
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(ka.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(ka.readDeadline()) //nolint:errcheck // read error surfaces on next read
		c.handleMessage(data)
	}
}

// writePump is the only writer on the connection.
func (c *WSClient) writePump(ka keepalive) {
	ticker := time.NewTicker(ka.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) bool {
		c.conn.SetWriteDeadline(time.Now().Add(ka.pong)) //nolint:errcheck // write error checked below
		return c.conn.WriteMessage(kind, data) == nil
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil)
				return
			}
			if !write(websocket.TextMessage, data) {
				return
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	case WSTypeSubscribe:
		channels, ok := decodeChannels(msg.Payload)
		if !ok {
			c.replyError(msg.ID, "subscribe needs a non-empty channels list")
			return
		}
		for _, ch := range channels {
			if _, known := knownChannels[ch]; !known {
				c.replyError(msg.ID, "unknown channel: "+ch)
				return
			}
		}
		c.setSubscribed(channels, true)
		c.hub.logger.Debug("websocket client subscribed", "user_id", c.userID, "channels", channels)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": channels})
	case WSTypeUnsubscribe:
		channels, ok := decodeChannels(msg.Payload)
		if !ok {
			c.replyError(msg.ID, "unsubscribe needs a non-empty channels list")
			return
		}
		c.setSubscribed(channels, false)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
	default:
		c.replyError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// decodeChannels re-reads a generically decoded payload as a channel list.
func decodeChannels(payload any) ([]string, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil || len(sub.Channels) == 0 {
		return nil, false
	}
	return sub.Channels, true
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) replyError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
