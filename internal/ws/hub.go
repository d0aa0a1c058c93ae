// Package ws implements the Transport (C1): it accepts bidirectional
// connections (WebSocket and, via internal/handlers, HTTP long-poll),
// demultiplexes named events, and enforces per-connection bounded send
// queues with volatile-drop / non-volatile-backpressure semantics (spec
// §4.1). It holds no session or room state itself; every decoded event is
// handed to a Dispatcher.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/hub"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/metrics"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/auth"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrQueueFull is returned by a volatile Emit whose send queue is saturated
// (spec §4.1 OverflowDrop).
var ErrQueueFull = errors.New("connection send queue full")

// ErrConnectionClosed is returned by Emit on a connection mid-close.
var ErrConnectionClosed = errors.New("connection closed")

// Envelope is the wire shape of every message in both directions (spec §6:
// `{event: string, payload: JSON|bytes}`).
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

type inboundEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Dispatcher receives decoded inbound events and connection lifecycle
// notifications; internal/hub.Pipeline implements it.
type Dispatcher interface {
	HandleEvent(conn hub.Subscriber, surface hub.Surface, event string, raw json.RawMessage)
	OnConnect(conn hub.Subscriber)
	OnDisconnect(connID string)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1MiB, generous enough for a video_frame chunk
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Connection is one open WebSocket connection. It implements
// hub.Subscriber. Long-poll connections are a separate type, longPollConn
// (longpoll.go).
type Connection struct {
	id      string
	ws      *websocket.Conn
	send    chan Envelope
	surface hub.Surface
	subject string

	closeOnce sync.Once
	closed    chan struct{}

	logger  logging.Logger
	metrics *metrics.Metrics
}

// ID implements hub.Subscriber.
func (c *Connection) ID() string { return c.id }

// Surface returns the connection's declared consumer role.
func (c *Connection) Surface() hub.Surface { return c.surface }

// Emit implements hub.Subscriber. volatile=true drops the message on a
// full queue; volatile=false blocks the caller until space is available or
// the connection closes (spec §4.1).
func (c *Connection) Emit(event string, payload interface{}, volatile bool) error {
	env := Envelope{Event: event, Payload: payload}
	if volatile {
		select {
		case c.send <- env:
			return nil
		case <-c.closed:
			return ErrConnectionClosed
		default:
			return ErrQueueFull
		}
	}
	select {
	case c.send <- env:
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

// Hub is the Transport's WebSocket connection registry (C1). It tracks
// every open WebSocket connection so session_metadata's "broadcast to ALL
// connections" can reach connections that have not joined any room yet
// (spec §4.6) — the Room Registry (C2) only knows about room membership.
// Long-poll connections are held by LongPollRegistry, not here.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection

	dispatcher Dispatcher
	logger     logging.Logger
	metrics    *metrics.Metrics
	jwtSecret  []byte
	queueSize  int
}

// NewHub builds the Transport. jwtSecret may be empty, in which case
// bearer tokens are never parsed and every connection is anonymous (spec
// §1: token presence is forwarded, never required).
func NewHub(dispatcher Dispatcher, logger logging.Logger, m *metrics.Metrics, jwtSecret []byte, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		connections: make(map[string]*Connection),
		dispatcher:  dispatcher,
		logger:      logger,
		metrics:     m,
		jwtSecret:   jwtSecret,
		queueSize:   queueSize,
	}
}

// BroadcastAll implements hub.Broadcaster: it reaches every open WebSocket
// connection regardless of room membership. Long-poll connections are not
// reached.
func (h *Hub) BroadcastAll(event string, payload interface{}, volatile bool) {
	h.mu.RLock()
	snapshot := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		c.Emit(event, payload, volatile)
	}
}

// ConnByID implements the lookup internal/hub.Viewers needs to resolve a
// producer connection id back to a live Subscriber. Only WebSocket
// connections are found.
func (h *Hub) ConnByID(connID string) (hub.Subscriber, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[connID]
	return c, ok
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	h.connections[c.id] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.HubConnections.WithLabelValues(string(c.surface)).Inc()
	}
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	delete(h.connections, c.id)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.HubConnections.WithLabelValues(string(c.surface)).Dec()
	}
	h.dispatcher.OnDisconnect(c.id)
}

// surfaceAndSubject extracts the connection's surface hint and subject
// from an optional bearer token (structural check only, spec §1, §4.1) and
// an optional ?surface= query parameter fallback.
func (h *Hub) surfaceAndSubject(r *http.Request) (hub.Surface, string) {
	surface := hub.Surface(r.URL.Query().Get("surface"))
	subject := ""

	authHeader := r.Header.Get("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) || len(h.jwtSecret) == 0 {
		return surface, subject
	}
	token := strings.TrimPrefix(authHeader, bearerPrefix)
	claims, err := auth.ValidateJWT(token, h.jwtSecret)
	if err != nil {
		h.logger.WithError(err).Debug("ignoring unparseable bearer token on connect")
		return surface, subject
	}
	subject = claims.Subject
	if claims.Surface != "" {
		surface = hub.Surface(claims.Surface)
	}
	return surface, subject
}

// ServeWS upgrades an HTTP request to a WebSocket connection and starts its
// pumps (spec §4.1, §6).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	surface, subject := h.surfaceAndSubject(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("websocket upgrade failed")
		return
	}

	c := &Connection{
		id:      uuid.NewString(),
		ws:      conn,
		send:    make(chan Envelope, h.queueSize),
		surface: surface,
		subject: subject,
		closed:  make(chan struct{}),
		logger:  h.logger,
		metrics: h.metrics,
	}

	h.register(c)
	h.dispatcher.OnConnect(c)

	go h.writePump(c)
	go h.readPump(c)
}

// dispatchSafely isolates a single event handler call: a panic in one
// connection's handler must not terminate others (spec §4.11), so it is
// recovered and logged rather than left to unwind the read pump.
func (h *Hub) dispatchSafely(c *Connection, surface hub.Surface, event string, raw json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logging.Fields{
				"error":   r,
				"conn_id": c.id,
				"event":   event,
				"surface": string(surface),
			}).Error("event handler panic, connection kept alive")
		}
	}()
	h.dispatcher.HandleEvent(c, surface, event, raw)
}

func (h *Hub) readPump(c *Connection) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logging.Fields{"error": r, "conn_id": c.id}).Error("readPump panic")
		}
		h.unregister(c)
		c.close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Debug("websocket read error")
			}
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.WithError(err).Warn("malformed envelope, dropping")
			continue
		}
		if env.Event == "" {
			continue
		}
		h.dispatchSafely(c, c.surface, env.Event, env.Payload)
	}
}

func (h *Hub) writePump(c *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logging.Fields{"error": r, "conn_id": c.id}).Error("writePump panic")
		}
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case env := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
