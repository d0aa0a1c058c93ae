// Package handlers exposes the session-hub's HTTP surface: the WebSocket
// upgrade endpoint, the long-poll fallback for producers that cannot hold a
// persistent socket (spec §12), and read-only session introspection.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/hub"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/ws"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/api/common"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/logging"

	"github.com/gin-gonic/gin"
)

// notFound writes the shared error envelope used across every service in
// the monorepo for a missing long-poll connection.
func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, common.ErrorResponse{Error: msg, Code: "not_found", Service: "session-hub"})
}

// HubHandlers wires the Transport and domain store to gin routes.
type HubHandlers struct {
	transport *ws.Hub
	poller    *ws.LongPollRegistry
	store     *hub.Store
	logger    logging.Logger
	startTime time.Time
}

// NewHubHandlers builds the HTTP handler set.
func NewHubHandlers(transport *ws.Hub, poller *ws.LongPollRegistry, store *hub.Store, logger logging.Logger) *HubHandlers {
	return &HubHandlers{
		transport: transport,
		poller:    poller,
		store:     store,
		logger:    logger,
		startTime: time.Now(),
	}
}

// HandleWebSocket upgrades to a persistent transport connection (spec §4.1).
func (h *HubHandlers) HandleWebSocket(c *gin.Context) {
	h.transport.ServeWS(c.Writer, c.Request)
}

// sessionSummaryResponse is the read-only JSON shape for GET /sessions
// (spec §6: {sessionId, trackName, sessionType, driverCount, lastUpdate}).
type sessionSummaryResponse struct {
	SessionID   string `json:"sessionId"`
	TrackName   string `json:"trackName"`
	SessionType string `json:"sessionType"`
	DriverCount int    `json:"driverCount"`
	LastUpdate  int64  `json:"lastUpdate"`
}

// HandleListSessions reports every session the Session Store currently
// tracks, for operator visibility (not part of the producer/consumer wire
// protocol).
func (h *HubHandlers) HandleListSessions(c *gin.Context) {
	summaries := h.store.List()
	out := make([]sessionSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, sessionSummaryResponse{
			SessionID:   s.SessionID,
			TrackName:   s.TrackName,
			SessionType: s.SessionType,
			DriverCount: s.DriverCount,
			LastUpdate:  s.LastUpdate.UnixMilli(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "count": len(out)})
}

// HandlePollConnect opens a new long-poll connection and returns its id
// (spec §12: POST /poll/connect).
func (h *HubHandlers) HandlePollConnect(c *gin.Context) {
	surface := hub.Surface(c.Query("surface"))
	conn := h.poller.Open(surface)
	c.JSON(http.StatusOK, gin.H{"connectionId": conn.ID()})
}

// HandlePoll drains any events queued for the connection since the last
// poll, blocking briefly if none are yet available (spec §12: POST
// /poll/:connectionId).
func (h *HubHandlers) HandlePoll(c *gin.Context) {
	connID := c.Param("connectionId")
	events, ok := h.poller.Drain(connID, 25*time.Second)
	if !ok {
		notFound(c, "unknown connection")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// HandleEmit accepts one inbound event from a long-poll connection and
// dispatches it through the same ingress path a WebSocket connection uses
// (spec §12: POST /emit/:connectionId).
func (h *HubHandlers) HandleEmit(c *gin.Context) {
	connID := c.Param("connectionId")
	var body struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "malformed request body", Code: "bad_request", Service: "session-hub"})
		return
	}
	if !h.poller.Dispatch(connID, body.Event, body.Payload) {
		notFound(c, "unknown connection")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// HandlePollClose tears down a long-poll connection (spec §12).
func (h *HubHandlers) HandlePollClose(c *gin.Context) {
	connID := c.Param("connectionId")
	h.poller.Close(connID)
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}
