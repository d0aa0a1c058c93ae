package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/hub"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/ws"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/logging"

	"github.com/gin-gonic/gin"
)

type noopDispatcher struct{}

func (noopDispatcher) HandleEvent(conn hub.Subscriber, surface hub.Surface, event string, raw json.RawMessage) {
}
func (noopDispatcher) OnConnect(conn hub.Subscriber) {}
func (noopDispatcher) OnDisconnect(connID string)    {}

// echoDispatcher replies to every inbound event with an "ack" on the same
// connection, synchronously, so a poll that follows an emit never has to
// wait out the long-poll timeout to observe a reply.
type echoDispatcher struct{}

func (echoDispatcher) HandleEvent(conn hub.Subscriber, surface hub.Surface, event string, raw json.RawMessage) {
	conn.Emit("ack", map[string]string{"for": event}, false)
}
func (echoDispatcher) OnConnect(conn hub.Subscriber) {}
func (echoDispatcher) OnDisconnect(connID string)    {}

func newTestHandlers() *HubHandlers {
	gin.SetMode(gin.TestMode)
	store := hub.NewStore()
	transport := ws.NewHub(noopDispatcher{}, logging.NewLogger(), nil, nil, 8)
	poller := ws.NewLongPollRegistry(echoDispatcher{})
	return NewHubHandlers(transport, poller, store, logging.NewLogger())
}

func TestHandleListSessionsReportsStoreContents(t *testing.T) {
	h := newTestHandlers()
	h.store.UpsertFromMetadata(hub.SessionMetadata{SessionID: "s1", TrackName: "Spa", SessionType: "race"})

	router := gin.New()
	router.GET("/sessions", h.HandleListSessions)

	req := httptest.NewRequest("GET", "/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Count    int `json:"count"`
		Sessions []struct {
			SessionID string `json:"sessionId"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Count != 1 || body.Sessions[0].SessionID != "s1" {
		t.Fatalf("expected 1 session 's1', got %+v", body)
	}
}

func TestHandlePollConnectThenPollThenEmitThenClose(t *testing.T) {
	h := newTestHandlers()
	router := gin.New()
	router.POST("/poll/connect", h.HandlePollConnect)
	router.POST("/poll/:connectionId", h.HandlePoll)
	router.POST("/emit/:connectionId", h.HandleEmit)
	router.POST("/poll/:connectionId/close", h.HandlePollClose)

	connectReq := httptest.NewRequest("POST", "/poll/connect?surface=web", nil)
	connectRec := httptest.NewRecorder()
	router.ServeHTTP(connectRec, connectReq)
	if connectRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from poll/connect, got %d", connectRec.Code)
	}
	var connectBody struct {
		ConnectionID string `json:"connectionId"`
	}
	if err := json.Unmarshal(connectRec.Body.Bytes(), &connectBody); err != nil {
		t.Fatalf("failed to decode connect response: %v", err)
	}
	if connectBody.ConnectionID == "" {
		t.Fatal("expected a non-empty connectionId")
	}

	emitBody := strings.NewReader(`{"event":"room:join","payload":{"sessionId":"s1"}}`)
	emitReq := httptest.NewRequest("POST", "/emit/"+connectBody.ConnectionID, emitBody)
	emitReq.Header.Set("Content-Type", "application/json")
	emitRec := httptest.NewRecorder()
	router.ServeHTTP(emitRec, emitReq)
	if emitRec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 from emit, got %d: %s", emitRec.Code, emitRec.Body.String())
	}

	pollReq := httptest.NewRequest("POST", "/poll/"+connectBody.ConnectionID, nil)
	pollRec := httptest.NewRecorder()
	router.ServeHTTP(pollRec, pollReq)
	if pollRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from poll, got %d", pollRec.Code)
	}

	closeReq := httptest.NewRequest("POST", "/poll/"+connectBody.ConnectionID+"/close", nil)
	closeRec := httptest.NewRecorder()
	router.ServeHTTP(closeRec, closeReq)
	if closeRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from close, got %d", closeRec.Code)
	}
}

func TestHandleEmitUnknownConnectionReturnsNotFound(t *testing.T) {
	h := newTestHandlers()
	router := gin.New()
	router.POST("/emit/:connectionId", h.HandleEmit)

	body := strings.NewReader(`{"event":"room:join","payload":{}}`)
	req := httptest.NewRequest("POST", "/emit/does-not-exist", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown connection, got %d", rec.Code)
	}
}

func TestHandlePollUnknownConnectionReturnsNotFound(t *testing.T) {
	h := newTestHandlers()
	router := gin.New()
	router.POST("/poll/:connectionId", h.HandlePoll)

	req := httptest.NewRequest("POST", "/poll/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown connection, got %d", rec.Code)
	}
}
