package ws

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/hub"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/auth"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/logging"
)

func newTestConnection(queueSize int) *Connection {
	return &Connection{
		id:      "conn-1",
		send:    make(chan Envelope, queueSize),
		surface: hub.SurfaceWeb,
		closed:  make(chan struct{}),
		logger:  logging.NewLogger(),
	}
}

func TestConnectionEmitVolatileDropsOnFullQueue(t *testing.T) {
	c := newTestConnection(1)
	if err := c.Emit("e1", "p1", true); err != nil {
		t.Fatalf("expected the first volatile emit to succeed, got %v", err)
	}
	if err := c.Emit("e2", "p2", true); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull on a saturated queue, got %v", err)
	}
}

func TestConnectionEmitNonVolatileBlocksUntilDrained(t *testing.T) {
	c := newTestConnection(1)
	if err := c.Emit("e1", "p1", false); err != nil {
		t.Fatalf("unexpected error filling the queue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		c.Emit("e2", "p2", false)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected the non-volatile emit to block on a full queue")
	case <-time.After(20 * time.Millisecond):
	}

	<-c.send
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected the blocked emit to unblock once space freed up")
	}
}

func TestConnectionEmitAfterCloseReturnsClosedError(t *testing.T) {
	c := newTestConnection(0)
	c.close()
	if err := c.Emit("e1", "p1", false); err != ErrConnectionClosed {
		t.Fatalf("expected ErrConnectionClosed after close, got %v", err)
	}
	if err := c.Emit("e1", "p1", true); err != ErrConnectionClosed {
		t.Fatalf("expected ErrConnectionClosed on a volatile emit after close, got %v", err)
	}
}

func TestHubRegisterUnregisterAndConnByID(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewHub(d, logging.NewLogger(), nil, nil, 8)
	c := newTestConnection(8)

	h.register(c)
	got, ok := h.ConnByID("conn-1")
	if !ok || got != hub.Subscriber(c) {
		t.Fatalf("expected ConnByID to return the registered connection")
	}

	h.unregister(c)
	if _, ok := h.ConnByID("conn-1"); ok {
		t.Fatal("expected the connection to be gone after unregister")
	}
	if len(d.disconnected) != 1 || d.disconnected[0] != "conn-1" {
		t.Fatalf("expected unregister to notify the dispatcher, got %v", d.disconnected)
	}
}

func TestHubBroadcastAllReachesEveryConnection(t *testing.T) {
	h := NewHub(&recordingDispatcher{}, logging.NewLogger(), nil, nil, 8)
	a := newTestConnection(8)
	a.id = "a"
	b := newTestConnection(8)
	b.id = "b"
	h.register(a)
	h.register(b)

	h.BroadcastAll("session:active", "payload", false)

	if len(a.send) != 1 || len(b.send) != 1 {
		t.Fatalf("expected both connections to receive the broadcast, got a=%d b=%d", len(a.send), len(b.send))
	}
}

func TestSurfaceAndSubjectFallsBackToQueryParam(t *testing.T) {
	h := NewHub(&recordingDispatcher{}, logging.NewLogger(), nil, nil, 8)
	req := httptest.NewRequest("GET", "/ws?surface=driver", nil)

	surface, subject := h.surfaceAndSubject(req)
	if surface != hub.SurfaceDriver || subject != "" {
		t.Fatalf("expected surface=driver subject='', got surface=%q subject=%q", surface, subject)
	}
}

func TestSurfaceAndSubjectPrefersValidBearerToken(t *testing.T) {
	secret := []byte("test-secret")
	h := NewHub(&recordingDispatcher{}, logging.NewLogger(), nil, secret, 8)

	token, err := auth.GenerateJWT("driver-42", "broadcast", secret)
	if err != nil {
		t.Fatalf("failed to mint a test token: %v", err)
	}

	req := httptest.NewRequest("GET", "/ws?surface=web", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	surface, subject := h.surfaceAndSubject(req)
	if surface != hub.SurfaceBroadcast || subject != "driver-42" {
		t.Fatalf("expected the claims to override the query param, got surface=%q subject=%q", surface, subject)
	}
}

func TestSurfaceAndSubjectIgnoresUnparseableToken(t *testing.T) {
	secret := []byte("test-secret")
	h := NewHub(&recordingDispatcher{}, logging.NewLogger(), nil, secret, 8)

	req := httptest.NewRequest("GET", "/ws?surface=web", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")

	surface, subject := h.surfaceAndSubject(req)
	if surface != hub.SurfaceWeb || subject != "" {
		t.Fatalf("expected fallback to the query param on a bad token, got surface=%q subject=%q", surface, subject)
	}
}

type recordingDispatcher struct {
	connected    []hub.Subscriber
	handled      []string
	disconnected []string
}

func (d *recordingDispatcher) HandleEvent(conn hub.Subscriber, surface hub.Surface, event string, raw json.RawMessage) {
	d.handled = append(d.handled, event)
}
func (d *recordingDispatcher) OnConnect(conn hub.Subscriber) {
	d.connected = append(d.connected, conn)
}
func (d *recordingDispatcher) OnDisconnect(connID string) {
	d.disconnected = append(d.disconnected, connID)
}
