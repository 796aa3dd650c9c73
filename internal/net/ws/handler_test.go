package ws

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"webmap/server/internal/net/proto"
)

func websocketURL(t *testing.T, base string) string {
	t.Helper()
	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("failed to parse server url: %v", err)
	}
	u.Scheme = "ws"
	return u.String()
}

func waitForViewers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d viewers, have %d", want, hub.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerDeliversBroadcasts(t *testing.T) {
	hub := NewHub(HubConfig{})
	srv := httptest.NewServer(NewHandler(hub, HandlerConfig{}))
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, srv.URL), nil)
	if err != nil {
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	waitForViewers(t, hub, 1)

	hub.Broadcast(proto.Ping{Name: "Ragnar"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	if messageType != websocket.TextMessage || string(payload) != "ping\nRagnar\n0,0,0" {
		t.Fatalf("unexpected frame %d %q", messageType, payload)
	}
}

func TestHandlerRemovesViewerOnDisconnect(t *testing.T) {
	hub := NewHub(HubConfig{})
	srv := httptest.NewServer(NewHandler(hub, HandlerConfig{}))
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, srv.URL), nil)
	if err != nil {
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	waitForViewers(t, hub, 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitForViewers(t, hub, 0)
}

func TestHandlerRejectsWhenFull(t *testing.T) {
	hub := NewHub(HubConfig{MaxViewers: 1})
	srv := httptest.NewServer(NewHandler(hub, HandlerConfig{}))
	t.Cleanup(srv.Close)

	first, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, srv.URL), nil)
	if err != nil {
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() { first.Close() })
	if resp != nil {
		resp.Body.Close()
	}
	waitForViewers(t, hub, 1)

	second, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, srv.URL), nil)
	if err != nil {
		t.Fatalf("failed to open second connection: %v", err)
	}
	t.Cleanup(func() { second.Close() })
	if resp != nil {
		resp.Body.Close()
	}
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("expected try-again-later close, got %v", err)
	}
}

func TestHandlerChecksOrigin(t *testing.T) {
	hub := NewHub(HubConfig{})
	srv := httptest.NewServer(NewHandler(hub, HandlerConfig{AllowedOrigins: []string{"https://map.example"}}))
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, srv.URL), header)
	if err == nil {
		t.Fatalf("expected upgrade to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
	resp.Body.Close()
}
