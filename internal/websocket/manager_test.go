package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type readHandler struct {
	calls chan string
	err   error
}

func (h *readHandler) MarkMessageRead(_ context.Context, userID, messageID string) error {
	h.calls <- userID + ":" + messageID
	return h.err
}

func staticAuth(token string) (string, error) {
	if token != "good" {
		return "", errors.New("bad token")
	}
	return "u1", nil
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestPushReachesUserClients(t *testing.T) {
	m := NewManager(nil)
	defer m.Shutdown()
	srv := httptest.NewServer(m.Handler(staticAuth))
	defer srv.Close()

	conn := dial(t, srv, "good")
	if ev := readEvent(t, conn); ev.Type != EventConnected || ev.UserID != "u1" {
		t.Fatalf("expected connected event, got %+v", ev)
	}

	m.BroadcastUnreadCounts("u1", 3)
	ev := readEvent(t, conn)
	if ev.Type != EventUnreadCount || string(ev.Payload) != `{"count":3}` {
		t.Fatalf("unexpected event: %+v", ev)
	}

	m.SendToUser("u2", Event{Type: EventSession})
	if m.Connected("u1") != 1 || m.Connected("u2") != 0 {
		t.Fatalf("unexpected connection counts")
	}
}

func TestRejectsBadToken(t *testing.T) {
	m := NewManager(nil)
	srv := httptest.NewServer(m.Handler(staticAuth))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=bad"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatalf("expected handshake failure")
	}
}

func TestMessageReadCommand(t *testing.T) {
	h := &readHandler{calls: make(chan string, 1), err: errors.New("forbidden")}
	m := NewManager(h)
	defer m.Shutdown()
	srv := httptest.NewServer(m.Handler(staticAuth))
	defer srv.Close()

	conn := dial(t, srv, "good")
	readEvent(t, conn)

	cmd, _ := json.Marshal(Event{Type: EventMessageRead, MessageID: "m1"})
	if err := conn.WriteMessage(websocket.TextMessage, cmd); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case got := <-h.calls:
		if got != "u1:m1" {
			t.Fatalf("unexpected call %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler was not called")
	}
	if ev := readEvent(t, conn); ev.Type != EventError {
		t.Fatalf("expected error event, got %+v", ev)
	}

	// чужой userID игнорируется
	spoofed, _ := json.Marshal(Event{Type: EventMessageRead, MessageID: "m2", UserID: "u2"})
	conn.WriteMessage(websocket.TextMessage, spoofed)
	select {
	case got := <-h.calls:
		t.Fatalf("spoofed command must be ignored, got %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisconnectUser(t *testing.T) {
	m := NewManager(nil)
	defer m.Shutdown()
	srv := httptest.NewServer(m.Handler(staticAuth))
	defer srv.Close()

	conn := dial(t, srv, "good")
	readEvent(t, conn)
	m.DisconnectUser("u1")
	if m.Connected("u1") != 0 {
		t.Fatalf("expected no connections")
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected closed connection")
	}
}
