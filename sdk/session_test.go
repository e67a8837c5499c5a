package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaydesk/relay-go/pkg/core/voice"
)

type stubCapture struct {
	mu      sync.Mutex
	started bool
	stopped bool
}

func (c *stubCapture) EnsurePermission() error { return nil }

func (c *stubCapture) Start(onChunk func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *stubCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

type stubPlayer struct{}

func (p *stubPlayer) Play(text string) (<-chan struct{}, error) {
	done := make(chan struct{})
	close(done)
	return done, nil
}

func (p *stubPlayer) Stop() {}

// realtimeTestServer upgrades /ws and hands server conns to the test.
func realtimeTestServer(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 2)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/ws") {
			http.NotFound(w, r)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func newTestSession(t *testing.T) (*Session, *websocket.Conn) {
	t.Helper()
	srv, conns := realtimeTestServer(t)
	c := NewClient(WithServerURL(srv.URL), WithToken("tok"))
	s := c.NewSession(SessionConfig{
		Capture: &stubCapture{},
		Player:  &stubPlayer{},
	})
	t.Cleanup(s.Close)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var server *websocket.Conn
	select {
	case server = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection")
	}
	// Consume the auth frame.
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := server.ReadMessage(); err != nil {
		t.Fatalf("read auth: %v", err)
	}
	return s, server
}

func waitCond(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSessionRoutesEnvelopes(t *testing.T) {
	t.Parallel()

	s, server := newTestSession(t)
	agentID := s.Agents().ActiveID()

	frames := []map[string]any{
		{"type": "assistant_text", "text": "working on ", "agent_id": agentID},
		{"type": "assistant_text", "text": "it", "agent_id": agentID},
		{"type": "result", "agent_id": agentID, "session_id": "s-1"},
	}
	for _, f := range frames {
		if err := server.WriteJSON(f); err != nil {
			t.Fatalf("server write: %v", err)
		}
	}

	waitCond(t, func() bool {
		a := s.Agents().Agent(agentID)
		return a != nil && a.SessionID == "s-1"
	})

	a := s.Agents().Agent(agentID)
	if len(a.Messages) != 1 {
		t.Fatalf("expected one assistant message, got %d", len(a.Messages))
	}
}

func TestSessionRoutesVoiceEnvelopes(t *testing.T) {
	t.Parallel()

	s, server := newTestSession(t)
	if err := s.StartCall(); err != nil {
		t.Fatalf("start call: %v", err)
	}

	if err := server.WriteJSON(map[string]any{"type": "vad_event", "event": "speech_start"}); err != nil {
		t.Fatalf("server write: %v", err)
	}
	waitCond(t, func() bool { return s.Voice().State() == voice.StateRecording })
}

func TestSessionUnauthorizedCallback(t *testing.T) {
	t.Parallel()

	srv, conns := realtimeTestServer(t)
	c := NewClient(WithServerURL(srv.URL), WithToken("tok"))

	unauthorized := make(chan string, 1)
	s := c.NewSession(SessionConfig{
		Capture:        &stubCapture{},
		Player:         &stubPlayer{},
		OnUnauthorized: func(reason string) { unauthorized <- reason },
	})
	t.Cleanup(s.Close)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	server := <-conns
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	server.ReadMessage() // auth

	msg := websocket.FormatCloseMessage(4401, "unauthorized")
	if err := server.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("server close: %v", err)
	}

	select {
	case reason := <-unauthorized:
		if reason == "" {
			t.Error("expected a reason")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unauthorized callback never fired")
	}
	if c.Token() != "" {
		t.Error("client token must be cleared")
	}
}

func TestSessionSendMessage(t *testing.T) {
	t.Parallel()

	s, server := newTestSession(t)
	if err := s.SendMessage("turn on the lights"); err != nil {
		t.Fatalf("send: %v", err)
	}

	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	var frame map[string]any
	json.Unmarshal(data, &frame)
	if frame["type"] != "send_message" || frame["text"] != "turn on the lights" {
		t.Errorf("unexpected frame: %v", frame)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	s.Close()
	s.Close()
	if s.Conn().Status().String() != "disconnected" {
		t.Errorf("expected disconnected, got %v", s.Conn().Status())
	}
}
