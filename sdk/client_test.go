package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/relaydesk/relay-go/pkg/core"
)

func TestAuthenticateStoresToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req["pin"] != "4242" || req["device_id"] != "dev-1" || req["device_name"] != "tester" {
			t.Errorf("unexpected auth body: %v", req)
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-xyz"})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(WithServerURL(srv.URL), WithDeviceID("dev-1"), WithDeviceName("tester"))
	token, err := c.Auth.Authenticate(context.Background(), "4242")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if token != "tok-xyz" || c.Token() != "tok-xyz" {
		t.Errorf("token not stored: %q / %q", token, c.Token())
	}
}

func TestAuthenticateBadPIN(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining := 2
		json.NewEncoder(w).Encode(map[string]any{
			"error":              "invalid pin",
			"remaining_attempts": remaining,
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(WithServerURL(srv.URL))
	_, err := c.Auth.Authenticate(context.Background(), "0000")
	if err == nil {
		t.Fatal("expected error")
	}
	var coreErr *core.Error
	if !asCoreError(err, &coreErr) || coreErr.Type != core.ErrAuthentication {
		t.Errorf("expected authentication error, got %v", err)
	}
	if c.Token() != "" {
		t.Error("failed auth must not store a token")
	}
}

func TestAuthenticateLockedDevice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error":             "locked",
			"locked":            true,
			"remaining_seconds": 90,
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(WithServerURL(srv.URL))
	_, err := c.Auth.Authenticate(context.Background(), "0000")
	var coreErr *core.Error
	if !asCoreError(err, &coreErr) {
		t.Fatalf("expected core error, got %v", err)
	}
	if coreErr.Code != "device_locked" {
		t.Errorf("expected device_locked code, got %q", coreErr.Code)
	}
	if coreErr.RetryAfter == nil || *coreErr.RetryAfter != 90 {
		t.Errorf("expected 90s retry-after, got %v", coreErr.RetryAfter)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	t.Parallel()

	stored := map[string]Snapshot{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing auth header, got %q", got)
		}
		id := r.URL.Path[len("/api/history/"):]
		switch r.Method {
		case http.MethodPut:
			var snap Snapshot
			json.NewDecoder(r.Body).Decode(&snap)
			stored[id] = snap
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			snap, ok := stored[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(snap)
		case http.MethodDelete:
			delete(stored, id)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(WithServerURL(srv.URL), WithToken("tok"))
	snap := &Snapshot{
		ID:       "conv-1",
		Title:    "kitchen lights",
		Messages: []SnapshotMessage{{Type: "user", Text: "hi"}},
	}
	if err := c.History.Put(context.Background(), snap); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.History.Get(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "kitchen lights" || len(got.Messages) != 1 {
		t.Errorf("snapshot did not round-trip: %+v", got)
	}

	if err := c.History.Delete(context.Background(), "conv-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.History.Get(context.Background(), "conv-1"); err == nil {
		t.Error("expected not-found after delete")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(WithServerURL(srv.URL), WithToken("tok"))
	text, err := c.Transcribe.Transcribe(context.Background(), []byte{0, 0, 1, 1})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected transcript, got %q", text)
	}
}

func TestTranscribeServiceError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "audio too short"})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(WithServerURL(srv.URL))
	if _, err := c.Transcribe.Transcribe(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRealtimeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base string
		want string
	}{
		{"http://relay.local:8080", "ws://relay.local:8080/ws"},
		{"https://relay.example.com", "wss://relay.example.com/ws"},
		{"https://relay.example.com/", "wss://relay.example.com/ws"},
	}
	for _, tt := range tests {
		c := NewClient(WithServerURL(tt.base))
		if got := c.realtimeURL(); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.base, tt.want, got)
		}
	}
}

func TestTokenConcurrentAccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Snapshot{})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(WithServerURL(srv.URL), WithToken("tok"))

	// Revocation clears the token from the dispatch goroutine while other
	// goroutines authorize REST requests; both paths go through the lock.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.SetToken("")
				c.SetToken("tok")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = c.Token()
				c.History.List(context.Background())
			}
		}()
	}
	wg.Wait()

	if got := c.Token(); got != "tok" {
		t.Errorf("expected final token tok, got %q", got)
	}
}

func asCoreError(err error, target **core.Error) bool {
	if e, ok := err.(*core.Error); ok {
		*target = e
		return true
	}
	return false
}
