// Package relay is the client SDK for the Relay conversational agent
// service: device authentication, conversation history, transcription,
// and realtime sessions with live voice calls.
package relay

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/relaydesk/relay-go/pkg/metrics"
)

// Client is the entry point for the SDK. It holds credentials and the
// REST collaborators; realtime work happens on Sessions it creates.
type Client struct {
	Auth       *AuthService
	History    *HistoryService
	Transcribe *TranscribeService

	serverURL  string
	tokenMu    sync.RWMutex
	token      string
	deviceID   string
	deviceName string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a client. Server URL and token default from the
// RELAY_SERVER_URL and RELAY_TOKEN environment variables.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		serverURL:  os.Getenv("RELAY_SERVER_URL"),
		token:      os.Getenv("RELAY_TOKEN"),
		deviceName: defaultDeviceName(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.serverURL = strings.TrimRight(c.serverURL, "/")

	c.Auth = &AuthService{client: c}
	c.History = &HistoryService{client: c}
	c.Transcribe = &TranscribeService{client: c}
	return c
}

// Token returns the current auth token. Safe for concurrent use; the
// session's dispatch goroutine clears the token on revocation while other
// goroutines authorize REST requests.
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// SetToken replaces the stored token, e.g. after authentication.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.token = token
}

// realtimeURL derives the websocket endpoint from the server URL.
func (c *Client) realtimeURL() string {
	url := c.serverURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/ws"
}

func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "relay-go"
	}
	return host
}
