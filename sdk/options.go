package relay

import (
	"log/slog"
	"net/http"

	"github.com/relaydesk/relay-go/pkg/metrics"
)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithServerURL sets the service base URL.
func WithServerURL(url string) ClientOption {
	return func(c *Client) {
		c.serverURL = url
	}
}

// WithToken sets the auth token directly, skipping PIN authentication.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithDeviceID sets the stable device identifier used for authentication.
func WithDeviceID(id string) ClientOption {
	return func(c *Client) {
		c.deviceID = id
	}
}

// WithDeviceName sets the human-readable device name.
func WithDeviceName(name string) ClientOption {
	return func(c *Client) {
		c.deviceName = name
	}
}

// WithHTTPClient sets a custom HTTP client for the REST collaborators.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics attaches a metrics registry shared with the sessions.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}
