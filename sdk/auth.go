package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/relaydesk/relay-go/pkg/core"
)

// AuthService exchanges a device PIN for an access token.
type AuthService struct {
	client *Client
}

type authRequest struct {
	PIN        string `json:"pin"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

type authResponse struct {
	Token             string `json:"token"`
	Error             string `json:"error,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	Locked            bool   `json:"locked,omitempty"`
	RemainingSeconds  int    `json:"remaining_seconds,omitempty"`
}

// Authenticate posts the PIN and stores the returned token on the client.
// A locked device surfaces the remaining lockout time; a bad PIN surfaces
// the remaining attempts in the error message.
func (s *AuthService) Authenticate(ctx context.Context, pin string) (string, error) {
	body, err := json.Marshal(authRequest{
		PIN:        pin,
		DeviceID:   s.client.deviceID,
		DeviceName: s.client.deviceName,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.client.serverURL+"/api/auth", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return "", core.NewConnectionError(fmt.Sprintf("auth request: %v", err))
	}
	defer resp.Body.Close()

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", core.NewAPIError(fmt.Sprintf("auth response: %v", err))
	}

	if out.Locked {
		return "", core.NewLockedError("device locked", out.RemainingSeconds)
	}
	if out.Error != "" || out.Token == "" {
		msg := out.Error
		if msg == "" {
			msg = "authentication failed"
		}
		if out.RemainingAttempts != nil {
			msg = fmt.Sprintf("%s (%d attempts remaining)", msg, *out.RemainingAttempts)
		}
		return "", core.NewAuthenticationError(msg)
	}

	s.client.SetToken(out.Token)
	return out.Token, nil
}
