package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/relaydesk/relay-go/pkg/core"
)

// TranscribeService converts recorded audio to text over REST. It is the
// push-to-talk path; hands-free calls stream over the realtime channel
// instead.
type TranscribeService struct {
	client *Client
}

type transcribeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Transcribe uploads a raw PCM blob and returns the transcript.
func (s *TranscribeService) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.client.serverURL+"/api/transcribe", bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if token := s.client.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return "", core.NewConnectionError(fmt.Sprintf("transcribe request: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", core.NewAPIError(fmt.Sprintf("transcribe: status %d", resp.StatusCode))
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", core.NewAPIError(fmt.Sprintf("transcribe response: %v", err))
	}
	if out.Error != "" {
		return "", core.NewAPIError(out.Error)
	}
	return out.Text, nil
}

// Synthesize converts text to PCM audio (mono, 16 kHz, 16-bit) for local
// playback.
func (s *TranscribeService) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.client.serverURL+"/api/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := s.client.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, core.NewConnectionError(fmt.Sprintf("synthesize request: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, core.NewAPIError(fmt.Sprintf("synthesize: status %d", resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}
