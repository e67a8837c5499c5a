package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relaydesk/relay-go/pkg/core"
)

// HistoryService reads and writes conversation snapshots keyed by id.
type HistoryService struct {
	client *Client
}

// SnapshotMessage is one serialized conversation entry.
type SnapshotMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Tool string `json:"tool,omitempty"`
	At   int64  `json:"at,omitempty"`
}

// Snapshot is one stored conversation.
type Snapshot struct {
	ID        string            `json:"id"`
	Title     string            `json:"title,omitempty"`
	Messages  []SnapshotMessage `json:"messages"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// List returns all snapshot summaries for this device.
func (s *HistoryService) List(ctx context.Context) ([]Snapshot, error) {
	var out []Snapshot
	if err := s.get(ctx, "/api/history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one snapshot by id.
func (s *HistoryService) Get(ctx context.Context, id string) (*Snapshot, error) {
	var out Snapshot
	if err := s.get(ctx, "/api/history/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Put stores a snapshot under its id.
func (s *HistoryService) Put(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		return core.NewInvalidRequestError("snapshot id required")
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		s.client.serverURL+"/api/history/"+snap.ID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return core.NewConnectionError(fmt.Sprintf("history put: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return core.NewAPIError(fmt.Sprintf("history put: status %d", resp.StatusCode))
	}
	return nil
}

// Delete removes a snapshot.
func (s *HistoryService) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.client.serverURL+"/api/history/"+id, nil)
	if err != nil {
		return err
	}
	s.authorize(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return core.NewConnectionError(fmt.Sprintf("history delete: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return core.NewAPIError(fmt.Sprintf("history delete: status %d", resp.StatusCode))
	}
	return nil
}

func (s *HistoryService) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.serverURL+path, nil)
	if err != nil {
		return err
	}
	s.authorize(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return core.NewConnectionError(fmt.Sprintf("history get: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return core.NewInvalidRequestError("snapshot not found")
	}
	if resp.StatusCode >= 300 {
		return core.NewAPIError(fmt.Sprintf("history get: status %d", resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *HistoryService) authorize(req *http.Request) {
	if token := s.client.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
