package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/avelar/taskhub/pkg/models"
)

// HTTPRecorder appends entries through the server's /activity endpoint.
type HTTPRecorder struct {
	base   string
	client *http.Client
}

func NewHTTPRecorder(base string, client *http.Client) *HTTPRecorder {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRecorder{base: base, client: client}
}

func (r *HTTPRecorder) Record(ctx context.Context, e *models.ActivityEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/activity", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post activity: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("activity endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (r *HTTPRecorder) Recent(ctx context.Context, limit int) ([]*models.ActivityEntry, error) {
	url := fmt.Sprintf("%s/activity?limit=%d", r.base, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("activity endpoint returned %d", resp.StatusCode)
	}

	var entries []*models.ActivityEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode activity: %w", err)
	}
	return entries, nil
}
