package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/avelar/taskhub/pkg/models"
)

// Client implements TaskStore against a RESTServer. A 409 response is
// translated back into ErrConflict so coordinator rollback logic can rely
// on errors.Is regardless of which store implementation it talks to.
type Client struct {
	base   string
	client *http.Client
}

func NewClient(base string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{base: strings.TrimSuffix(base, "/"), client: client}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrConflict
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) List(ctx context.Context) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) Insert(ctx context.Context, t *models.Task) error {
	return c.do(ctx, http.MethodPost, "/tasks", t, t)
}

func (c *Client) Update(ctx context.Context, id string, fields TaskFields) (*models.Task, error) {
	var t models.Task
	if err := c.do(ctx, http.MethodPatch, "/tasks/"+id, fields, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) UpdateMany(ctx context.Context, ids []string, fields TaskFields) error {
	return c.do(ctx, http.MethodPost, "/tasks/batch", batchRequest{IDs: ids, Fields: fields}, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+id, nil, nil)
}

func (c *Client) DeleteMany(ctx context.Context, ids []string) error {
	return c.do(ctx, http.MethodPost, "/tasks/batch/delete", batchRequest{IDs: ids}, nil)
}

func (c *Client) Merge(ctx context.Context, primaryID string, fields TaskFields, removeIDs []string) (*models.Task, error) {
	var t models.Task
	req := mergeRequest{PrimaryID: primaryID, Fields: fields, RemoveIDs: removeIDs}
	if err := c.do(ctx, http.MethodPost, "/tasks/merge", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
