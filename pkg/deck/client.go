// Package deck is a small typed client for the ContextDeck HTTP API.
package deck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a ContextDeck server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the given base URL, e.g. "http://localhost:8390".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response decoded from the server's problem document.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var problem struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&problem)
		if problem.Detail == "" {
			problem.Detail = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Detail: problem.Detail}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Context mirrors the server's context representation.
type Context struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	TokenCount int      `json:"token_count"`
	Version    string   `json:"version"`
	Labels     []string `json:"labels"`
}

// Label mirrors the server's label representation.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Health reports server status.
type Health struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	ContextCount int    `json:"context_count"`
	LabelCount   int    `json:"label_count"`
}

// Ping checks connectivity and returns server health.
func (c *Client) Ping(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Contexts lists all contexts in the library.
func (c *Client) Contexts(ctx context.Context) ([]Context, error) {
	var out []Context
	if err := c.do(ctx, http.MethodGet, "/api/v1/contexts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateContext adds a context to the library.
func (c *Client) CreateContext(ctx context.Context, title, content string) (*Context, error) {
	in := map[string]string{"title": title, "content": content}
	var out Context
	if err := c.do(ctx, http.MethodPost, "/api/v1/contexts", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateContext replaces a context's title and content.
func (c *Client) UpdateContext(ctx context.Context, id, title, content string) (*Context, error) {
	in := map[string]string{"title": title, "content": content}
	var out Context
	if err := c.do(ctx, http.MethodPut, "/api/v1/contexts/"+id, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteContexts removes contexts by id.
func (c *Client) DeleteContexts(ctx context.Context, ids []string) error {
	in := map[string][]string{"ids": ids}
	return c.do(ctx, http.MethodPost, "/api/v1/contexts/delete", in, nil)
}

// SetContextLabels replaces a context's label set.
func (c *Client) SetContextLabels(ctx context.Context, id string, labelIDs []string) (*Context, error) {
	in := map[string][]string{"label_ids": labelIDs}
	var out Context
	if err := c.do(ctx, http.MethodPut, "/api/v1/contexts/"+id+"/labels", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Labels lists all labels.
func (c *Client) Labels(ctx context.Context) ([]Label, error) {
	var out []Label
	if err := c.do(ctx, http.MethodGet, "/api/v1/labels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateLabel adds a label.
func (c *Client) CreateLabel(ctx context.Context, name, color string) (*Label, error) {
	in := map[string]string{"name": name, "color": color}
	var out Label
	if err := c.do(ctx, http.MethodPost, "/api/v1/labels", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export downloads the library as a backup document.
func (c *Client) Export(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v1/backup/export", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Import uploads a backup document. The server rejects the whole file when
// it is structurally invalid.
func (c *Client) Import(ctx context.Context, doc json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/api/v1/backup/import", doc, nil)
}
