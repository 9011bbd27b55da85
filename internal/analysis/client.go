package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	analyzePath           = "/pdf-analyzer/analyze"
	defaultAnalyzeTimeout = 120 * time.Second
)

// Client calls the external PDF analyzer. The analyzer fetches the document
// itself from the public file URL and answers with an arbitrary JSON object.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a reusable analyzer client. The timeout bounds one
// analyze call end to end.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultAnalyzeTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

// Analyze posts the file URL and returns the decoded analysis payload.
func (c *Client) Analyze(ctx context.Context, fileURL string) (map[string]any, error) {
	body, err := json.Marshal(map[string]string{"file_url": fileURL})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+analyzePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("analyzer returned %s: %s", resp.Status, errorDetail(resp.Body))
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("decode response: empty body")
	}
	return out, nil
}

// errorDetail prefers the FastAPI style {"detail": ...} field and falls back
// to the raw body.
func errorDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != nil {
		return fmt.Sprint(body.Detail)
	}
	return strings.TrimSpace(string(raw))
}
