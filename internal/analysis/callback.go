package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TokenIssuer signs a bearer token scoped to a single document.
type TokenIssuer interface {
	Issue(docID int64) (string, error)
}

// CallbackClient reports analysis outcomes back to the document API through
// PATCH {base}/documents/{id}/result.
type CallbackClient struct {
	base   string
	tokens TokenIssuer
	http   *http.Client
}

// NewCallbackClient builds the client. tokens may be nil when the API does
// not guard the callback.
func NewCallbackClient(base string, tokens TokenIssuer, timeout time.Duration) *CallbackClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CallbackClient{
		base:   strings.TrimRight(base, "/"),
		tokens: tokens,
		http:   &http.Client{Timeout: timeout},
	}
}

type resultPayload struct {
	Result map[string]any `json:"result"`
	Status string         `json:"status"`
}

// Report sends result with status ("completed" or "failed").
func (c *CallbackClient) Report(ctx context.Context, docID int64, result map[string]any, status string) error {
	body, err := json.Marshal(resultPayload{Result: result, Status: status})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	url := fmt.Sprintf("%s/documents/%d/result", c.base, docID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		tok, err := c.tokens.Issue(docID)
		if err != nil {
			return fmt.Errorf("issue callback token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: document %d", ErrDocumentGone, docID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("callback returned %s: %s", resp.Status, errorDetail(resp.Body))
	}
	return nil
}
