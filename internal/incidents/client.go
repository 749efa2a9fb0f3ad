package incidents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// TokenIssuer signs service tokens for outgoing requests.
type TokenIssuer interface {
	Issue(service string) (string, error)
}

// Client calls a remote coordinator.
type Client struct {
	baseURL    string
	service    string
	tokens     TokenIssuer
	httpClient *http.Client
}

// NewClient creates a client for the coordinator at baseURL.
func NewClient(baseURL, service string, tokens TokenIssuer, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		service:    service,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Transition implements Transitioner.
func (c *Client) Transition(ctx context.Context, req domain.TransitionRequest) (domain.TransitionResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("marshal request: %w", err)
	}

	token, err := c.tokens.Issue(c.service)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("issue service token: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+TransitionPath, bytes.NewReader(body))
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.TransitionResult{}, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.TransitionResult{}, fmt.Errorf("coordinator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result domain.TransitionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.TransitionResult{}, fmt.Errorf("decode response: %w", err)
	}
	if !result.OK {
		return domain.TransitionResult{}, fmt.Errorf("coordinator rejected transition")
	}
	return result, nil
}
