// Package api provides the HTTP client for the Agent Memory System API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentmemory/memctl/internal/auth"
	"github.com/agentmemory/memctl/internal/config"
	"github.com/agentmemory/memctl/internal/models"
	"github.com/agentmemory/memctl/internal/observability"
	"github.com/agentmemory/memctl/internal/output"
	"github.com/agentmemory/memctl/internal/version"
)

const (
	maxRetries = 3
	baseDelay  = 500 * time.Millisecond
	maxJitter  = 100 * time.Millisecond
)

// Client is an HTTP client for the Agent Memory System API. Every request
// obtains its bearer token from the credential manager, which refreshes
// lazily when the cached token has expired.
type Client struct {
	httpClient *http.Client
	auth       *auth.Manager
	cfg        *config.Config
	hooks      *observability.CLIHooks
}

// Response wraps an API response.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Headers    http.Header
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v any) error {
	return json.Unmarshal(r.Data, v)
}

// NewClient creates a new API client.
func NewClient(cfg *config.Config, authMgr *auth.Manager, hooks *observability.CLIHooks) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		auth:  authMgr,
		cfg:   cfg,
		hooks: hooks,
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.doRequest(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.doRequest(ctx, http.MethodPost, path, body)
}

// RecordEvent records an event to memory. The server acknowledges with 201
// and returns the event and chunk identifiers.
func (c *Client) RecordEvent(ctx context.Context, event models.Event) (*models.EventReceipt, error) {
	if event.Sensitivity == "" {
		event.Sensitivity = "none"
	}
	if event.Tags == nil {
		event.Tags = []string{}
	}

	resp, err := c.Post(ctx, "/api/v1/events", event)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, output.ErrAPI(resp.StatusCode, "event recording failed")
	}

	var receipt models.EventReceipt
	if err := resp.UnmarshalData(&receipt); err != nil {
		return nil, fmt.Errorf("failed to parse event receipt: %w", err)
	}
	return &receipt, nil
}

// BuildACB asks the server to compute an Active Context Bundle.
func (c *Client) BuildACB(ctx context.Context, req models.ACBRequest) (*models.ACB, error) {
	resp, err := c.Post(ctx, "/api/v1/acb/build", req)
	if err != nil {
		return nil, err
	}

	var acb models.ACB
	if err := resp.UnmarshalData(&acb); err != nil {
		return nil, fmt.Errorf("failed to parse ACB: %w", err)
	}
	return &acb, nil
}

// ListSessions lists authentication sessions for the current user.
func (c *Client) ListSessions(ctx context.Context) ([]models.Session, error) {
	resp, err := c.Get(ctx, "/auth/sessions")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Sessions []models.Session `json:"sessions"`
	}
	if err := resp.UnmarshalData(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %w", err)
	}
	return payload.Sessions, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*Response, error) {
	url := c.buildURL(path)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := c.singleRequest(ctx, method, url, body, attempt)
		if err == nil {
			return resp, nil
		}

		apiErr, ok := err.(*output.Error)
		if !ok || !apiErr.Retryable {
			return nil, err
		}
		lastErr = err

		delay := backoffDelay(attempt)
		if c.hooks != nil {
			c.hooks.RetryScheduled(method, url, attempt, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) singleRequest(ctx context.Context, method, url string, body any, attempt int) (*Response, error) {
	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = strings.NewReader(string(payload))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		netErr := output.ErrNetwork(err)
		if c.hooks != nil {
			c.hooks.RequestFinished(observability.RequestMetrics{
				Method: method, URL: url, Attempt: attempt, Duration: time.Since(start), Error: netErr,
			})
		}
		return nil, netErr
	}
	defer resp.Body.Close()

	if c.hooks != nil {
		c.hooks.RequestFinished(observability.RequestMetrics{
			Method: method, URL: url, Attempt: attempt,
			StatusCode: resp.StatusCode, Duration: time.Since(start),
		})
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return &Response{
			Data:       respBody,
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
		}, nil

	case http.StatusUnauthorized:
		// The token may have been revoked server-side while still looking
		// valid locally. Refresh once and retry; a second 401 is final.
		if attempt == 1 {
			if err := c.auth.Refresh(ctx); err == nil {
				if c.hooks != nil {
					c.hooks.TokenRefreshed()
				}
				return nil, &output.Error{
					Code:      output.CodeAuth,
					Message:   "Token refreshed",
					Retryable: true,
				}
			}
		}
		return nil, output.ErrAuthStatus(resp.StatusCode, "Authentication failed")

	case http.StatusForbidden:
		return nil, output.ErrForbidden("Access denied")

	case http.StatusNotFound:
		return nil, output.ErrNotFound("Resource", url)

	case http.StatusTooManyRequests:
		return nil, output.ErrRateLimit(parseRetryAfter(resp.Header.Get("Retry-After")))

	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, &output.Error{
			Code:       output.CodeAPI,
			Message:    fmt.Sprintf("Gateway error (%d)", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Retryable:  true,
		}

	default:
		respBody, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil {
			msg := apiErr.Error
			if msg == "" {
				msg = apiErr.Message
			}
			if msg != "" {
				return nil, output.ErrAPI(resp.StatusCode, msg)
			}
		}
		return nil, output.ErrAPI(resp.StatusCode, fmt.Sprintf("Request failed (HTTP %d)", resp.StatusCode))
	}
}

func (c *Client) buildURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func backoffDelay(attempt int) time.Duration {
	// Exponential backoff: base * 2^(attempt-1), plus up to 100ms jitter.
	delay := baseDelay * time.Duration(1<<(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(maxJitter))) //nolint:gosec // G404: Jitter doesn't need crypto rand
	return delay + jitter
}

// parseRetryAfter parses the Retry-After header value.
func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return seconds
	}
	return 0
}
