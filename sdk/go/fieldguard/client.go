package fieldguard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls a local fieldguard agent. Safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{
		address: DefaultAddress,
		timeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}

	u, err := url.Parse(cfg.address)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("fieldguard: invalid agent address %q", cfg.address)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}
	return &Client{
		base:    strings.TrimRight(cfg.address, "/"),
		http:    cfg.httpClient,
		timeout: cfg.timeout,
	}, nil
}

type enforceRequest struct {
	ActionType string             `json:"action_type"`
	Parameters map[string]float64 `json:"parameters"`
}

type checkRequest struct {
	Parameters map[string]float64 `json:"parameters"`
}

type decisionResponse struct {
	Allowed    bool        `json:"allowed"`
	ActionID   string      `json:"action_id"`
	Reason     string      `json:"reason"`
	Violations []Violation `json:"violations"`
	Error      string      `json:"error"`
}

// Enforce asks the agent for a recorded decision. A blocked action is a
// Result with Allowed false, not an error. Quarantine returns
// ErrQuarantined; transport failures wrap ErrUnavailable.
func (c *Client) Enforce(ctx context.Context, action Action) (Result, error) {
	if action.Type == "" {
		return Result{}, fmt.Errorf("fieldguard: action type is required")
	}
	params := action.Parameters
	if params == nil {
		params = map[string]float64{}
	}
	return c.post(ctx, "/v1/enforce", enforceRequest{ActionType: action.Type, Parameters: params})
}

// Check evaluates params without recording a decision.
func (c *Client) Check(ctx context.Context, params map[string]float64) (Result, error) {
	if params == nil {
		params = map[string]float64{}
	}
	return c.post(ctx, "/v1/check", checkRequest{Parameters: params})
}

func (c *Client) post(ctx context.Context, path string, in any) (Result, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return Result{}, fmt.Errorf("fieldguard: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("fieldguard: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var out decisionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{}, fmt.Errorf("%w: HTTP %d: malformed response", ErrUnavailable, resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusConflict:
		return Result{
			Allowed:    out.Allowed,
			ActionID:   out.ActionID,
			Reason:     out.Reason,
			Violations: out.Violations,
		}, nil
	case http.StatusServiceUnavailable:
		return Result{Reason: out.Reason}, ErrQuarantined
	default:
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Result{}, fmt.Errorf("fieldguard: HTTP %d: %s", resp.StatusCode, msg)
	}
}
