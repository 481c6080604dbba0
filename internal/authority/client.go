// Package authority is the agent's HTTPS client for the remote
// certification Authority.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ppiankov/fieldguard/internal/boundary"
)

// DefaultTimeout bounds every Authority call.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is kept for messages.
const maxErrorBody = 512

var (
	// ErrCredentialRevoked is returned when the Authority rejects the
	// bearer credential (HTTP 401 or 403). Retrying cannot succeed.
	ErrCredentialRevoked = errors.New("authority: credential rejected")

	// ErrNoCredential is returned when no token is loaded. It is a local,
	// transient condition and never treated as revocation.
	ErrNoCredential = errors.New("authority: no credential loaded")

	// ErrUnencodable is returned when a request body cannot be encoded.
	// Resending the same body cannot succeed.
	ErrUnencodable = errors.New("authority: request body cannot be encoded")
)

// StatusError is a non-2xx response other than an authentication
// rejection. It is always transient from the agent's point of view.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("authority: %s: HTTP %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("authority: %s: HTTP %d: %s", e.Path, e.StatusCode, e.Body)
}

// Credentials supplies the current bearer token.
type Credentials interface {
	Token() string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Credentials Credentials
	// HTTPClient overrides the transport built from TLS. Tests pass
	// httptest clients here.
	HTTPClient        *http.Client
	TLS               TLSConfig
	Timeout           time.Duration
	CompressTelemetry bool
	UserAgent         string
}

// Client talks to the Authority. Safe for concurrent use.
type Client struct {
	baseURL   string
	creds     Credentials
	http      *http.Client
	timeout   time.Duration
	userAgent string
	encoder   *zstd.Encoder
}

// New validates cfg and builds a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("authority: base URL required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("authority: parse base URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("authority: unsupported scheme %q", u.Scheme)
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("authority: credentials required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient, err = BuildHTTPClient(u.Scheme, cfg.TLS)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		creds:     cfg.Credentials,
		http:      httpClient,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
	}
	if cfg.CompressTelemetry {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("authority: create zstd encoder: %w", err)
		}
		c.encoder = enc
	}
	return c, nil
}

// FetchBoundaries returns the full boundary definition set. A response
// without a boundaries field is malformed.
func (c *Client) FetchBoundaries(ctx context.Context) ([]boundary.Boundary, error) {
	var resp boundaryConfig
	if err := c.do(ctx, http.MethodGet, PathBoundaries, nil, false, &resp); err != nil {
		return nil, err
	}
	if resp.Boundaries == nil {
		return nil, fmt.Errorf("authority: %s: response missing boundaries", PathBoundaries)
	}
	return *resp.Boundaries, nil
}

// StartSession registers the session.
func (c *Client) StartSession(ctx context.Context, req SessionStart) error {
	return c.do(ctx, http.MethodPost, PathSessionStart, req, false, nil)
}

// SendHeartbeat reports liveness and counters.
func (c *Client) SendHeartbeat(ctx context.Context, hb Heartbeat) error {
	return c.do(ctx, http.MethodPost, PathHeartbeat, hb, false, nil)
}

// UploadTelemetry uploads one batch of records, zstd-compressed when
// configured.
func (c *Client) UploadTelemetry(ctx context.Context, batch TelemetryBatch) error {
	return c.do(ctx, http.MethodPost, PathTelemetry, batch, c.encoder != nil, nil)
}

// EndSession reports the final counters.
func (c *Client) EndSession(ctx context.Context, req SessionEnd) error {
	return c.do(ctx, http.MethodPost, PathSessionEnd, req, false, nil)
}

// Close releases idle connections and the compressor.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
	if c.encoder != nil {
		c.encoder.Close()
	}
}

func (c *Client) do(ctx context.Context, method, path string, in any, compress bool, out any) error {
	token := c.creds.Token()
	if token == "" {
		return ErrNoCredential
	}

	var body io.Reader
	var encoded bool
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrUnencodable, path, err)
		}
		if compress {
			data = c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
			encoded = true
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("authority: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if encoded {
		req.Header.Set("Content-Encoding", "zstd")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authority: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: HTTP %d: %w", path, resp.StatusCode, ErrCredentialRevoked)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("authority: decode %s: %w", path, err)
	}
	return nil
}
