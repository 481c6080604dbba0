package fieldguard

import (
	"net/http"
	"time"
)

// DefaultAddress is the agent's default loopback API.
const DefaultAddress = "http://127.0.0.1:7878"

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	address    string
	httpClient *http.Client
	timeout    time.Duration
}

// WithAddress sets the agent API base URL.
func WithAddress(addr string) Option {
	return func(c *clientConfig) { c.address = addr }
}

// WithHTTPClient replaces the HTTP client used to reach the agent.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithTimeout bounds each call to the agent.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WrapOption configures a single Wrap call.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	actionType string
}

// WrapWithType fixes the action type for every call through the wrapper,
// overriding Action.Type.
func WrapWithType(actionType string) WrapOption {
	return func(w *wrapConfig) { w.actionType = actionType }
}
