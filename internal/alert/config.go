// Package alert posts agent events to operator webhooks.
package alert

// Event kinds a webhook can subscribe to.
const (
	EventBlock            = "block"
	EventQuarantined      = "quarantined"
	EventConnectivityLost = "connectivity_lost"
	EventSyncFailed       = "sync_failed"
)

// WebhookConfig defines a webhook alert destination.
type WebhookConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["block", "quarantined", "connectivity_lost", "sync_failed"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string `json:"timestamp"`
	Kind       string `json:"kind"`
	SessionID  string `json:"session_id"`
	Identity   string `json:"identity"`
	ActionType string `json:"action_type,omitempty"`
	Boundary   string `json:"boundary,omitempty"`
	Reason     string `json:"reason"`
}
