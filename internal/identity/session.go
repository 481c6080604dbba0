// Package identity names the agent and its process-lifetime session.
package identity

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is one agent process lifetime bound to one identity.
type Session struct {
	Identity  string    `json:"identity"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// NewSession creates a session for identity with a generated UUID.
func NewSession(identity string, now time.Time) *Session {
	return &Session{
		Identity:  identity,
		SessionID: uuid.NewString(),
		StartedAt: now.UTC(),
	}
}

// Resolve returns the configured identity, or one derived from the host
// name when none is configured.
func Resolve(configured string) (string, error) {
	if id := strings.TrimSpace(configured); id != "" {
		return id, nil
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "", fmt.Errorf("identity: none configured and hostname unavailable: %v", err)
	}
	return "fieldguard@" + host, nil
}
