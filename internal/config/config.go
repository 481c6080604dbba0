// Package config loads the agent configuration file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/fieldguard/internal/alert"
	"github.com/ppiankov/fieldguard/internal/authority"
	"github.com/ppiankov/fieldguard/internal/heartbeat"
	"github.com/ppiankov/fieldguard/internal/marker"
	"github.com/ppiankov/fieldguard/internal/systemd"
	"github.com/ppiankov/fieldguard/internal/telemetry"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "/etc/fieldguard/agent.yaml"

// Environment overrides, applied after the file.
const (
	EnvAuthorityURL = "FIELDGUARD_AUTHORITY_URL"
	EnvToken        = "FIELDGUARD_TOKEN"
	EnvIdentity     = "FIELDGUARD_IDENTITY"
)

// Config is the agent configuration.
type Config struct {
	// Identity names this agent to the Authority. Empty derives one from
	// the host name.
	Identity    string            `yaml:"identity"`
	Authority   AuthorityConfig   `yaml:"authority"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Supervision SupervisionConfig `yaml:"supervision"`
	Local       LocalConfig       `yaml:"local"`
	Log         LogConfig         `yaml:"log"`
	// Alerts are operator webhooks for agent events.
	Alerts []alert.WebhookConfig `yaml:"alerts"`
}

// AuthorityConfig locates and authenticates to the Authority.
type AuthorityConfig struct {
	URL       string              `yaml:"url"`
	Token     string              `yaml:"token,omitempty"`
	TokenFile string              `yaml:"token_file"`
	Timeout   time.Duration       `yaml:"timeout"`
	TLS       authority.TLSConfig `yaml:"tls"`
}

// HeartbeatConfig tunes the heartbeat loop.
type HeartbeatConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxFailures int           `yaml:"max_failures"`
}

// TelemetryConfig tunes the flush loop.
type TelemetryConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	Compress      bool          `yaml:"compress"`
}

// SupervisionConfig names the OS unit and the marker file.
type SupervisionConfig struct {
	Unit       string `yaml:"unit"`
	UnitDir    string `yaml:"unit_dir"`
	MarkerPath string `yaml:"marker_path"`
	HashPath   string `yaml:"unit_hash_path"`
}

// LocalConfig controls the loopback enforcement API. Empty Listen
// disables it.
type LocalConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Authority: AuthorityConfig{
			TokenFile: "/etc/fieldguard/token",
			Timeout:   authority.DefaultTimeout,
		},
		Heartbeat: HeartbeatConfig{
			Interval:    heartbeat.DefaultInterval,
			MaxFailures: heartbeat.DefaultMaxFailures,
		},
		Telemetry: TelemetryConfig{
			FlushInterval: telemetry.DefaultInterval,
			Compress:      true,
		},
		Supervision: SupervisionConfig{
			Unit:       systemd.UnitName,
			UnitDir:    systemd.DefaultUnitDir,
			MarkerPath: marker.DefaultPath,
			HashPath:   systemd.DefaultUnitHashPath,
		},
		Local: LocalConfig{
			Listen: "127.0.0.1:7878",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path uses DefaultPath; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAuthorityURL); v != "" {
		c.Authority.URL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Authority.Token = v
	}
	if v := os.Getenv(EnvIdentity); v != "" {
		c.Identity = v
	}
}

// Validate checks the configuration for a running agent.
func (c *Config) Validate() error {
	if c.Authority.URL == "" {
		return fmt.Errorf("config: authority.url is required (or set %s)", EnvAuthorityURL)
	}
	u, err := url.Parse(c.Authority.URL)
	if err != nil {
		return fmt.Errorf("config: authority.url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("config: authority.url must be https, got %q", u.Scheme)
	}
	if c.Authority.Token == "" && c.Authority.TokenFile == "" {
		return fmt.Errorf("config: authority.token_file is required (or set %s)", EnvToken)
	}
	if c.Authority.Timeout <= 0 {
		return fmt.Errorf("config: authority.timeout must be positive")
	}
	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("config: heartbeat.interval must be positive")
	}
	if c.Heartbeat.MaxFailures <= 0 {
		return fmt.Errorf("config: heartbeat.max_failures must be positive")
	}
	if c.Telemetry.FlushInterval <= 0 {
		return fmt.Errorf("config: telemetry.flush_interval must be positive")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	for i, a := range c.Alerts {
		if a.URL == "" {
			return fmt.Errorf("config: alerts[%d].url is required", i)
		}
		if !alert.ValidFormat(a.Format) {
			return fmt.Errorf("config: alerts[%d].format %q is not generic, slack, or pagerduty", i, a.Format)
		}
		if len(a.Events) == 0 {
			return fmt.Errorf("config: alerts[%d].events is empty", i)
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Credentials returns the token source: the inline token if set,
// otherwise the token file.
func (c *Config) Credentials(logger *slog.Logger) (*authority.TokenSource, error) {
	if c.Authority.Token != "" {
		return authority.StaticToken(c.Authority.Token), nil
	}
	return authority.NewFileTokenSource(c.Authority.TokenFile, logger)
}

// NewLogger builds the slog logger described by c.Log.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}

// DefaultConfigYAML returns a commented YAML string for fieldguard init.
func DefaultConfigYAML() string {
	return `# fieldguard agent configuration
# Generated by: fieldguard init
#
# Environment overrides (applied after this file):
#   FIELDGUARD_AUTHORITY_URL, FIELDGUARD_TOKEN, FIELDGUARD_IDENTITY

# Name reported to the Authority. Empty uses fieldguard@<hostname>.
identity: ""

authority:
  # Base URL of the certification Authority.
  url: ""
  # Bearer credential file. Reloaded when rotated.
  token_file: /etc/fieldguard/token
  # Bound on every Authority call. A timeout counts as a failure.
  timeout: 10s
  tls:
    ca_file: ""
    cert_file: ""
    key_file: ""

heartbeat:
  interval: 30s
  # Consecutive failures before the agent assumes connectivity is lost.
  max_failures: 10

telemetry:
  flush_interval: 10s
  # zstd-compress telemetry batches.
  compress: true

supervision:
  unit: fieldguard.service
  unit_dir: /etc/systemd/system
  marker_path: /run/fieldguard/agent.json
  unit_hash_path: /etc/fieldguard/unit-file.blake3

local:
  # Loopback enforcement API. Empty disables it.
  listen: 127.0.0.1:7878

log:
  # debug | info | warn | error
  level: info
  # text | json
  format: text

# Operator webhooks. Events: block, quarantined, connectivity_lost, sync_failed.
# alerts:
#   - url: https://hooks.slack.com/services/...
#     format: slack
#     events: [quarantined, connectivity_lost]
alerts: []
`
}
