package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ppiankov/fieldguard/internal/alert"
	"github.com/ppiankov/fieldguard/internal/authority"
	"github.com/ppiankov/fieldguard/internal/config"
	"github.com/ppiankov/fieldguard/internal/identity"
	"github.com/ppiankov/fieldguard/internal/session"
	"github.com/ppiankov/fieldguard/internal/systemd"
)

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to agent config YAML (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug|info|warn|error)")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newAuthority builds the Authority client and starts watching the
// credential file until ctx is cancelled.
func newAuthority(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*authority.Client, error) {
	creds, err := cfg.Credentials(logger)
	if err != nil {
		return nil, err
	}
	if cfg.Authority.Token == "" {
		go func() {
			if err := creds.Watch(ctx); err != nil {
				logger.Warn("credential hot-reload disabled", "path", cfg.Authority.TokenFile, "error", err)
			}
		}()
	}

	return authority.New(authority.Config{
		BaseURL:           cfg.Authority.URL,
		Credentials:       creds,
		TLS:               cfg.Authority.TLS,
		Timeout:           cfg.Authority.Timeout,
		CompressTelemetry: cfg.Telemetry.Compress,
		UserAgent:         "fieldguard/" + version,
	})
}

// newAgent wires a session.Agent from cfg. The returned agent has not
// been started.
func newAgent(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session.Agent, error) {
	id, err := identity.Resolve(cfg.Identity)
	if err != nil {
		return nil, err
	}

	client, err := newAuthority(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	supervisor := systemd.NewSystemctl(cfg.Supervision.Unit, logger)
	supervisor.UnitDir = cfg.Supervision.UnitDir
	if cfg.Supervision.Unit != "" {
		if warning := systemd.CheckUnitFileIntegrity(supervisor.UnitPath(), cfg.Supervision.HashPath); warning != "" {
			logger.Warn(warning)
		}
	}

	agent, err := session.New(session.Config{
		Identity:          id,
		Version:           version,
		Authority:         client,
		Supervisor:        supervisor,
		Unit:              cfg.Supervision.Unit,
		MarkerPath:        cfg.Supervision.MarkerPath,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		FlushInterval:     cfg.Telemetry.FlushInterval,
		MaxFailures:       cfg.Heartbeat.MaxFailures,
		Alerts:            alert.NewDispatcher(cfg.Alerts, logger),
		Logger:            logger,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	return agent, nil
}

// stop shuts the agent down and prints the terminal state.
func stop(agent *session.Agent, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), session.DefaultShutdownTimeout)
	defer cancel()
	if err := agent.Shutdown(ctx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}

	st := agent.Status()
	fmt.Fprintf(os.Stderr, "fieldguard %s: %d passed, %d blocked\n",
		st.State, st.Counters.PassCount, st.Counters.BlockCount)
	if err := agent.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "reason: %v\n", err)
	}
	return nil
}
