package systemd

import "fmt"

// UnitName is the systemd unit that supervises the agent.
const UnitName = "fieldguard.service"

// DefaultUnitDir is where Install writes the unit file.
const DefaultUnitDir = "/etc/systemd/system"

// AgentTemplate returns the unit file for the agent. Restart=on-failure
// restarts crashes only; the agent exits 0 after quarantine and after
// connectivity loss.
func AgentTemplate(binary, configPath string) string {
	return fmt.Sprintf(`[Unit]
Description=fieldguard boundary enforcement agent
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s run --config %s
Restart=on-failure
RestartSec=5
RuntimeDirectory=fieldguard
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths=/run/fieldguard

[Install]
WantedBy=multi-user.target
`, binary, configPath)
}
