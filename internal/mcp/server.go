// Package mcp exposes the agent's enforcement gate as MCP tools over
// stdio.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/fieldguard/internal/boundary"
	"github.com/ppiankov/fieldguard/internal/enforce"
	"github.com/ppiankov/fieldguard/internal/model"
	"github.com/ppiankov/fieldguard/internal/session"
)

// Agent is the part of session.Agent the tools call.
type Agent interface {
	Enforce(actionType string, params map[string]float64) (enforce.Decision, error)
	Check(params map[string]float64) ([]model.Check, []model.Violation)
	Boundaries() []boundary.Boundary
	Status() session.Status
}

// Server wraps the MCP SDK server around a running agent.
type Server struct {
	mcpServer *mcpsdk.Server
	agent     Agent
}

// New creates an MCP server with the boundary tools registered.
func New(agent Agent, version string) *Server {
	s := &Server{agent: agent}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "fieldguard",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves on stdio. Blocks until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all fieldguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "boundary_enforce",
		Description: "Evaluate an action's parameters against the certified operational boundaries and record the decision. Blocked actions return an error with the first violated boundary. The action must not proceed unless allowed is true.",
	}, s.handleEnforce)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "boundary_check",
		Description: "Check parameters against the boundaries without recording a decision (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "boundary_list",
		Description: "List the operational boundaries currently loaded from the Authority.",
	}, s.handleList)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "agent_status",
		Description: "Report the agent's session, counters, and connectivity state.",
	}, s.handleStatus)
}
