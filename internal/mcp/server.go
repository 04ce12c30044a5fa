package mcp

import (
	"context"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/testguard/internal/cmdguard"
	"github.com/ppiankov/testguard/internal/enforce"
	"github.com/ppiankov/testguard/internal/policy"
)

// Version is reported in the MCP implementation info.
const Version = "0.1.0"

// Config holds MCP server configuration.
type Config struct {
	PolicyPath string
	// Registry, when set, is used instead of loading PolicyPath.
	Registry  *policy.Registry
	SessionID string
	Logger    *slog.Logger
}

// Server exposes one enforcement session as MCP tools. Every tool call
// that touches the host goes through the session's gateway.
type Server struct {
	mcpServer *mcpsdk.Server
	session   *enforce.Context
	gw        *enforce.Gateway
	guard     *cmdguard.Guard
}

// New loads the policy and installs an enforcement session for the
// lifetime of the server. The policy must have test mode enabled.
func New(cfg Config) (*Server, error) {
	reg := cfg.Registry
	if reg == nil {
		var err error
		reg, err = policy.Load(cfg.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy: %w", err)
		}
	}

	var opts []enforce.Option
	if cfg.Logger != nil {
		opts = append(opts, enforce.WithLogger(cfg.Logger))
	}
	if cfg.SessionID != "" {
		opts = append(opts, enforce.WithSessionID(cfg.SessionID))
	}
	session, err := enforce.Open(reg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit sinks: %w", err)
	}
	if err := session.Install(); err != nil {
		_ = session.Close()
		return nil, err
	}

	gw := session.Gateway()
	s := &Server{
		session: session,
		gw:      gw,
		guard:   cmdguard.New(gw, cmdguard.Config{Redact: true}),
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "testguard",
			Version: Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close uninstalls the session and closes its audit sinks.
func (s *Server) Close() error {
	return s.session.Close()
}

// Session returns the enforcement context backing the server.
func (s *Server) Session() *enforce.Context { return s.session }

// registerTools adds all testguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "testguard_check",
		Description: "Evaluate an operation (category and target) against the sandbox policy without performing or auditing it.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "testguard_write_file",
		Description: "Write a file through the filesystem-write guard. Writes outside allowed roots or to protected files are refused.",
	}, s.handleWriteFile)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "testguard_setenv",
		Description: "Set or unset an environment variable through the env-mutation guard. Only whitelisted variables change.",
	}, s.handleSetenv)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "testguard_exec",
		Description: "Run a command through the process-spawn guard. Spawning is refused while the session is active.",
	}, s.handleExec)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "testguard_http",
		Description: "Make an HTTP request through the network guard. Sockets are refused while the session is active.",
	}, s.handleHTTP)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "testguard_audit",
		Description: "Return the session audit trail with decision counts, optionally filtered.",
	}, s.handleAudit)
}
