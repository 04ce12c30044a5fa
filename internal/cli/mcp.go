package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	tgmcp "github.com/ppiankov/testguard/internal/mcp"
	"github.com/ppiankov/testguard/internal/model"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs testguard as an MCP (Model Context Protocol) server over stdio.\n" +
		"One enforcement session is installed for the life of the server.\n" +
		"Tools: check, write_file, setenv, exec, http, audit.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := tgmcp.New(tgmcp.Config{PolicyPath: policyPath, Logger: slog.Default()})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "testguard MCP server running on stdio (session %s)\n", srv.Session().SessionID())
	err = srv.Run(ctx)

	log := srv.Session().Log()
	fmt.Fprintf(os.Stderr, "\nSession summary: %d events, %d blocked\n", log.Len(), log.Count(model.Block))
	return err
}
