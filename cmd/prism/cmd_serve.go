package main

import (
	"context"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"prism/internal/logging"
	mcpserver "prism/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio for agent integration",
	Long: `Starts an MCP server over stdin/stdout exposing the catalog operations
(scan, queue, artifacts, deps, verdicts, status) as tools.

The server monitors for parent process death: when the agent host
disconnects, it self-terminates to prevent zombie processes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	st, eng, err := openEngine()
	if err != nil {
		return err
	}
	defer st.Close()

	srv := mcpserver.NewServer(st, eng)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting prism MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
