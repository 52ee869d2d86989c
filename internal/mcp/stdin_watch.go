package mcp

import (
	"context"
	"os"
	"time"

	"prism/internal/logging"
)

// WatchParent monitors for parent process death in a background goroutine.
// When the parent PID changes (the agent host disconnected or restarted),
// it calls cancelFn to trigger graceful shutdown, preventing zombie MCP
// server processes from accumulating.
//
// This must NOT read from stdin — the MCP SDK's StdioTransport owns stdin
// exclusively; stealing bytes here would corrupt the JSON-RPC stream.
//
// The goroutine exits when ctx is canceled or parent death is detected.
func WatchParent(ctx context.Context, cancelFn context.CancelFunc) {
	ppid := os.Getppid()
	log := logging.New("mcp")
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
				if os.Getppid() != ppid {
					log.Warn("parent process died, shutting down", "was_pid", ppid)
					cancelFn()
					return
				}
			}
		}
	}()
}
