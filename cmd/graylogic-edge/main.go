// Gray Logic Edge - supervisor for an externally managed server engine
//
// graylogic-edge renders the engine's configuration from a template, has the
// engine check it, starts the self-daemonizing engine and tracks it until it
// exits. Lifecycle events are optionally published over MQTT and recorded in
// InfluxDB.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides the default configuration file path.
const configEnv = "GRAYLOGIC_EDGE_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the command line in args, separated from main for testability.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	root := newRootCmd(logging.Default())
	root.SetArgs(args)
	root.SetOut(stdout)
	return root.ExecuteContext(ctx)
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_EDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
