package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usageText = `usage: opflow <command> [arguments]

commands:
  run <file> [-input JSON] [-input-file PATH] [-schedule CRON]
                      run a flow once, or on a cron schedule until interrupted
  validate <file>     check a flow definition
  diagram <file> [-format mermaid|ascii|png|svg] [-o PATH]
                      render a flow as a diagram
  history [-flow NAME] [-status S] [-limit N] [-prune AGE] [-json]
                      list or prune recorded runs
  actions [-json]     list registered actions
  mcp                 serve the flow tools over MCP on stdio
  version             print the version
`

// cli carries the outputs and configuration shared by all subcommands.
type cli struct {
	cfg    Config
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	c := &cli{cfg: cfg, stdout: stdout, stderr: stderr}

	switch args[0] {
	case "run":
		return c.runFlow(ctx, args[1:])
	case "validate":
		return c.validate(args[1:])
	case "diagram":
		return c.diagram(ctx, args[1:])
	case "history":
		return c.history(ctx, args[1:])
	case "actions":
		return c.actions(args[1:])
	case "mcp":
		return c.serveMCP(ctx, args[1:])
	case "version", "--version", "-v":
		printVersion(stdout)
		return 0
	case "help", "--help", "-h":
		fmt.Fprint(stdout, usageText)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usageText)
		return 2
	}
}
