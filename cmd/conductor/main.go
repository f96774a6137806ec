package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/conductor/internal/app"
	"github.com/vk/conductor/internal/cli"
	"github.com/vk/conductor/internal/report"
	"github.com/vk/conductor/internal/task"
)

// main is the entrypoint for the conductor application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	os.Exit(run(os.Stdout, os.Stderr, os.Args[1:], task.NewRegistry()))
}

// run encapsulates the main application logic for easier testing. The
// summary goes to outW; logs and error messages go to errW. The returned
// code is the process exit code: 0 for a successful run, 1 when a required
// component failed or timed out, 2 for usage and configuration errors.
func run(outW, errW io.Writer, args []string, registry *task.Registry) int {
	appConfig, shouldExit, err := cli.Parse(args, errW)
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(errW, exitErr.Message)
			return exitErr.Code
		}
		fmt.Fprintln(errW, err)
		return 2
	}
	if shouldExit {
		return 0
	}

	conductorApp, err := app.NewApp(outW, errW, appConfig, registry)
	if err != nil {
		// Startup failures are configuration errors: a bad path, invalid
		// HCL, or an inconsistent model.
		fmt.Fprintln(errW, err)
		return 2
	}

	runReport, err := conductorApp.Run(context.Background())
	if err != nil {
		fmt.Fprintln(errW, err)
		return 1
	}
	return report.ExitCode(runReport)
}
