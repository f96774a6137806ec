// Package cli turns command-line arguments into an app configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/conductor/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("conductor", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Conductor - A dependency-aware pipeline orchestrator.

Usage:
  conductor [options] [CONFIG_PATH]

Arguments:
  CONFIG_PATH
    Path to a single .hcl pipeline file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the pipeline file or directory.")
	cFlag := flagSet.String("c", "", "Path to the pipeline file or directory (shorthand).")
	stateDirFlag := flagSet.String("state-dir", "state", "Directory for persisted run state.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Maximum concurrent components. 0 uses the configured value.")

	forceRunAllFlag := flagSet.Bool("force-run-all", false, "Run every component regardless of frequency or change detection.")
	skipFrequencyFlag := flagSet.Bool("skip-frequency-check", false, "Ignore frequency windows when selecting components.")
	skipDependencyFlag := flagSet.Bool("skip-dependency-check", false, "Do not prune components whose upstream failed.")
	skipChangeFlag := flagSet.Bool("skip-change-detection", false, "Do not consult change detection before running components.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Evaluate scheduling without executing tasks or touching state.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *configFlag != "" {
		path = *configFlag
	} else if *cFlag != "" {
		path = *cFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Config path determined.", "path", path)

	if path == "" {
		slog.Debug("No config path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPath:          path,
		StateDir:            *stateDirFlag,
		StatusPort:          *statusPortFlag,
		LogFormat:           logFormat,
		LogLevel:            logLevel,
		Workers:             *workersFlag,
		ForceRunAll:         *forceRunAllFlag,
		SkipFrequencyCheck:  *skipFrequencyFlag,
		SkipDependencyCheck: *skipDependencyFlag,
		SkipChangeDetection: *skipChangeFlag,
		DryRun:              *dryRunFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.")
	return config, false, nil
}
