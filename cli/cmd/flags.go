// Package cmd provides the commands of a build program's command line.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// Flags of the run command.
var (
	// ConfigFlag names the project configuration file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to plug.yaml (default: ./plug.yaml when present)",
		EnvVars: []string{"PLUG_CONFIG"},
	}

	// LogLevelFlag overrides the configured log level.
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Aliases: []string{"l"},
		Usage:   "Log level: trace, debug, info, notice, warn, error",
		EnvVars: []string{"PLUG_LOG_LEVEL"},
	}

	// LogFormatFlag overrides the configured log format.
	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format: console or json",
	}

	// TUIFlag shows the interactive progress view while tasks run.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Show the interactive progress view",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// RunFlags returns the flags of the run command.
func RunFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		LogLevelFlag,
		LogFormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}
