package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/plug/build"
	"github.com/justapithecus/plug/fork"
	"github.com/justapithecus/plug/types"

	// Built-in stages are available to every build program.
	_ "github.com/justapithecus/plug/plugs"
)

// App returns the command line of a build program defining the tasks of b.
//
// Exit codes:
//   - 0: every requested task succeeded
//   - 1: a task failed
//   - 2: usage error (bad flag, unknown task, invalid config)
func App(b *build.Build, commit string) *cli.App {
	return &cli.App{
		Name:           "plug",
		Usage:          "Run the tasks of this build program",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler(os.Stderr, os.Exit),
		Commands: []*cli.Command{
			RunCommand(b),
			TasksCommand(b),
			StagesCommand(),
			HistoryCommand(),
			VersionCommand(commit),
		},
	}
}

// Main serves a fork when the process is a worker and otherwise runs the
// command line. It does not return.
func Main(b *build.Build, commit string) {
	if code, ok := fork.RunWorker(); ok {
		os.Exit(code)
	}
	if err := App(b, commit).Run(os.Args); err != nil {
		// ExitErrHandler already exited for action errors; what is left
		// comes from argument parsing.
		os.Exit(exitUsage)
	}
	os.Exit(exitSuccess)
}

// exitErrHandler preserves exit codes from cli.Exit and prints a message
// only when there is one.
func exitErrHandler(stderr io.Writer, exit func(int)) cli.ExitErrHandlerFunc {
	return func(_ *cli.Context, err error) {
		if err == nil {
			return
		}

		var exitCoder cli.ExitCoder
		if errors.As(err, &exitCoder) {
			code := exitCoder.ExitCode()
			msg := exitCoder.Error()

			// cli.Exit("", N).Error() is empty, but wrapped coders may
			// report "exit status N".
			if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
				_, _ = fmt.Fprintln(stderr, msg)
			}
			exit(code)
			return
		}

		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		exit(exitUsage)
	}
}
