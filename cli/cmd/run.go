package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/plug/build"
	"github.com/justapithecus/plug/cli/tui"
	"github.com/justapithecus/plug/config"
	"github.com/justapithecus/plug/fork"
	"github.com/justapithecus/plug/log"
	"github.com/justapithecus/plug/notify"
	"github.com/justapithecus/plug/paths"
	"github.com/justapithecus/plug/run"
)

// Exit codes.
const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

// runningInterval is how often the running tasks are logged at debug level.
const runningInterval = time.Second

// RunCommand returns the run command, which runs the named tasks in order.
func RunCommand(b *build.Build) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run tasks in order, stopping at the first failure",
		ArgsUsage: "<task> [task...]",
		Flags:     RunFlags(),
		Action:    runAction(b),
	}
}

func runAction(b *build.Build) cli.ActionFunc {
	return func(c *cli.Context) error {
		names := c.Args().Slice()
		if len(names) == 0 {
			return cli.Exit("run requires at least one task name", exitUsage)
		}

		cfg, cfgDir, err := loadConfig(c.String("config"))
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		opts, err := logOptions(c, cfg)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}

		logger := log.NewWithWriter(opts, errWriter(c))
		defer func() { _ = logger.Sync() }()
		b.SetLogger(logger)

		if cfg.BuildFile != "" {
			file, err := paths.Abs(resolvePath(cfgDir, cfg.BuildFile))
			if err != nil {
				return cli.Exit(fmt.Sprintf("build_file: %v", err), exitUsage)
			}
			b.SetFile(file)
		}
		fork.Configure(fork.Settings{
			Timeout:     cfg.Fork.Timeout.Duration,
			CoverageDir: cfg.Fork.CoverageDir,
		})

		if unknown := unknownTasks(b, names); len(unknown) > 0 {
			return cli.Exit(fmt.Sprintf("unknown task(s): %s (see the tasks command)",
				strings.Join(unknown, ", ")), exitUsage)
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		notifiers := buildNotifiers(ctx, logger, cfg, cfgDir)
		defer func() { _ = notifiers.Close() }()

		work := func(ctx context.Context) error {
			return b.Run(ctx, names...)
		}

		start := time.Now()
		if c.Bool("tui") {
			err = tui.RunProgress(ctx, c.App.Writer, strings.Join(names, " "), tui.Source{
				Running:  run.RunningTaskNames,
				Snapshot: b.Metrics().Snapshot,
			}, work)
		} else {
			err = watchRunning(ctx, logger, runningInterval, work)
		}

		snap := b.Metrics().Snapshot()
		fields := snap.Fields()
		fields["duration_ms"] = time.Since(start).Milliseconds()
		logger.Debug("build finished", fields)

		publish(ctx, logger, notifiers, notify.NewEvent(snap, names, notify.OutcomeOf(ctx, err), start))

		if err != nil {
			// build.Run has already logged the failure.
			return cli.Exit("", exitFailure)
		}
		return nil
	}
}

// watchRunning runs work and logs the running tasks every interval until
// it returns.
func watchRunning(ctx context.Context, logger *log.Logger, interval time.Duration, work func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- work(ctx) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if logger.Enabled(log.LevelDebug) {
				logger.Debug("running", map[string]any{"tasks": run.RunningTaskNames()})
			}
		}
	}
}

// loadConfig loads an explicitly named config file, or plug.yaml from the
// working directory when present. It also returns the directory relative
// paths in the file are resolved against.
func loadConfig(path string) (*config.Config, string, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		path = config.DefaultFile
		cfg, err = config.LoadOptional(path)
	}
	if err != nil {
		return nil, "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, filepath.Dir(abs), nil
}

// logOptions layers defaults, config values and flags, in that order.
func logOptions(c *cli.Context, cfg *config.Config) (log.Options, error) {
	opts, err := cfg.ApplyLog(log.DefaultOptions())
	if err != nil {
		return opts, err
	}
	if s := c.String("log-level"); s != "" {
		level, err := log.ParseLevel(s)
		if err != nil {
			return opts, fmt.Errorf("--log-level: %w", err)
		}
		opts.Level = level
	}
	if s := c.String("log-format"); s != "" {
		format, err := log.ParseFormat(s)
		if err != nil {
			return opts, fmt.Errorf("--log-format: %w", err)
		}
		opts.Format = format
	}
	if c.Bool("no-color") {
		opts.Color = false
	}
	return opts, nil
}

func unknownTasks(b *build.Build, names []string) []string {
	defined := make(map[string]bool)
	for _, name := range b.Names() {
		defined[name] = true
	}
	var unknown []string
	for _, name := range names {
		if !defined[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

func resolvePath(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func errWriter(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}
