package cmd

import (
	"context"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/plug/cli/render"
	"github.com/justapithecus/plug/config"
	"github.com/justapithecus/plug/history"
)

// defaultHistoryLimit is how many builds the history command shows.
const defaultHistoryLimit = 20

// HistoryCommand returns the history command, which lists recorded builds.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent builds from the configured history dataset",
		Flags: append(ReadOnlyFlags(),
			ConfigFlag,
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of builds to show (0 for all)",
				Value:   defaultHistoryLimit,
			},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	cfg, cfgDir, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if cfg.History == nil {
		return cli.Exit("history is not configured (add a history section to plug.yaml)", exitUsage)
	}

	ds, err := openHistory(c.Context, cfg.History, cfgDir)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	entries, err := history.Recent(c.Context, ds, c.Int("limit"))
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return r.Render(entries)
}

// openHistory opens the configured dataset. A relative fs path is resolved
// against the config file's directory.
func openHistory(ctx context.Context, cfg *config.HistoryConfig, cfgDir string) (lode.Dataset, error) {
	if cfg.Backend == config.HistoryBackendS3 {
		bucket, prefix := history.ParseS3Path(cfg.Path)
		return history.OpenS3(ctx, cfg.Dataset, history.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
	}
	return history.OpenFS(cfg.Dataset, resolvePath(cfgDir, cfg.Path))
}
