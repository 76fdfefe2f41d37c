package plugs

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/log"
	"github.com/justapithecus/plug/pipe"
	"github.com/justapithecus/plug/run"
)

// Exists fails the pipe when any input file is missing on disk. Missing
// files are printed as one report, so the failure is already reported.
type Exists struct{}

func newExists(args ...any) (pipe.Plug, error) {
	if err := checkArity(args, 0); err != nil {
		return nil, err
	}
	return &Exists{}, nil
}

// Pipe implements pipe.Plug.
func (e *Exists) Pipe(_ context.Context, in *files.Files, r *run.Run) (*files.Files, error) {
	report := r.Log.Report("missing files")
	for rel, abs := range in.All() {
		info, err := os.Stat(abs.String())
		switch {
		case errors.Is(err, fs.ErrNotExist):
			report.Add(log.Entry{Level: log.LevelError, Message: "file does not exist", File: rel})
		case err != nil:
			report.Add(log.Entry{Level: log.LevelError, Message: err.Error(), File: rel})
		case info.IsDir():
			report.Add(log.Entry{Level: log.LevelWarn, Message: "is a directory", File: rel})
		}
	}
	if err := report.Done(); err != nil {
		return nil, err
	}
	return in, nil
}
