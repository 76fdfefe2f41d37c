package plugs

import (
	"context"

	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/pipe"
	"github.com/justapithecus/plug/run"
)

// Debug logs the files passing through and returns them unchanged.
type Debug struct {
	Title string
}

func newDebug(args ...any) (pipe.Plug, error) {
	if err := checkArity(args, 1); err != nil {
		return nil, err
	}
	title, err := optionalStringArg(args, 0, "title", "files")
	if err != nil {
		return nil, err
	}
	return &Debug{Title: title}, nil
}

// Pipe implements pipe.Plug.
func (d *Debug) Pipe(_ context.Context, in *files.Files, r *run.Run) (*files.Files, error) {
	r.Log.Info(d.Title, map[string]any{
		"directory": in.Directory().String(),
		"count":     in.Len(),
	})
	for _, rel := range in.Paths() {
		r.Log.Debug(rel, nil)
	}
	return in, nil
}
