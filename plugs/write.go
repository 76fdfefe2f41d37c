package plugs

import (
	"context"

	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/pipe"
	"github.com/justapithecus/plug/run"
)

// Write writes Content to Path under the input directory and adds it to
// the input files.
type Write struct {
	Path    string
	Content string
}

func newWrite(args ...any) (pipe.Plug, error) {
	if err := checkArity(args, 2); err != nil {
		return nil, err
	}
	path, err := stringArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	content, err := optionalStringArg(args, 1, "content", "")
	if err != nil {
		return nil, err
	}
	return &Write{Path: path, Content: content}, nil
}

// Pipe implements pipe.Plug.
func (w *Write) Pipe(_ context.Context, in *files.Files, _ *run.Run) (*files.Files, error) {
	b := files.NewBuilder(in.Directory())
	if err := b.Merge(in); err != nil {
		return nil, err
	}
	if err := b.Write(w.Path, []byte(w.Content)); err != nil {
		return nil, err
	}
	return b.Build()
}
