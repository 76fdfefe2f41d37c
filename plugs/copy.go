package plugs

import (
	"context"
	"fmt"
	"os"

	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/pipe"
	"github.com/justapithecus/plug/run"
)

// Copy copies every input file into Dest, keeping relative paths. Dest is
// resolved with run.Run.Resolve, so "@dist" lands next to the build file.
type Copy struct {
	Dest string
}

func newCopy(args ...any) (pipe.Plug, error) {
	if err := checkArity(args, 1); err != nil {
		return nil, err
	}
	dest, err := stringArg(args, 0, "destination")
	if err != nil {
		return nil, err
	}
	return &Copy{Dest: dest}, nil
}

// Pipe implements pipe.Plug.
func (c *Copy) Pipe(ctx context.Context, in *files.Files, r *run.Run) (*files.Files, error) {
	dest, err := r.Resolve(c.Dest)
	if err != nil {
		return nil, err
	}

	b := files.NewBuilder(dest)
	for rel, src := range in.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(src.String())
		if err != nil {
			return nil, fmt.Errorf("copy %s: %w", rel, err)
		}
		if err := b.Write(rel, data); err != nil {
			return nil, fmt.Errorf("copy %s: %w", rel, err)
		}
	}

	r.Log.Debug("copied files", map[string]any{
		"count": in.Len(),
		"dest":  dest.String(),
	})
	return b.Build()
}
