// Package pipe composes plugs into pipelines.
//
// A Pipe is a deferred *files.Files bound to the Run that produced it.
// Extend schedules a Plug on the resolved value and returns a new Pipe;
// stages of one chain run strictly in order, and a failed stage skips every
// later one.
package pipe

import (
	"context"

	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/run"
)

// Plug is a single pipeline stage. A plug returning (nil, nil) is terminal:
// the chain ends there and cannot be extended.
type Plug interface {
	Pipe(ctx context.Context, in *files.Files, r *run.Run) (*files.Files, error)
}

// PlugFunc adapts a function to the Plug interface.
type PlugFunc func(ctx context.Context, in *files.Files, r *run.Run) (*files.Files, error)

// Pipe calls f.
func (f PlugFunc) Pipe(ctx context.Context, in *files.Files, r *run.Run) (*files.Files, error) {
	return f(ctx, in, r)
}

// Factory constructs a Plug from loosely typed arguments. Factories accept
// every call signature their plug supports and validate arguments
// themselves.
type Factory func(args ...any) (Plug, error)
