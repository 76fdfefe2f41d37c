package pipe

import (
	"context"

	"github.com/justapithecus/plug/failure"
	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/paths"
	"github.com/justapithecus/plug/run"
)

// Merge awaits every pipe and combines their files under the deepest common
// ancestor of their directories. It never stops at the first failure:
// failures are aggregated with failure.Collect. Terminal pipes contribute no
// files. The result is bound to the Run carried by ctx.
func Merge(ctx context.Context, pipes ...*Pipe) *Pipe {
	r, err := run.Require(ctx)
	if err != nil {
		return Rejected(ctx, nil, err)
	}

	return Go(ctx, r, func(context.Context) (*files.Files, error) {
		results := make([]*files.Files, 0, len(pipes))
		errs := make([]error, 0, len(pipes))
		for _, p := range pipes {
			f, err := p.Wait()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if f != nil {
				results = append(results, f)
			}
		}
		if err := failure.Collect(errs...); err != nil {
			return nil, err
		}

		directory := r.BuildDir
		if len(results) > 0 {
			dirs := make([]paths.AbsolutePath, 0, len(results))
			for _, f := range results {
				dirs = append(dirs, f.Directory())
			}
			directory = paths.CommonAncestor(dirs[0], dirs[1:]...)
		}

		builder := files.NewBuilder(directory)
		if err := builder.Merge(results...); err != nil {
			return nil, err
		}
		return builder.Build()
	})
}
