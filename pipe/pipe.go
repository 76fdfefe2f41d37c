package pipe

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/metrics"
	"github.com/justapithecus/plug/run"
)

// ErrTerminal is wrapped by ExtendError.
var ErrTerminal = errors.New("pipe cannot be further extended")

// ExtendError reports an attempt to continue a chain past a terminal stage.
type ExtendError struct{}

func (e *ExtendError) Error() string { return ErrTerminal.Error() }

func (e *ExtendError) Unwrap() error { return ErrTerminal }

// Pipe is a deferred *files.Files together with the Run that produces it.
// A Pipe settles exactly once; Extend never mutates the receiver.
type Pipe struct {
	ctx  context.Context
	run  *run.Run
	done chan struct{}

	files *files.Files
	err   error
}

func newPipe(ctx context.Context, r *run.Run) *Pipe {
	return &Pipe{ctx: ctx, run: r, done: make(chan struct{})}
}

func (p *Pipe) settle(f *files.Files, err error) {
	p.files, p.err = f, err
	close(p.done)
}

// spawn starts fn in its own goroutine and returns the Pipe it settles.
// A panic in fn fails the Pipe instead of the process.
func spawn(ctx context.Context, r *run.Run, fn func(ctx context.Context) (*files.Files, error)) *Pipe {
	p := newPipe(ctx, r)
	go func() {
		var (
			f   *files.Files
			err error
		)
		defer func() {
			if rec := recover(); rec != nil {
				f, err = nil, fmt.Errorf("plug panicked: %v", rec)
			}
			p.settle(f, err)
		}()
		f, err = fn(ctx)
	}()
	return p
}

// Resolved returns a settled Pipe holding f. A nil f makes the Pipe terminal.
func Resolved(ctx context.Context, r *run.Run, f *files.Files) *Pipe {
	p := newPipe(run.With(ctx, r), r)
	p.settle(f, nil)
	return p
}

// Rejected returns a settled, failed Pipe. r may be nil.
func Rejected(ctx context.Context, r *run.Run, err error) *Pipe {
	if r != nil {
		ctx = run.With(ctx, r)
	}
	p := newPipe(ctx, r)
	p.settle(nil, err)
	return p
}

// Go returns a Pipe settled by fn, which runs in its own goroutine with r
// attached to its context.
func Go(ctx context.Context, r *run.Run, fn func(ctx context.Context) (*files.Files, error)) *Pipe {
	ctx = run.With(ctx, r)
	return spawn(ctx, r, fn)
}

// From starts a chain from f using the Run carried by ctx. Outside a task
// the Pipe fails with a *run.ContextError.
func From(ctx context.Context, f *files.Files) *Pipe {
	r, err := run.Require(ctx)
	if err != nil {
		return Rejected(ctx, nil, err)
	}
	return Resolved(ctx, r, f)
}

// Run returns the Run the Pipe is bound to. It is nil only for a Pipe
// created outside any task.
func (p *Pipe) Run() *run.Run { return p.run }

func (p *Pipe) metrics() *metrics.Collector {
	if p.run == nil {
		return nil
	}
	return p.run.Metrics
}

// Done is closed once the Pipe settles.
func (p *Pipe) Done() <-chan struct{} { return p.done }

// Wait blocks until the Pipe settles and returns its outcome.
// A nil *files.Files with a nil error means the chain ended in a terminal
// stage.
func (p *Pipe) Wait() (*files.Files, error) {
	<-p.done
	return p.files, p.err
}

// Extend schedules plug on this Pipe's result and returns the new Pipe.
//
// If this Pipe fails, plug is never invoked and the new Pipe fails with the
// same error. If this Pipe ended in a terminal stage, the new Pipe fails
// with *ExtendError.
func (p *Pipe) Extend(plug Plug) *Pipe {
	return spawn(p.ctx, p.run, func(ctx context.Context) (*files.Files, error) {
		in, err := p.Wait()
		if err != nil {
			p.metrics().IncStageSkipped()
			return nil, err
		}
		if in == nil {
			p.metrics().IncStageSkipped()
			return nil, &ExtendError{}
		}

		p.metrics().IncStageRun()
		return plug.Pipe(ctx, in, p.run)
	})
}

// Then calls onResolved or onRejected after the Pipe settles, in a separate
// goroutine. Either callback may be nil.
func (p *Pipe) Then(onResolved func(*files.Files), onRejected func(error)) {
	go func() {
		f, err := p.Wait()
		switch {
		case err != nil && onRejected != nil:
			onRejected(err)
		case err == nil && onResolved != nil:
			onResolved(f)
		}
	}()
}

// Finally calls fn after the Pipe settles, whatever the outcome.
func (p *Pipe) Finally(fn func()) {
	go func() {
		<-p.done
		fn()
	}()
}
