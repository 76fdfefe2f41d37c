// Package run defines Run, the execution state of a single task invocation,
// and how it travels with a context.Context.
//
// Code inside a task body recovers its Run with Current or Require on the
// ctx it was handed. Because the Run lives in the context rather than in
// goroutine-local state, it follows the ctx across goroutines and into
// plugs without every helper taking an extra parameter.
package run

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/justapithecus/plug/log"
	"github.com/justapithecus/plug/metrics"
	"github.com/justapithecus/plug/paths"
)

// BuildDirMarker prefixes paths that resolve against the build directory
// rather than the working directory.
const BuildDirMarker = "@"

// ErrNoRun is wrapped by ContextError.
var ErrNoRun = errors.New("no task is running")

// ContextError reports a context-dependent call made outside any task.
type ContextError struct {
	Op string
}

func (e *ContextError) Error() string {
	return e.Op + ": " + ErrNoRun.Error()
}

func (e *ContextError) Unwrap() error { return ErrNoRun }

// Run is the execution state of one task invocation.
// A Run is never mutated after creation; child invocations get their own.
type Run struct {
	// ID uniquely identifies this invocation. Forked workers reuse it.
	ID string
	// BuildFile is the file declaring the tasks.
	BuildFile paths.AbsolutePath
	// BuildDir is BuildFile's directory.
	BuildDir paths.AbsolutePath
	// TaskName is the name of the running task.
	TaskName string
	// Log is annotated with TaskName and ID.
	Log *log.Logger
	// Metrics may be nil.
	Metrics *metrics.Collector

	base *log.Logger
}

// New creates a Run with a fresh ID.
func New(buildFile paths.AbsolutePath, taskName string, logger *log.Logger) *Run {
	return NewWithID(uuid.NewString(), buildFile, taskName, logger)
}

// NewWithID creates a Run with a known ID, as a forked worker does.
func NewWithID(id string, buildFile paths.AbsolutePath, taskName string, logger *log.Logger) *Run {
	if logger == nil {
		logger = log.Nop()
	}
	return &Run{
		ID:        id,
		BuildFile: buildFile,
		BuildDir:  buildFile.Dir(),
		TaskName:  taskName,
		Log:       logger.ForTask(taskName, id),
		base:      logger,
	}
}

// Child derives the Run of a nested task call. It shares the build file,
// the unannotated logger and the metrics collector.
func (r *Run) Child(taskName string) *Run {
	child := New(r.BuildFile, taskName, r.base)
	child.Metrics = r.Metrics
	return child
}

// Resolve resolves segments to an absolute path. A first segment starting
// with "@" is resolved against BuildDir, anything else against the working
// directory. Absolute segments short-circuit as in paths.Resolve.
func (r *Run) Resolve(segments ...string) (paths.AbsolutePath, error) {
	if len(segments) > 0 && strings.HasPrefix(segments[0], BuildDirMarker) {
		first := strings.TrimPrefix(segments[0], BuildDirMarker)
		first = strings.TrimLeft(first, "/"+string(filepath.Separator))
		rest := append([]string{first}, segments[1:]...)
		return paths.Resolve(r.BuildDir, rest...)
	}

	cwd, err := paths.Cwd()
	if err != nil {
		return "", err
	}
	return paths.Resolve(cwd, segments...)
}

type runKey struct{}

// With returns a context carrying r.
func With(ctx context.Context, r *Run) context.Context {
	return context.WithValue(ctx, runKey{}, r)
}

// Current returns the Run carried by ctx, if any.
func Current(ctx context.Context) (*Run, bool) {
	r, ok := ctx.Value(runKey{}).(*Run)
	return r, ok && r != nil
}

// Require returns the Run carried by ctx or a *ContextError.
func Require(ctx context.Context) (*Run, error) {
	r, ok := Current(ctx)
	if !ok {
		return nil, &ContextError{Op: "require run"}
	}
	return r, nil
}

// Exec runs body with r attached to its context and r.TaskName registered
// as running for the duration. Errors from body are returned unchanged.
func Exec[T any](ctx context.Context, r *Run, body func(ctx context.Context) (T, error)) (T, error) {
	release := running.add(r.TaskName)
	defer release()

	r.Metrics.IncTaskStarted()
	result, err := body(With(ctx, r))
	if err != nil {
		r.Metrics.IncTaskFailed()
	} else {
		r.Metrics.IncTaskCompleted()
	}
	return result, err
}
