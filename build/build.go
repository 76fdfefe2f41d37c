// Package build holds the task table of a build file and runs tasks.
//
// Tasks are plain functions. A task calls another task with Build.Call,
// which gives the callee its own Run; there is no dependency graph.
package build

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/justapithecus/plug/failure"
	"github.com/justapithecus/plug/log"
	"github.com/justapithecus/plug/metrics"
	"github.com/justapithecus/plug/paths"
	"github.com/justapithecus/plug/run"
)

// Task is a task body. Its Run is available through run.Current(ctx).
type Task func(ctx context.Context) error

// DuplicateTaskError reports a task name defined twice.
type DuplicateTaskError struct {
	Name string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q is already defined", e.Name)
}

// UnknownTaskError reports a call to an undefined task.
type UnknownTaskError struct {
	Name string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("no task named %q", e.Name)
}

// Build is the set of tasks declared by one build file.
type Build struct {
	file    paths.AbsolutePath
	logger  *log.Logger
	metrics *metrics.Collector

	mu    sync.RWMutex
	tasks map[string]Task
}

// New creates an empty Build for file. A nil logger discards output.
func New(file paths.AbsolutePath, logger *log.Logger) *Build {
	if logger == nil {
		logger = log.Nop()
	}
	return &Build{
		file:    file,
		logger:  logger,
		metrics: metrics.NewCollector(file.String()),
		tasks:   make(map[string]Task),
	}
}

// Here returns the absolute path of the calling source file, for build
// programs that declare their tasks in main:
//
//	var tasks = build.New(build.Here(), nil)
func Here() paths.AbsolutePath {
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		cwd, err := paths.Cwd()
		if err != nil {
			panic(err)
		}
		return cwd
	}
	return paths.MustAbs(file)
}

// SetLogger replaces the build logger. Call it before running tasks.
func (b *Build) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.Nop()
	}
	b.logger = logger
}

// SetFile replaces the build file and resets the metrics. Call it before
// running tasks.
func (b *Build) SetFile(file paths.AbsolutePath) {
	b.file = file
	b.metrics = metrics.NewCollector(file.String())
}

// File returns the build file.
func (b *Build) File() paths.AbsolutePath { return b.file }

// Logger returns the unannotated build logger.
func (b *Build) Logger() *log.Logger { return b.logger }

// Metrics returns the collector shared by every Run of this build.
func (b *Build) Metrics() *metrics.Collector { return b.metrics }

// Define adds a task.
func (b *Build) Define(name string, task Task) error {
	if name == "" || task == nil {
		return fmt.Errorf("define: name and task are required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tasks[name]; exists {
		return &DuplicateTaskError{Name: name}
	}
	b.tasks[name] = task
	return nil
}

// MustDefine is Define for package-level declarations. It panics on error.
func (b *Build) MustDefine(name string, task Task) {
	if err := b.Define(name, task); err != nil {
		panic(err)
	}
}

// Names returns the sorted task names.
func (b *Build) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.tasks))
	for name := range b.tasks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (b *Build) lookup(name string) (Task, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	task, ok := b.tasks[name]
	return task, ok
}

// Call runs the named task under a new Run. Inside another task the new Run
// is a child of the caller's; otherwise it is a fresh top-level Run.
// Errors are returned unchanged and nothing is logged.
func (b *Build) Call(ctx context.Context, name string) error {
	task, ok := b.lookup(name)
	if !ok {
		return &UnknownTaskError{Name: name}
	}

	var r *run.Run
	if parent, ok := run.Current(ctx); ok {
		r = parent.Child(name)
	} else {
		r = run.New(b.file, name, b.logger)
		r.Metrics = b.metrics
	}

	start := time.Now()
	r.Log.Debug("task started", nil)

	_, err := run.Exec(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task(ctx)
	})

	fields := map[string]any{"duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		r.Log.Debug("task failed", fields)
		return err
	}
	r.Log.Debug("task completed", fields)
	return nil
}

// Parallel calls every named task concurrently and waits for all of them.
// Failures are combined with failure.Collect.
func (b *Build) Parallel(ctx context.Context, names ...string) error {
	fns := make([]func() error, len(names))
	for i, name := range names {
		fns[i] = func() error { return b.Call(ctx, name) }
	}
	return failure.Await(fns...)
}

// Run is the top-level boundary: it calls each named task in order, stops
// at the first failure and logs it unless it was already reported. The
// returned error, if any, is always a reported BuildFailure.
func (b *Build) Run(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := b.Call(ctx, name); err != nil {
			return b.logger.Fail(fmt.Errorf("task %q: %w", name, err))
		}
	}
	return nil
}
