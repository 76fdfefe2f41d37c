// Package fork runs plugs in a separate worker process.
//
// The worker is this same executable, started with EnvWorker set and a
// control channel on descriptors 3 and 4. The parent sends one ForkData
// message naming a plug registered with Register; the worker rebuilds the
// task Run, runs the plug and sends back one ForkResult. A failing plug is
// logged by the worker only, and the parent receives an already reported
// failure.
//
// Programs that fork must hand control to the worker entry point before
// doing anything else:
//
//	func main() {
//		if code, ok := fork.RunWorker(); ok {
//			os.Exit(code)
//		}
//		...
//	}
package fork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/ipc"
	"github.com/justapithecus/plug/paths"
	"github.com/justapithecus/plug/pipe"
	"github.com/justapithecus/plug/run"
	"github.com/justapithecus/plug/types"
)

// Environment variables understood by the worker.
const (
	// EnvWorker marks a process started as a fork worker.
	EnvWorker = "PLUG_FORK_WORKER"
	// EnvTimeout overrides how long the worker waits for its fork data.
	EnvTimeout = "PLUG_FORK_TIMEOUT"
	// EnvCoverageDir is where Go binaries built with coverage write profiles.
	EnvCoverageDir = "GOCOVERDIR"
)

// resultGrace is how long the parent keeps reading for a result after the
// worker has exited. Processes the plug started may still hold the pipe.
const resultGrace = time.Second

// CoverageDirArg is the key of a map argument whose value is propagated to
// the worker as its coverage output directory.
const CoverageDirArg = "coverageDir"

// Plug is a pipe.Plug that runs the plug registered under Name in a worker
// process. Args travel through msgpack, so factories see decoded values
// (integers may arrive as any sized integer type).
type Plug struct {
	// Name is the registered name of the implementation.
	Name string
	// Args are passed to the implementation's factory in the worker.
	Args []any
	// Executable defaults to the running program.
	Executable string
	// Timeout is how long the worker waits for its fork data.
	// Zero falls back to Settings, then to DefaultTimeout.
	Timeout time.Duration
	// Stdout and Stderr receive the worker's output; default to the parent's.
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Plug that runs the implementation registered under name.
func New(name string, args ...any) *Plug {
	return &Plug{Name: name, Args: args}
}

var _ pipe.Plug = (*Plug)(nil)

type settlement struct {
	result *types.ForkResult
	err    error
}

// Pipe launches a worker, hands it the input files and waits for its single
// result. The Pipe settles exactly once however the worker ends.
func (p *Plug) Pipe(ctx context.Context, in *files.Files, r *run.Run) (*files.Files, error) {
	executable := p.Executable
	if executable == "" {
		exe, err := os.Executable()
		if err != nil {
			r.Metrics.IncForkLaunchFailure()
			return nil, fmt.Errorf("forked plug %q: cannot locate executable: %w", p.Name, err)
		}
		executable = exe
	}

	proc := newWorkerProcess(&processConfig{
		Executable: executable,
		Env:        p.environ(),
		Stdout:     p.Stdout,
		Stderr:     p.Stderr,
	})
	if err := proc.Start(ctx); err != nil {
		r.Metrics.IncForkLaunchFailure()
		return nil, &WorkerError{Plug: p.Name, Msg: "launch failed", Err: err}
	}
	r.Metrics.IncForkLaunchSuccess()

	r.Log.Debug("forked plug", map[string]any{
		"plug":  p.Name,
		"files": in.Len(),
	})

	data := &types.ForkData{
		Type:       types.ForkDataType,
		Version:    types.Version,
		Plug:       p.Name,
		Args:       p.Args,
		RunID:      r.ID,
		TaskName:   r.TaskName,
		BuildFile:  r.BuildFile.String(),
		FilesDir:   in.Directory().String(),
		FilesList:  in.Paths(),
		LogOptions: r.Log.Options().Wire(),
	}

	s := p.await(proc, data)
	if s.err != nil {
		var workerErr *WorkerError
		if errors.As(s.err, &workerErr) {
			r.Metrics.IncForkCrashed()
		}
		return nil, s.err
	}

	dir, list, err := determineOutcome(p.Name, s.result)
	if err != nil {
		r.Metrics.IncForkFailed()
		return nil, err
	}
	if dir == nil {
		return nil, nil
	}
	base, err := paths.Abs(*dir)
	if err != nil {
		return nil, fmt.Errorf("forked plug %q: %w", p.Name, err)
	}
	return files.From(base, list...)
}

// await sends data and settles on whichever of the result message or the
// worker exit decides the outcome first. A clean exit defers to the reader
// so a result still in flight is not mistaken for a missing one.
func (p *Plug) await(proc *workerProcess, data *types.ForkData) settlement {
	var once sync.Once
	settled := make(chan settlement, 1)
	settle := func(s settlement) {
		once.Do(func() { settled <- s })
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		result, err := ipc.ReadForkResult(proc.Results())
		switch {
		case err == nil:
			settle(settlement{result: result})
		case errors.Is(err, io.EOF), errors.Is(err, os.ErrDeadlineExceeded):
			// No message; the exit status explains why.
		default:
			settle(settlement{err: &WorkerError{Plug: p.Name, Msg: "invalid result message", Err: err}})
		}
	}()

	go func() {
		status, err := proc.Wait()
		proc.ExpireResults(resultGrace)
		<-readDone
		proc.CloseResults()
		switch {
		case err != nil:
			settle(settlement{err: &WorkerError{Plug: p.Name, Msg: "lost track of worker", Err: err}})
		default:
			settle(settlement{err: &WorkerError{Plug: p.Name, Exit: status, Msg: describeExit(status)}})
		}
	}()

	if err := proc.Send(data); err != nil {
		// The worker may already be gone; its exit status is the better
		// explanation, but make sure it does not linger.
		_ = proc.Kill()
		settle(settlement{err: &WorkerError{Plug: p.Name, Msg: "cannot send fork data", Err: err}})
	}

	return <-settled
}

func (p *Plug) environ() []string {
	defaults := currentSettings()

	env := append(os.Environ(), EnvWorker+"=1")

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaults.Timeout
	}
	if timeout > 0 {
		env = append(env, EnvTimeout+"="+timeout.String())
	}

	dir := coverageDir(p.Args)
	if dir == "" {
		dir = defaults.CoverageDir
	}
	if dir != "" {
		env = append(env, EnvCoverageDir+"="+dir)
	}
	return deduplicateEnv(env)
}

// coverageDir finds a CoverageDirArg entry in any map argument.
func coverageDir(args []any) string {
	for _, arg := range args {
		var value any
		switch m := arg.(type) {
		case map[string]any:
			value = m[CoverageDirArg]
		case map[string]string:
			value = m[CoverageDirArg]
		default:
			continue
		}
		if dir, ok := value.(string); ok && dir != "" {
			return dir
		}
	}
	return ""
}

func parseTimeout(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, true
	}
	if ms, err := strconv.Atoi(s); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond, true
	}
	return 0, false
}
