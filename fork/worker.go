package fork

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/ipc"
	"github.com/justapithecus/plug/log"
	"github.com/justapithecus/plug/paths"
	"github.com/justapithecus/plug/run"
	"github.com/justapithecus/plug/types"
)

// DefaultTimeout is how long a worker waits for its fork data.
const DefaultTimeout = 5 * time.Second

// Worker is the child side of a fork: it reads one ForkData from In, runs
// the plug and writes one ForkResult to Out.
type Worker struct {
	In  io.Reader
	Out io.Writer
	// Stderr receives log output. Defaults to os.Stderr.
	Stderr io.Writer
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
}

type received struct {
	data *types.ForkData
	err  error
}

// Serve handles a single fork and returns the process exit code.
func (w *Worker) Serve(ctx context.Context) int {
	stderr := w.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	incoming := make(chan received, 1)
	go func() {
		data, err := ipc.ReadForkData(ipc.NewFrameDecoder(w.In))
		incoming <- received{data: data, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var data *types.ForkData
	select {
	case <-timer.C:
		bootstrapLogger(stderr).Error("no fork data received", map[string]any{
			"timeout": timeout.String(),
		})
		return ExitCodeTimeout
	case <-ctx.Done():
		return ExitCodeBadInput
	case msg := <-incoming:
		if msg.err != nil {
			bootstrapLogger(stderr).Error("invalid fork data", map[string]any{
				"error": msg.err.Error(),
			})
			return ExitCodeBadInput
		}
		data = msg.data
	}

	logger := log.NewWithWriter(log.OptionsFromWire(data.LogOptions), stderr)
	defer func() { _ = logger.Sync() }()

	result := execute(ctx, data, logger)
	if err := ipc.NewFrameEncoder(w.Out).WriteMessage(result); err != nil {
		logger.Error("cannot deliver fork result", map[string]any{
			"plug":  data.Plug,
			"error": err.Error(),
		})
		return ExitCodeSendFailed
	}
	return ExitCodeOK
}

// execute runs the plug and turns its outcome into a result. Failures are
// logged here and nowhere else.
func execute(ctx context.Context, data *types.ForkData, logger *log.Logger) *types.ForkResult {
	failed := &types.ForkResult{Type: types.ForkResultType, Failed: true}

	buildFile, err := paths.Abs(data.BuildFile)
	if err != nil {
		_ = logger.ForTask(data.TaskName, data.RunID).Fail(&LoadError{Plug: data.Plug, Err: err})
		return failed
	}
	r := run.NewWithID(data.RunID, buildFile, data.TaskName, logger)

	out, err := run.Exec(ctx, r, func(ctx context.Context) (*files.Files, error) {
		return invoke(ctx, r, data)
	})
	if err != nil {
		_ = r.Log.Fail(err)
		return failed
	}
	if out == nil {
		return &types.ForkResult{Type: types.ForkResultType}
	}

	dir := out.Directory().String()
	return &types.ForkResult{
		Type:      types.ForkResultType,
		FilesDir:  &dir,
		FilesList: out.Paths(),
	}
}

func invoke(ctx context.Context, r *run.Run, data *types.ForkData) (out *files.Files, err error) {
	if err := types.CheckVersion(data.Version); err != nil {
		return nil, &LoadError{Plug: data.Plug, Err: err}
	}

	factory, ok := lookup(data.Plug)
	if !ok {
		return nil, &LoadError{Plug: data.Plug, Err: ErrNotRegistered}
	}
	plug, err := factory(data.Args...)
	if err != nil {
		return nil, &LoadError{Plug: data.Plug, Err: err}
	}

	dir, err := paths.Abs(data.FilesDir)
	if err != nil {
		return nil, err
	}
	in, err := files.From(dir, data.FilesList...)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("plug %q panicked: %v", data.Plug, rec)
		}
	}()
	return plug.Pipe(ctx, in, r)
}

func bootstrapLogger(w io.Writer) *log.Logger {
	return log.NewWithWriter(log.DefaultOptions(), w)
}

// RunWorker serves a fork when the process was started as a worker and
// reports ok=false otherwise, in which case the program should carry on
// normally. It must run before anything else in main.
func RunWorker() (code int, ok bool) {
	if os.Getenv(EnvWorker) != "1" {
		return 0, false
	}

	in := os.NewFile(workerInFD, "plug-fork-in")
	out := os.NewFile(workerOutFD, "plug-fork-out")
	if in == nil || out == nil {
		return 0, false
	}
	if _, err := in.Stat(); err != nil {
		return 0, false
	}
	if _, err := out.Stat(); err != nil {
		return 0, false
	}

	// Processes this worker starts are not workers themselves, and must not
	// hold the control channel open after the worker exits.
	_ = os.Unsetenv(EnvWorker)
	syscall.CloseOnExec(workerInFD)
	syscall.CloseOnExec(workerOutFD)

	w := &Worker{In: in, Out: out}
	if d, ok := parseTimeout(os.Getenv(EnvTimeout)); ok {
		w.Timeout = d
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code = w.Serve(ctx)
	_ = out.Close()
	return code, true
}
