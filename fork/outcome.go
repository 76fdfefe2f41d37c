package fork

import (
	"fmt"

	"github.com/justapithecus/plug/failure"
	"github.com/justapithecus/plug/types"
)

// Exit codes of the worker entry point.
const (
	// ExitCodeOK covers success and plug failure; the result message says which.
	ExitCodeOK = 0
	// ExitCodeSendFailed means the result message could not be delivered.
	ExitCodeSendFailed = 1
	// ExitCodeTimeout means no fork data arrived in time.
	ExitCodeTimeout = 2
	// ExitCodeBadInput means the control channel carried no valid fork data.
	ExitCodeBadInput = 3
)

// WorkerError reports a worker that ended without a usable result. The
// worker did not log anything about it, so the error is not reported.
type WorkerError struct {
	// Plug is the registered name the worker was asked to run.
	Plug string
	// Exit is nil when the worker had not exited when the error was seen.
	Exit *exitStatus
	// Msg describes what went wrong.
	Msg string
	// Err is the underlying error, if any.
	Err error
}

func (e *WorkerError) Error() string {
	msg := fmt.Sprintf("forked plug %q: %s", e.Plug, e.Msg)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *WorkerError) Unwrap() error { return e.Err }

// ExitCode returns the worker's exit code, or -1 when unknown or signaled.
func (e *WorkerError) ExitCode() int {
	if e.Exit == nil {
		return -1
	}
	return e.Exit.Code
}

// describeExit explains a worker exit that produced no result message.
func describeExit(status *exitStatus) string {
	if status.Signal != "" {
		return fmt.Sprintf("worker killed by signal %s", status.Signal)
	}

	switch status.Code {
	case ExitCodeOK:
		return "worker exited without sending a result"
	case ExitCodeSendFailed:
		return "worker could not deliver its result"
	case ExitCodeTimeout:
		return "worker timed out waiting for fork data"
	case ExitCodeBadInput:
		return "worker rejected its fork data"
	default:
		return fmt.Sprintf("worker exited with code %d", status.Code)
	}
}

// determineOutcome maps a result message onto the Pipe outcome.
// A failed result was already logged by the worker.
func determineOutcome(name string, result *types.ForkResult) (dir *string, list []string, err error) {
	if result.Failed {
		return nil, nil, failure.Reported(fmt.Sprintf("forked plug %q failed", name))
	}
	return result.FilesDir, result.FilesList, nil
}
