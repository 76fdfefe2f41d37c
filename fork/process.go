package fork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/justapithecus/plug/ipc"
	"github.com/justapithecus/plug/types"
)

// Control channel descriptors as seen by the worker. ExtraFiles start at 3.
const (
	workerInFD  = 3
	workerOutFD = 4
)

// outputGrace bounds copying worker output after the worker has exited.
const outputGrace = time.Second

// processConfig configures a worker process.
type processConfig struct {
	// Executable is the binary to run; normally this same program.
	Executable string
	// Env is the complete worker environment.
	Env []string
	// Stdout and Stderr default to the parent's.
	Stdout io.Writer
	Stderr io.Writer
}

// exitStatus describes how a worker process ended.
type exitStatus struct {
	// Code is the exit code, or -1 when the process was killed by a signal.
	Code int
	// Signal is set when the process was killed by a signal.
	Signal string
}

// workerProcess manages a worker process and its control channel.
type workerProcess struct {
	config     *processConfig
	cmd        *exec.Cmd
	toWorker   *os.File
	fromWorker *os.File
}

func newWorkerProcess(config *processConfig) *workerProcess {
	return &workerProcess{config: config}
}

// Start starts the worker with the control channel on descriptors 3
// (parent to worker) and 4 (worker to parent). Standard output and error
// are inherited.
func (m *workerProcess) Start(ctx context.Context) error {
	m.cmd = exec.CommandContext(ctx, m.config.Executable)
	m.cmd.Env = m.config.Env
	// Output copying must not outlive the worker because of processes it
	// left running.
	m.cmd.WaitDelay = outputGrace
	m.cmd.Stdin = nil
	m.cmd.Stdout = m.config.Stdout
	m.cmd.Stderr = m.config.Stderr
	if m.cmd.Stdout == nil {
		m.cmd.Stdout = os.Stdout
	}
	if m.cmd.Stderr == nil {
		m.cmd.Stderr = os.Stderr
	}

	workerIn, toWorker, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create control pipe: %w", err)
	}
	fromWorker, workerOut, err := os.Pipe()
	if err != nil {
		_ = workerIn.Close()
		_ = toWorker.Close()
		return fmt.Errorf("failed to create result pipe: %w", err)
	}
	m.cmd.ExtraFiles = []*os.File{workerIn, workerOut}

	startErr := m.cmd.Start()

	// The worker holds its own copies now.
	_ = workerIn.Close()
	_ = workerOut.Close()

	if startErr != nil {
		_ = toWorker.Close()
		_ = fromWorker.Close()
		return fmt.Errorf("failed to start worker: %w", startErr)
	}

	m.toWorker = toWorker
	m.fromWorker = fromWorker
	return nil
}

// Send writes the single ForkData message and closes the outgoing side.
func (m *workerProcess) Send(data *types.ForkData) error {
	defer func() { _ = m.toWorker.Close() }()
	return ipc.NewFrameEncoder(m.toWorker).WriteMessage(data)
}

// Results returns a decoder over the worker's outgoing side.
func (m *workerProcess) Results() *ipc.FrameDecoder {
	return ipc.NewFrameDecoder(m.fromWorker)
}

// CloseResults releases the parent's read side of the result pipe.
func (m *workerProcess) CloseResults() {
	_ = m.fromWorker.Close()
}

// ExpireResults stops reads on the result pipe after grace. A result already
// written by the worker is still read.
func (m *workerProcess) ExpireResults(grace time.Duration) {
	_ = m.fromWorker.SetReadDeadline(time.Now().Add(grace))
}

// Wait waits for the worker to exit. Must be called after Start.
func (m *workerProcess) Wait() (*exitStatus, error) {
	if m.cmd == nil {
		return nil, errors.New("worker not started")
	}

	err := m.cmd.Wait()
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return &exitStatus{Code: 0}, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("worker wait failed: %w", err)
	}

	status := &exitStatus{Code: exitErr.ExitCode()}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Code = -1
		status.Signal = ws.Signal().String()
	}
	return status, nil
}

// Kill terminates the worker process.
func (m *workerProcess) Kill() error {
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Kill()
	}
	return nil
}

// deduplicateEnv keeps the last occurrence of each env var key.
// This ensures our appended values win over inherited duplicates from
// os.Environ().
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
