// Package metrics provides per-build counters.
//
// The Collector accumulates counters for a single build invocation. It is a
// leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Tasks
	TasksStarted   int64 `json:"tasks_started" yaml:"tasks_started"`
	TasksCompleted int64 `json:"tasks_completed" yaml:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed" yaml:"tasks_failed"`

	// Pipeline stages
	StagesRun     int64 `json:"stages_run" yaml:"stages_run"`
	StagesSkipped int64 `json:"stages_skipped" yaml:"stages_skipped"`

	// Forked workers
	ForkLaunchSuccess int64 `json:"fork_launch_success" yaml:"fork_launch_success"`
	ForkLaunchFailure int64 `json:"fork_launch_failure" yaml:"fork_launch_failure"`
	ForkFailed        int64 `json:"fork_failed" yaml:"fork_failed"`
	ForkCrashed       int64 `json:"fork_crashed" yaml:"fork_crashed"`

	// BuildFile is informational, set at construction.
	BuildFile string `json:"build_file" yaml:"build_file"`
}

// Collector accumulates counters during a build.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	tasksStarted   int64
	tasksCompleted int64
	tasksFailed    int64

	stagesRun     int64
	stagesSkipped int64

	forkLaunchSuccess int64
	forkLaunchFailure int64
	forkFailed        int64
	forkCrashed       int64

	buildFile string
}

// NewCollector creates a Collector for the given build file.
func NewCollector(buildFile string) *Collector {
	return &Collector{buildFile: buildFile}
}

// inc must only be called on a non-nil Collector.
func (c *Collector) inc(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// --- Tasks ---

// IncTaskStarted records a task invocation start.
func (c *Collector) IncTaskStarted() {
	if c == nil {
		return
	}
	c.inc(&c.tasksStarted)
}

// IncTaskCompleted records a successful task invocation.
func (c *Collector) IncTaskCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.tasksCompleted)
}

// IncTaskFailed records a failed task invocation.
func (c *Collector) IncTaskFailed() {
	if c == nil {
		return
	}
	c.inc(&c.tasksFailed)
}

// --- Pipeline ---

// IncStageRun records a plug invocation.
func (c *Collector) IncStageRun() {
	if c == nil {
		return
	}
	c.inc(&c.stagesRun)
}

// IncStageSkipped records a plug skipped because an earlier stage failed.
func (c *Collector) IncStageSkipped() {
	if c == nil {
		return
	}
	c.inc(&c.stagesSkipped)
}

// --- Forks ---

// IncForkLaunchSuccess records a worker process start.
func (c *Collector) IncForkLaunchSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.forkLaunchSuccess)
}

// IncForkLaunchFailure records a worker process that could not start.
func (c *Collector) IncForkLaunchFailure() {
	if c == nil {
		return
	}
	c.inc(&c.forkLaunchFailure)
}

// IncForkFailed records a worker that reported a plug failure.
func (c *Collector) IncForkFailed() {
	if c == nil {
		return
	}
	c.inc(&c.forkFailed)
}

// IncForkCrashed records a worker that exited without a result.
func (c *Collector) IncForkCrashed() {
	if c == nil {
		return
	}
	c.inc(&c.forkCrashed)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		TasksStarted:   c.tasksStarted,
		TasksCompleted: c.tasksCompleted,
		TasksFailed:    c.tasksFailed,

		StagesRun:     c.stagesRun,
		StagesSkipped: c.stagesSkipped,

		ForkLaunchSuccess: c.forkLaunchSuccess,
		ForkLaunchFailure: c.forkLaunchFailure,
		ForkFailed:        c.forkFailed,
		ForkCrashed:       c.forkCrashed,

		BuildFile: c.buildFile,
	}
}

// Fields returns the snapshot as log fields.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"tasks_started":       s.TasksStarted,
		"tasks_completed":     s.TasksCompleted,
		"tasks_failed":        s.TasksFailed,
		"stages_run":          s.StagesRun,
		"stages_skipped":      s.StagesSkipped,
		"fork_launch_success": s.ForkLaunchSuccess,
		"fork_launch_failure": s.ForkLaunchFailure,
		"fork_failed":         s.ForkFailed,
		"fork_crashed":        s.ForkCrashed,
	}
}
