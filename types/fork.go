// Package types defines the version and the wire messages shared by plug
// parent and worker processes.
//
//nolint:revive // types is a common Go package naming convention
package types

// Frame type discriminants for the fork control channel.
const (
	ForkDataType   = "fork_data"
	ForkResultType = "fork_result"
)

// LogOptions is the serialised logger configuration a worker restores
// before running a plug.
type LogOptions struct {
	Level  int8   `msgpack:"level"`
	Color  bool   `msgpack:"color"`
	Format string `msgpack:"format"`
}

// ForkData is sent once from parent to worker. It carries everything the
// worker needs to rebuild the task Run and invoke the plug.
type ForkData struct {
	// Type is always "fork_data".
	Type string `msgpack:"type"`
	// Version is the parent's Version; the worker refuses a mismatch.
	Version string `msgpack:"version"`
	// Plug is the registered name of the implementation to construct.
	Plug string `msgpack:"plug"`
	// Args are the constructor arguments, replayed verbatim.
	Args []any `msgpack:"args"`
	// RunID correlates worker log lines with the parent task.
	RunID string `msgpack:"run_id"`
	// TaskName is the name of the task the plug runs under.
	TaskName string `msgpack:"task_name"`
	// BuildFile is the absolute path of the file declaring the tasks.
	BuildFile string `msgpack:"build_file"`
	// FilesDir is the absolute base directory of the input files.
	FilesDir string `msgpack:"files_dir"`
	// FilesList holds the input paths, relative to FilesDir.
	FilesList []string `msgpack:"files_list"`
	// LogOptions is the parent's logger configuration.
	LogOptions LogOptions `msgpack:"log_options"`
}

// ForkResult is sent once from worker to parent.
// FilesDir is nil when the plug produced no files (a terminal plug).
type ForkResult struct {
	// Type is always "fork_result".
	Type string `msgpack:"type"`
	// Failed is true when the plug failed. The worker has already logged why.
	Failed bool `msgpack:"failed"`
	// FilesDir is the absolute base directory of the output files.
	FilesDir *string `msgpack:"files_dir,omitempty"`
	// FilesList holds the output paths, relative to FilesDir.
	FilesList []string `msgpack:"files_list,omitempty"`
}
