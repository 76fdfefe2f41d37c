package log

import (
	"fmt"
	"sync"

	"github.com/justapithecus/plug/failure"
)

// Entry is a single diagnostic in a Report.
type Entry struct {
	Level   Level
	Message string
	// File and Line are optional.
	File string
	Line int
}

// Report accumulates diagnostics and prints them as one block.
// Safe for concurrent use.
type Report struct {
	mu      sync.Mutex
	logger  *Logger
	title   string
	entries []Entry
	done    bool
}

// Report returns a new, empty Report.
func (l *Logger) Report(title string) *Report {
	return &Report{logger: l, title: title}
}

// Add records an entry.
func (r *Report) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Warnf records a warning-level entry.
func (r *Report) Warnf(format string, args ...any) {
	r.Add(Entry{Level: LevelWarn, Message: fmt.Sprintf(format, args...)})
}

// Errorf records an error-level entry.
func (r *Report) Errorf(format string, args ...any) {
	r.Add(Entry{Level: LevelError, Message: fmt.Sprintf(format, args...)})
}

// Len returns the number of entries.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Errors returns the number of error-level entries.
func (r *Report) Errors() int {
	return r.count(LevelError)
}

// Warnings returns the number of warning-level entries.
func (r *Report) Warnings() int {
	return r.count(LevelWarn)
}

func (r *Report) count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Done prints the report once and returns a reported BuildFailure when it
// holds at least one error. Later calls print nothing.
func (r *Report) Done() error {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return r.result()
	}
	r.done = true
	entries := append([]Entry(nil), r.entries...)
	r.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	top := LevelTrace
	for _, e := range entries {
		top = max(top, e.Level)
	}

	st := r.logger.styles
	r.logger.log(top, st.title.Render(r.title), map[string]any{
		"errors":   r.Errors(),
		"warnings": r.Warnings(),
	})
	for _, e := range entries {
		message := e.Message
		if e.File != "" {
			location := e.File
			if e.Line > 0 {
				location = fmt.Sprintf("%s:%d", e.File, e.Line)
			}
			message = st.file.Render(location) + " " + message
		}
		r.logger.log(e.Level, message, nil)
	}

	return r.result()
}

func (r *Report) result() error {
	if r.Errors() == 0 {
		return nil
	}
	return failure.Reported(r.title)
}
