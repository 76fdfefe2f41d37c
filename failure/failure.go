// Package failure defines BuildFailure, the error that signals "stop, the user
// has already been told why", and the helpers that aggregate failures without
// reporting them twice.
package failure

import (
	"errors"
	"reflect"
	"strings"

	"go.uber.org/multierr"
)

// BuildFailure is a build-stopping error. A reported failure has already been
// surfaced to the user; outer boundaries must not log it again.
type BuildFailure struct {
	// Message is optional.
	Message string
	// Causes holds underlying errors that still need surfacing.
	Causes []error

	reported bool
}

// New returns an unreported failure with a message.
func New(message string) *BuildFailure {
	return &BuildFailure{Message: message}
}

// Reported returns a failure that has already been surfaced.
func Reported(message string) *BuildFailure {
	return &BuildFailure{Message: message, reported: true}
}

// WithCauses returns an unreported failure carrying causes. Causes that are
// nil, duplicated, or reported BuildFailures are dropped.
func WithCauses(message string, causes ...error) *BuildFailure {
	return &BuildFailure{Message: message, Causes: unreported(causes)}
}

// Reported reports whether the failure has already been surfaced.
func (f *BuildFailure) Reported() bool { return f.reported }

// MarkReported flags the failure as surfaced and returns it.
func (f *BuildFailure) MarkReported() *BuildFailure {
	f.reported = true
	return f
}

func (f *BuildFailure) Error() string {
	msg := f.Message
	if msg == "" {
		msg = "build failed"
	}
	if len(f.Causes) == 0 {
		return msg
	}

	causes := make([]string, 0, len(f.Causes))
	for _, cause := range f.Causes {
		causes = append(causes, cause.Error())
	}
	return msg + ": " + strings.Join(causes, "; ")
}

func (f *BuildFailure) Unwrap() []error { return f.Causes }

// IsReported reports whether err is, or wraps, a reported BuildFailure.
func IsReported(err error) bool {
	var bf *BuildFailure
	if errors.As(err, &bf) {
		return bf.reported
	}
	return false
}

// Collect aggregates the outcome of a batch of independent operations.
//
// Nil errors are ignored. When every error is an already-reported
// BuildFailure the result is a reported BuildFailure with no causes; when at
// least one unreported error remains the result is an unreported
// BuildFailure carrying those causes.
func Collect(errs ...error) error {
	all := multierr.Errors(multierr.Combine(errs...))
	if len(all) == 0 {
		return nil
	}

	causes := unreported(all)
	if len(causes) == 0 {
		return Reported("")
	}
	return &BuildFailure{Causes: causes}
}

// Await runs every fn concurrently, waits for all of them, and returns
// Collect over their errors. It never stops at the first failure.
func Await(fns ...func() error) error {
	errs := make([]error, len(fns))
	done := make(chan struct{}, len(fns))
	for i, fn := range fns {
		go func() {
			defer func() { done <- struct{}{} }()
			errs[i] = fn()
		}()
	}
	for range fns {
		<-done
	}
	return Collect(errs...)
}

// unreported flattens nested unreported BuildFailures without a message,
// drops reported ones, and removes duplicates by identity.
func unreported(errs []error) []error {
	var out []error
	seen := make(map[error]struct{}, len(errs))

	var visit func(err error)
	visit = func(err error) {
		if err == nil || IsReported(err) {
			return
		}
		if bf, ok := err.(*BuildFailure); ok && bf.Message == "" && len(bf.Causes) > 0 {
			for _, cause := range bf.Causes {
				visit(cause)
			}
			return
		}
		if reflect.TypeOf(err).Comparable() {
			if _, dup := seen[err]; dup {
				return
			}
			seen[err] = struct{}{}
		}
		out = append(out, err)
	}

	for _, err := range errs {
		visit(err)
	}
	return out
}
