// Package notify publishes build completion events to downstream systems.
//
// Notifiers are configured in plug.yaml and run after the requested tasks
// finish. A failed notification is logged by the caller and never changes
// the build outcome.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/justapithecus/plug/metrics"
	"github.com/justapithecus/plug/types"
)

// EventType is the event_type of every BuildCompletedEvent.
const EventType = "build_completed"

// Outcome is how a build ended.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeCanceled Outcome = "canceled"
)

// OutcomeOf classifies the error returned by a build. A canceled ctx wins
// over the error, since cancellation surfaces as task failures.
func OutcomeOf(ctx context.Context, err error) Outcome {
	switch {
	case ctx.Err() != nil:
		return OutcomeCanceled
	case err != nil:
		return OutcomeFailure
	default:
		return OutcomeSuccess
	}
}

// BuildCompletedEvent is the payload published when a build finishes.
type BuildCompletedEvent struct {
	Version    string         `json:"version"`
	EventType  string         `json:"event_type"`
	BuildFile  string         `json:"build_file"`
	Tasks      []string       `json:"tasks"`
	Outcome    Outcome        `json:"outcome"`
	Timestamp  string         `json:"timestamp"` // RFC 3339
	DurationMs int64          `json:"duration_ms"`
	Metrics    map[string]any `json:"metrics,omitempty"`
}

// NewEvent builds the event for a build of tasks that started at start.
func NewEvent(snap metrics.Snapshot, tasks []string, outcome Outcome, start time.Time) *BuildCompletedEvent {
	now := time.Now()
	return &BuildCompletedEvent{
		Version:    types.Version,
		EventType:  EventType,
		BuildFile:  snap.BuildFile,
		Tasks:      tasks,
		Outcome:    outcome,
		Timestamp:  now.UTC().Format(time.RFC3339),
		DurationMs: now.Sub(start).Milliseconds(),
		Metrics:    snap.Fields(),
	}
}

// Notifier publishes build completion events to a downstream system.
type Notifier interface {
	// Publish sends the event. Must respect context cancellation.
	Publish(ctx context.Context, event *BuildCompletedEvent) error

	// Close releases resources.
	Close() error
}

// Set publishes to several notifiers.
type Set []Notifier

// Publish sends event to every notifier, even after one fails, and returns
// the combined errors.
func (s Set) Publish(ctx context.Context, event *BuildCompletedEvent) error {
	var err error
	for _, n := range s {
		err = multierr.Append(err, n.Publish(ctx, event))
	}
	return err
}

// Close closes every notifier.
func (s Set) Close() error {
	var err error
	for _, n := range s {
		err = multierr.Append(err, n.Close())
	}
	return err
}

var _ Notifier = Set(nil)

// permanentError stops Retry.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// DefaultBackoff is the delay before the first retry. It doubles on every
// further retry.
const DefaultBackoff = 500 * time.Millisecond

// Retry calls attempt once plus up to retries more times, waiting backoff,
// 2*backoff, ... in between. It stops at the first success, at an error
// marked Permanent, or when ctx is done.
func Retry(ctx context.Context, name string, retries int, backoff time.Duration, attempt func(ctx context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			wait := time.Duration(1<<uint(i-1)) * backoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(wait):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(lastErr, &permanent) {
			return fmt.Errorf("%s: non-retriable error: %w", name, permanent.err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
