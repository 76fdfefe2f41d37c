// Package history records build completion events in a Lode dataset and
// reads them back.
//
// Records are Hive-partitioned by day and outcome, one JSONL record per
// build, on the filesystem or in S3.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/plug/notify"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "plug-builds"

// Partition keys, in path order.
const (
	KeyDay     = "day"
	KeyOutcome = "outcome"
)

// recordedLayout has fixed-width fractions so values sort lexically.
const recordedLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded build.
type Entry struct {
	ID         string   `json:"build_id" yaml:"build_id"`
	RecordedAt string   `json:"recorded_at" yaml:"recorded_at"`
	Day        string   `json:"day"`
	Timestamp  string   `json:"timestamp"`
	Outcome    string   `json:"outcome"`
	Tasks      []string `json:"tasks"`
	BuildFile  string   `json:"build_file" yaml:"build_file"`
	DurationMs int64    `json:"duration_ms" yaml:"duration_ms"`
	Version    string   `json:"version"`
}

// Open creates the dataset over factory with the history layout.
func Open(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(KeyDay, KeyOutcome),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, fmt.Errorf("history dataset: %w", err)
	}
	return ds, nil
}

// OpenFS opens the dataset under a filesystem root, creating the root if
// it does not exist yet.
func OpenFS(dataset, root string) (lode.Dataset, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("history root: %w", err)
	}
	return Open(dataset, lode.NewFSFactory(root))
}

// Recorder is a notify.Notifier that appends every event to a dataset.
type Recorder struct {
	ds lode.Dataset
}

// NewRecorder returns a Recorder writing to ds.
func NewRecorder(ds lode.Dataset) *Recorder {
	return &Recorder{ds: ds}
}

// Publish writes event as one record.
func (r *Recorder) Publish(ctx context.Context, event *notify.BuildCompletedEvent) error {
	record, err := toRecord(event)
	if err != nil {
		return err
	}
	if _, err := r.ds.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}

// Close implements notify.Notifier.
func (r *Recorder) Close() error { return nil }

var _ notify.Notifier = (*Recorder)(nil)

func toRecord(event *notify.BuildCompletedEvent) (map[string]any, error) {
	if event.Outcome == "" {
		return nil, errors.New("history: event has no outcome")
	}

	day := time.Now().UTC().Format(time.DateOnly)
	if ts, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
		day = ts.UTC().Format(time.DateOnly)
	}

	tasks := make([]any, len(event.Tasks))
	for i, t := range event.Tasks {
		tasks[i] = t
	}
	return map[string]any{
		"build_id":    uuid.NewString(),
		"recorded_at": time.Now().UTC().Format(recordedLayout),
		KeyDay:        day,
		KeyOutcome:    string(event.Outcome),
		"timestamp":   event.Timestamp,
		"tasks":       tasks,
		"build_file":  event.BuildFile,
		"duration_ms": event.DurationMs,
		"version":     event.Version,
	}, nil
}

// Recent returns up to limit entries, newest first. A limit of zero or less
// returns every entry. Records are deduplicated by build ID, so snapshots
// that repeat earlier files are harmless.
func Recent(ctx context.Context, ds lode.Dataset, limit int) ([]Entry, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: list snapshots: %w", err)
	}

	seen := make(map[string]bool)
	var out []Entry
	for _, snap := range snapshots {
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("history: read snapshot %s: %w", snap.ID, err)
		}
		for _, item := range data {
			entry, ok := toEntry(item)
			if !ok || seen[entry.ID] {
				continue
			}
			seen[entry.ID] = true
			out = append(out, entry)
		}
	}

	slices.SortStableFunc(out, func(a, b Entry) int {
		return strings.Compare(b.RecordedAt, a.RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// toEntry decodes a record read back from the JSONL codec.
func toEntry(item any) (Entry, bool) {
	record, ok := item.(map[string]any)
	if !ok {
		return Entry{}, false
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false
	}
	return entry, entry.ID != "" && entry.Outcome != ""
}
