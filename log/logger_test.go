package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/plug/failure"
)

func jsonLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line: %s", line)
		out = append(out, entry)
	}
	return out
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: LevelNotice, Format: FormatJSON}, &buf)

	logger.Trace("trace", nil)
	logger.Debug("debug", nil)
	logger.Info("info", nil)
	logger.Notice("notice", nil)
	logger.Warn("warn", nil)
	logger.Error("error", map[string]any{"code": 7})

	entries := jsonLines(t, &buf)
	require.Len(t, entries, 3)
	assert.Equal(t, "notice", entries[0]["level"])
	assert.Equal(t, "warn", entries[1]["level"])
	assert.Equal(t, "error", entries[2]["level"])
	assert.Equal(t, map[string]any{"code": float64(7)}, entries[2]["fields"])
}

func TestLogger_ForTaskAddsIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: LevelInfo, Format: FormatJSON}, &buf).ForTask("compile", "run-1")

	logger.Info("hello", nil)

	entries := jsonLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "compile", entries[0]["task"])
	assert.Equal(t, "run-1", entries[0]["run_id"])
}

func TestLogger_ConsoleWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: LevelTrace, Format: FormatConsole}, &buf)

	logger.Sugar().Warnf("disk %s", "full")

	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "disk full")
	assert.NotContains(t, out, "\x1b[")
}

func TestLogger_ConsoleWithColor(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: LevelTrace, Color: true, Format: FormatConsole}, &buf)

	logger.Error("broken", nil)

	assert.Contains(t, buf.String(), "\x1b[")
}

func TestLogger_FailLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: LevelInfo, Format: FormatJSON}, &buf)

	err := logger.Fail(errors.New("compile exploded"))
	require.True(t, failure.IsReported(err))

	again := logger.Fail(err)
	assert.Same(t, err, again)

	entries := jsonLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "compile exploded", entries[0]["message"])
}

func TestLogger_FailMarksBuildFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: LevelInfo, Format: FormatJSON}, &buf)

	bf := failure.WithCauses("lint", errors.New("a"), errors.New("b"))
	err := logger.Fail(bf)

	assert.Same(t, bf, err)
	assert.True(t, bf.Reported())
	assert.Len(t, jsonLines(t, &buf), 3)
}

func TestLogger_FailKeepsWrapperText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: LevelInfo, Format: FormatJSON}, &buf)

	bf := failure.WithCauses("lint", errors.New("a"))
	err := logger.Fail(fmt.Errorf("task %q: %w", "site", bf))

	assert.True(t, failure.IsReported(err))
	entries := jsonLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, `task "site": lint`, entries[0]["message"])
	assert.Equal(t, "a", entries[1]["message"])
}

func TestLogger_FailKeepsWrapperTextWithoutMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: LevelInfo, Format: FormatJSON}, &buf)

	bf := failure.WithCauses("", errors.New("a"))
	_ = logger.Fail(fmt.Errorf("task %q: %w", "site", bf))

	entries := jsonLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, `task "site"`, entries[0]["message"])
	assert.Equal(t, "a", entries[1]["message"])
}

func TestLogger_FailNil(t *testing.T) {
	assert.NoError(t, Nop().Fail(nil))
}

func TestReport_Done(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: LevelInfo, Format: FormatJSON}, &buf)

	report := logger.Report("type check")
	report.Warnf("unused %s", "x")
	report.Add(Entry{Level: LevelError, Message: "mismatch", File: "a.go", Line: 3})

	assert.Equal(t, 2, report.Len())
	assert.Equal(t, 1, report.Errors())
	assert.Equal(t, 1, report.Warnings())

	err := report.Done()
	require.Error(t, err)
	assert.True(t, failure.IsReported(err))

	entries := jsonLines(t, &buf)
	require.Len(t, entries, 3)
	assert.Equal(t, "type check", entries[0]["message"])
	assert.Equal(t, "error", entries[0]["level"])
	assert.Equal(t, "a.go:3 mismatch", entries[2]["message"])

	buf.Reset()
	require.Error(t, report.Done())
	assert.Empty(t, buf.String())
}

func TestReport_WarningsOnly(t *testing.T) {
	report := Nop().Report("lint")
	report.Warnf("style")
	assert.NoError(t, report.Done())
	assert.NoError(t, Nop().Report("empty").Done())
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]Level{
		"trace": LevelTrace, "DEBUG": LevelDebug, "info": LevelInfo,
		"notice": LevelNotice, "warning": LevelWarn, " error ": LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestOptions_WireRoundTrip(t *testing.T) {
	opts := Options{Level: LevelDebug, Color: true, Format: FormatJSON}
	assert.Equal(t, opts, OptionsFromWire(opts.Wire()))
}

func TestOptionsFromWire_NormalizesUnknownValues(t *testing.T) {
	opts := OptionsFromWire(Options{Level: 42}.Wire())
	assert.Equal(t, LevelInfo, opts.Level)
	assert.Equal(t, FormatConsole, opts.Format)
}
