package build

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/plug/failure"
	"github.com/justapithecus/plug/log"
	"github.com/justapithecus/plug/run"
)

func newBuild(t *testing.T) (*Build, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := log.NewWithWriter(log.Options{Level: log.LevelInfo, Format: log.FormatJSON}, &buf)
	return New("/project/build.go", logger), &buf
}

func TestDefine_Duplicate(t *testing.T) {
	b, _ := newBuild(t)
	require.NoError(t, b.Define("compile", func(context.Context) error { return nil }))

	err := b.Define("compile", func(context.Context) error { return nil })

	var dup *DuplicateTaskError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "compile", dup.Name)
	assert.Panics(t, func() { b.MustDefine("compile", func(context.Context) error { return nil }) })
}

func TestNames_Sorted(t *testing.T) {
	b, _ := newBuild(t)
	b.MustDefine("test", func(context.Context) error { return nil })
	b.MustDefine("build", func(context.Context) error { return nil })
	b.MustDefine("lint", func(context.Context) error { return nil })

	assert.Equal(t, []string{"build", "lint", "test"}, b.Names())
}

func TestCall_ProvidesRun(t *testing.T) {
	b, _ := newBuild(t)

	var seen *run.Run
	b.MustDefine("compile", func(ctx context.Context) error {
		r, err := run.Require(ctx)
		seen = r
		return err
	})

	require.NoError(t, b.Call(context.Background(), "compile"))
	require.NotNil(t, seen)
	assert.Equal(t, "compile", seen.TaskName)
	assert.Equal(t, b.File(), seen.BuildFile)
	assert.Same(t, b.Metrics(), seen.Metrics)
}

func TestCall_NestedTaskGetsChildRun(t *testing.T) {
	b, _ := newBuild(t)

	var outer, inner *run.Run
	b.MustDefine("inner", func(ctx context.Context) error {
		inner, _ = run.Current(ctx)
		return nil
	})
	b.MustDefine("outer", func(ctx context.Context) error {
		outer, _ = run.Current(ctx)
		if err := b.Call(ctx, "inner"); err != nil {
			return err
		}
		after, _ := run.Current(ctx)
		assert.Same(t, outer, after)
		return nil
	})

	require.NoError(t, b.Call(context.Background(), "outer"))
	assert.Equal(t, "outer", outer.TaskName)
	assert.Equal(t, "inner", inner.TaskName)
	assert.NotEqual(t, outer.ID, inner.ID)
	assert.Equal(t, int64(2), b.Metrics().Snapshot().TasksCompleted)
}

func TestCall_RegistersRunningTask(t *testing.T) {
	b, _ := newBuild(t)

	var during []string
	b.MustDefine("watch-me", func(context.Context) error {
		during = run.RunningTaskNames()
		return nil
	})

	require.NoError(t, b.Call(context.Background(), "watch-me"))
	assert.Contains(t, during, "watch-me")
	assert.NotContains(t, run.RunningTaskNames(), "watch-me")
}

func TestCall_Unknown(t *testing.T) {
	b, _ := newBuild(t)

	var unknown *UnknownTaskError
	require.True(t, errors.As(b.Call(context.Background(), "missing"), &unknown))
	assert.Equal(t, "missing", unknown.Name)
}

func TestCall_ReturnsErrorUnlogged(t *testing.T) {
	b, buf := newBuild(t)
	boom := errors.New("boom")
	b.MustDefine("fail", func(context.Context) error { return boom })

	err := b.Call(context.Background(), "fail")

	assert.Same(t, boom, err)
	assert.Empty(t, buf.String())
	assert.Equal(t, int64(1), b.Metrics().Snapshot().TasksFailed)
}

func TestRun_LogsUnreportedFailureOnce(t *testing.T) {
	b, buf := newBuild(t)
	b.MustDefine("fail", func(context.Context) error { return errors.New("compile error xyz") })

	err := b.Run(context.Background(), "fail")

	require.Error(t, err)
	assert.True(t, failure.IsReported(err))
	assert.Equal(t, 1, strings.Count(buf.String(), "compile error xyz"))
	assert.Contains(t, buf.String(), `task \"fail\"`)
}

func TestRun_ParallelFailureNamesTask(t *testing.T) {
	b, buf := newBuild(t)
	b.MustDefine("lint", func(context.Context) error { return errors.New("lint exploded") })
	b.MustDefine("ok", func(context.Context) error { return nil })
	b.MustDefine("site", func(ctx context.Context) error { return b.Parallel(ctx, "lint", "ok") })

	err := b.Run(context.Background(), "site")

	require.Error(t, err)
	assert.True(t, failure.IsReported(err))
	assert.Contains(t, buf.String(), `task \"site\"`)
	assert.Equal(t, 1, strings.Count(buf.String(), "lint exploded"))
}

func TestRun_ReportedFailureNotLogged(t *testing.T) {
	b, buf := newBuild(t)
	b.MustDefine("fail", func(context.Context) error { return failure.Reported("already told") })

	err := b.Run(context.Background(), "fail")

	assert.True(t, failure.IsReported(err))
	assert.Empty(t, buf.String())
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	b, _ := newBuild(t)

	var ran []string
	b.MustDefine("a", func(context.Context) error { ran = append(ran, "a"); return nil })
	b.MustDefine("b", func(context.Context) error { ran = append(ran, "b"); return errors.New("b failed") })
	b.MustDefine("c", func(context.Context) error { ran = append(ran, "c"); return nil })

	require.Error(t, b.Run(context.Background(), "a", "b", "c"))
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestParallel_IsolatesRunsAndCollectsFailures(t *testing.T) {
	b, _ := newBuild(t)

	var mu sync.Mutex
	observed := map[string]string{}
	gate := make(chan struct{})

	record := func(ctx context.Context) error {
		r, err := run.Require(ctx)
		if err != nil {
			return err
		}
		<-gate
		current, _ := run.Current(ctx)
		mu.Lock()
		observed[r.TaskName] = current.TaskName
		mu.Unlock()
		return nil
	}
	b.MustDefine("left", record)
	b.MustDefine("right", record)
	b.MustDefine("broken", func(context.Context) error { return errors.New("broken") })

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(gate)
	}()
	err := b.Parallel(context.Background(), "left", "right", "broken")

	var bf *failure.BuildFailure
	require.True(t, errors.As(err, &bf))
	require.Len(t, bf.Causes, 1)
	assert.Equal(t, "broken", bf.Causes[0].Error())
	assert.Equal(t, map[string]string{"left": "left", "right": "right"}, observed)
}

func TestHere_ReturnsThisFile(t *testing.T) {
	assert.True(t, strings.HasSuffix(Here().String(), "build_test.go"))
}

func TestSetFile_ResetsMetrics(t *testing.T) {
	b, _ := newBuild(t)
	b.MustDefine("noop", func(context.Context) error { return nil })
	require.NoError(t, b.Call(context.Background(), "noop"))

	b.SetFile("/elsewhere/build.go")

	assert.Equal(t, "/elsewhere/build.go", b.File().String())
	assert.Equal(t, "/elsewhere/build.go", b.Metrics().Snapshot().BuildFile)
	assert.Zero(t, b.Metrics().Snapshot().TasksStarted)
}
