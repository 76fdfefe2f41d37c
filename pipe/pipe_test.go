package pipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/plug/failure"
	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/log"
	"github.com/justapithecus/plug/metrics"
	"github.com/justapithecus/plug/paths"
	"github.com/justapithecus/plug/run"
)

func taskContext(t *testing.T, task string) (context.Context, *run.Run) {
	t.Helper()
	r := run.New("/project/build.go", task, log.Nop())
	r.Metrics = metrics.NewCollector("")
	return run.With(context.Background(), r), r
}

func mustFiles(t *testing.T, dir paths.AbsolutePath, list ...string) *files.Files {
	t.Helper()
	f, err := files.From(dir, list...)
	require.NoError(t, err)
	return f
}

// appendPlug adds one path to whatever it receives.
func appendPlug(name string) Plug {
	return PlugFunc(func(_ context.Context, in *files.Files, _ *run.Run) (*files.Files, error) {
		b := files.NewBuilder(in.Directory())
		if err := b.Merge(in); err != nil {
			return nil, err
		}
		if err := b.Add(name); err != nil {
			return nil, err
		}
		return b.Build()
	})
}

var terminalPlug = PlugFunc(func(context.Context, *files.Files, *run.Run) (*files.Files, error) {
	return nil, nil
})

func TestExtend_RunsStagesInOrder(t *testing.T) {
	ctx, _ := taskContext(t, "order")

	var mu sync.Mutex
	var order []string
	record := func(name string, delay time.Duration) Plug {
		return PlugFunc(func(_ context.Context, in *files.Files, _ *run.Run) (*files.Files, error) {
			time.Sleep(delay)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return in, nil
		})
	}

	f, err := From(ctx, mustFiles(t, "/project", "a")).
		Extend(record("first", 20*time.Millisecond)).
		Extend(record("second", 0)).
		Extend(record("third", 5*time.Millisecond)).
		Wait()

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, f.Paths())
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestExtend_PassesOutputToNextStage(t *testing.T) {
	ctx, r := taskContext(t, "chain")

	f, err := From(ctx, mustFiles(t, "/project", "a")).
		Extend(appendPlug("b")).
		Extend(appendPlug("c")).
		Wait()

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, f.Paths())
	assert.Equal(t, int64(2), r.Metrics.Snapshot().StagesRun)
}

func TestExtend_PlugSeesRunAndContext(t *testing.T) {
	ctx, r := taskContext(t, "sees-run")

	var gotRun, ctxRun *run.Run
	_, err := From(ctx, mustFiles(t, "/project", "a")).
		Extend(PlugFunc(func(ctx context.Context, in *files.Files, pr *run.Run) (*files.Files, error) {
			gotRun = pr
			ctxRun, _ = run.Current(ctx)
			return in, nil
		})).
		Wait()

	require.NoError(t, err)
	assert.Same(t, r, gotRun)
	assert.Same(t, r, ctxRun)
}

func TestExtend_ShortCircuitsOnFailure(t *testing.T) {
	ctx, r := taskContext(t, "short-circuit")
	boom := errors.New("boom")

	var invoked atomic.Bool
	never := PlugFunc(func(context.Context, *files.Files, *run.Run) (*files.Files, error) {
		invoked.Store(true)
		return nil, nil
	})

	_, err := Rejected(ctx, r, boom).Extend(never).Extend(never).Wait()

	assert.Same(t, boom, err)
	assert.False(t, invoked.Load())
	assert.Equal(t, int64(2), r.Metrics.Snapshot().StagesSkipped)
}

func TestExtend_FailingStageStopsChain(t *testing.T) {
	ctx, _ := taskContext(t, "failing-stage")
	boom := errors.New("boom")

	var invoked atomic.Bool
	_, err := From(ctx, mustFiles(t, "/project", "a")).
		Extend(PlugFunc(func(context.Context, *files.Files, *run.Run) (*files.Files, error) {
			return nil, boom
		})).
		Extend(PlugFunc(func(_ context.Context, in *files.Files, _ *run.Run) (*files.Files, error) {
			invoked.Store(true)
			return in, nil
		})).
		Wait()

	assert.Same(t, boom, err)
	assert.False(t, invoked.Load())
}

func TestExtend_AfterTerminalStage(t *testing.T) {
	ctx, _ := taskContext(t, "terminal")

	terminal := From(ctx, mustFiles(t, "/project", "a")).Extend(terminalPlug)
	f, err := terminal.Wait()
	require.NoError(t, err)
	assert.Nil(t, f)

	var invoked atomic.Bool
	_, err = terminal.Extend(PlugFunc(func(_ context.Context, in *files.Files, _ *run.Run) (*files.Files, error) {
		invoked.Store(true)
		return in, nil
	})).Wait()

	var extendErr *ExtendError
	require.True(t, errors.As(err, &extendErr))
	assert.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, "pipe cannot be further extended", err.Error())
	assert.False(t, invoked.Load())
}

func TestExtend_DoesNotMutateReceiver(t *testing.T) {
	ctx, _ := taskContext(t, "immutable")
	base := From(ctx, mustFiles(t, "/project", "a"))

	left, err := base.Extend(appendPlug("left")).Wait()
	require.NoError(t, err)
	right, err := base.Extend(appendPlug("right")).Wait()
	require.NoError(t, err)
	original, err := base.Wait()
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "left"}, left.Paths())
	assert.Equal(t, []string{"a", "right"}, right.Paths())
	assert.Equal(t, []string{"a"}, original.Paths())
}

func TestExtend_PanicFailsPipe(t *testing.T) {
	ctx, _ := taskContext(t, "panic")

	_, err := From(ctx, mustFiles(t, "/project", "a")).
		Extend(PlugFunc(func(context.Context, *files.Files, *run.Run) (*files.Files, error) {
			panic("kaboom")
		})).
		Wait()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestFrom_OutsideTask(t *testing.T) {
	p := From(context.Background(), mustFiles(t, "/project", "a"))

	_, err := p.Wait()
	var ctxErr *run.ContextError
	assert.True(t, errors.As(err, &ctxErr))
	assert.Nil(t, p.Run())

	_, err = p.Extend(appendPlug("b")).Wait()
	assert.True(t, errors.As(err, &ctxErr))
}

func TestThenAndFinally(t *testing.T) {
	ctx, r := taskContext(t, "observers")

	resolved := make(chan *files.Files, 1)
	rejected := make(chan error, 1)
	finished := make(chan struct{}, 2)

	ok := From(ctx, mustFiles(t, "/project", "a"))
	ok.Then(func(f *files.Files) { resolved <- f }, func(err error) { rejected <- err })
	ok.Finally(func() { finished <- struct{}{} })

	boom := errors.New("boom")
	bad := Rejected(ctx, r, boom)
	bad.Then(nil, func(err error) { rejected <- err })
	bad.Finally(func() { finished <- struct{}{} })

	select {
	case f := <-resolved:
		assert.Equal(t, []string{"a"}, f.Paths())
	case <-time.After(time.Second):
		t.Fatal("onResolved not called")
	}
	select {
	case err := <-rejected:
		assert.Same(t, boom, err)
	case <-time.After(time.Second):
		t.Fatal("onRejected not called")
	}
	for range 2 {
		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("finally not called")
		}
	}
}

func TestDone_ClosesOnSettle(t *testing.T) {
	ctx, r := taskContext(t, "done")
	release := make(chan struct{})

	p := Go(ctx, r, func(context.Context) (*files.Files, error) {
		<-release
		return nil, nil
	})

	select {
	case <-p.Done():
		t.Fatal("pipe settled early")
	default:
	}

	close(release)
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pipe never settled")
	}
}

func TestConcurrentPipesSeeOwnRun(t *testing.T) {
	ctxA, runA := taskContext(t, "concurrent-a")
	ctxB, runB := taskContext(t, "concurrent-b")

	aStarted := make(chan struct{})
	bStarted := make(chan struct{})

	observe := func(mine, other chan struct{}) Plug {
		return PlugFunc(func(ctx context.Context, in *files.Files, pr *run.Run) (*files.Files, error) {
			close(mine)
			<-other
			current, _ := run.Current(ctx)
			if current != pr {
				return nil, fmt.Errorf("context run %s differs from plug run %s", current.TaskName, pr.TaskName)
			}
			return files.From(in.Directory(), current.TaskName)
		})
	}

	pa := From(ctxA, mustFiles(t, "/project", "a")).Extend(observe(aStarted, bStarted))
	pb := From(ctxB, mustFiles(t, "/project", "b")).Extend(observe(bStarted, aStarted))

	fa, err := pa.Wait()
	require.NoError(t, err)
	fb, err := pb.Wait()
	require.NoError(t, err)

	assert.Equal(t, []string{runA.TaskName}, fa.Paths())
	assert.Equal(t, []string{runB.TaskName}, fb.Paths())
}

func TestMerge_CombinesUnderCommonAncestor(t *testing.T) {
	ctx, _ := taskContext(t, "merge")

	left := From(ctx, mustFiles(t, "/x/y/a", "one", "shared"))
	right := From(ctx, mustFiles(t, "/x/y/b", "two"))
	terminal := From(ctx, mustFiles(t, "/x", "ignored")).Extend(terminalPlug)

	f, err := Merge(ctx, left, right, terminal).Wait()

	require.NoError(t, err)
	assert.Equal(t, paths.AbsolutePath("/x/y"), f.Directory())
	assert.Equal(t, []string{"a/one", "a/shared", "b/two"}, f.Paths())
}

func TestMerge_CollectsEveryFailure(t *testing.T) {
	ctx, r := taskContext(t, "merge-failures")
	first := errors.New("first")
	second := errors.New("second")

	var slowRan atomic.Bool
	slow := Go(ctx, r, func(context.Context) (*files.Files, error) {
		time.Sleep(20 * time.Millisecond)
		slowRan.Store(true)
		return nil, second
	})

	_, err := Merge(ctx, Rejected(ctx, r, first), slow, From(ctx, mustFiles(t, "/p", "ok"))).Wait()

	assert.True(t, slowRan.Load())
	var bf *failure.BuildFailure
	require.True(t, errors.As(err, &bf))
	assert.False(t, bf.Reported())
	assert.Equal(t, []error{first, second}, bf.Causes)
}

func TestMerge_AllFailuresAlreadyReported(t *testing.T) {
	ctx, r := taskContext(t, "merge-reported")

	_, err := Merge(ctx,
		Rejected(ctx, r, failure.Reported("child one")),
		Rejected(ctx, r, failure.Reported("child two")),
	).Wait()

	var bf *failure.BuildFailure
	require.True(t, errors.As(err, &bf))
	assert.True(t, bf.Reported())
	assert.Empty(t, bf.Causes)
}

func TestMerge_Empty(t *testing.T) {
	ctx, r := taskContext(t, "merge-empty")

	f, err := Merge(ctx).Wait()

	require.NoError(t, err)
	assert.Equal(t, r.BuildDir, f.Directory())
	assert.Zero(t, f.Len())
}

func TestMerge_OutsideTask(t *testing.T) {
	_, err := Merge(context.Background()).Wait()
	var ctxErr *run.ContextError
	assert.True(t, errors.As(err, &ctxErr))
}
