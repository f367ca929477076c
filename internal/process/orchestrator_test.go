package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"simplic/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Post(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestOrchestrator(t *testing.T, policy Policy, sink Sink) *Orchestrator {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	return New(Options{
		Interpreter: "/bin/sh",
		Policy:      policy,
		GracePeriod: 200 * time.Millisecond,
		Sink:        sink,
	})
}

func writeScript(t *testing.T, body string) (dir, entry string) {
	t.Helper()
	dir = t.TempDir()
	entry = filepath.Join(dir, "main.py")
	require.NoError(t, os.WriteFile(entry, []byte(body), 0644))
	return dir, entry
}

func waitJob(t *testing.T, j *Job) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := j.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestSpawnRun_Success(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "echo hello\necho oops 1>&2\n")

	j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)

	res := waitJob(t, j)
	assert.True(t, res.Success())
	assert.Equal(t, 0, res.ExitCode)
	assert.NoError(t, res.Err)
	assert.Contains(t, string(res.Output), "hello")
	assert.Contains(t, string(res.Output), "oops")
	assert.Nil(t, o.Active("demo", KindRun))
}

func TestSpawnRun_WorkingDirectory(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "pwd\n")

	j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)

	res := waitJob(t, j)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(string(res.Output)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSpawnRun_NonZeroExit(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "exit 3\n")

	j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)

	res := waitJob(t, j)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 3, res.ExitCode)
	assert.NoError(t, res.Err)
}

func TestSpawnRun_MissingEntry(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, PolicyReject, rec)
	dir := t.TempDir()

	j, err := o.SpawnRun(context.Background(), "demo", filepath.Join(dir, "main.py"), dir)
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	require.NotNil(t, j)
	res, ok := j.Result()
	require.True(t, ok)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 0, j.Info().PID)
	assert.Equal(t, []EventType{EventFinished}, rec.types())
}

func TestSpawnRun_RejectWhileActive(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "exec sleep 5\n")

	first, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)

	_, err = o.SpawnRun(context.Background(), "demo", entry, dir)
	assert.Equal(t, errs.Busy, errs.KindOf(err))

	// Another project is independent.
	other, err := o.SpawnRun(context.Background(), "other", entry, dir)
	require.NoError(t, err)

	require.NoError(t, o.Cancel(first.ID()))
	other.Cancel()

	res := waitJob(t, first)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, errs.Canceled, errs.KindOf(res.Err))
	waitJob(t, other)
}

func TestSpawnRun_ReplaceCancelsPrevious(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReplace, nil)
	dir, entry := writeScript(t, "exec sleep 5\n")

	first, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)
	second, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)

	res := waitJob(t, first)
	assert.Equal(t, errs.Canceled, errs.KindOf(res.Err))
	assert.Equal(t, second, o.Active("demo", KindRun))

	second.Cancel()
	waitJob(t, second)
	assert.Nil(t, o.Active("demo", KindRun))
}

func TestSpawnRun_ContextCancel(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "exec sleep 5\n")

	ctx, cancel := context.WithCancel(context.Background())
	j, err := o.SpawnRun(ctx, "demo", entry, dir)
	require.NoError(t, err)
	cancel()

	res := waitJob(t, j)
	assert.Equal(t, errs.Canceled, errs.KindOf(res.Err))
}

func TestSpawnRun_Events(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, PolicyReject, rec)
	dir, entry := writeScript(t, "echo one\n")

	j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)
	waitJob(t, j)

	types := rec.types()
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, EventStarted, types[0])
	assert.Equal(t, EventOutput, types[1])
	assert.Equal(t, EventFinished, types[len(types)-1])

	rec.mu.Lock()
	last := rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	assert.Equal(t, StateSucceeded, last.Job.State)
	assert.Equal(t, j.ID(), last.Job.ID)
}

func TestJob_StreamReplaysAfterExit(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "echo a\necho b\n")

	j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)
	waitJob(t, j)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got strings.Builder
	for c := range j.Stream(ctx) {
		got.Write(c.Data)
	}
	assert.Equal(t, "a\nb\n", got.String())
}

func TestJob_StreamFollowsLive(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "echo first\nsleep 0.2\necho second\n")

	j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got strings.Builder
	for c := range j.Stream(ctx) {
		got.Write(c.Data)
	}
	assert.Equal(t, "first\nsecond\n", got.String())
}

func TestSpawnBuild_AlwaysRejectsSecond(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReplace, nil)
	dir := t.TempDir()

	j, err := o.SpawnBuild(context.Background(), "demo", []string{"/bin/sh", "-c", "exec sleep 5"}, dir)
	require.NoError(t, err)

	_, err = o.SpawnBuild(context.Background(), "demo", []string{"/bin/sh", "-c", "true"}, dir)
	assert.Equal(t, errs.Busy, errs.KindOf(err))

	j.Cancel()
	waitJob(t, j)
}

func TestSpawnBuild_SpawnError(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir := t.TempDir()

	// Present but not executable.
	tool := filepath.Join(dir, "packager")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\n"), 0644))

	j, err := o.SpawnBuild(context.Background(), "demo", []string{tool}, dir)
	assert.Equal(t, errs.SpawnError, errs.KindOf(err))
	require.NotNil(t, j)
	assert.Equal(t, StateFailed, j.State())
	assert.Nil(t, o.Active("demo", KindBuild))

	_, err = o.SpawnBuild(context.Background(), "demo", nil, dir)
	assert.Equal(t, errs.SpawnError, errs.KindOf(err))
	_, err = o.SpawnBuild(context.Background(), "demo", []string{"/nonexistent/packager"}, dir)
	assert.Equal(t, errs.ToolNotFound, errs.KindOf(err))
}

func TestSpawnDebug(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, PolicyReject, rec)
	dir, entry := writeScript(t, "exit 0\n")

	_, err := o.SpawnDebug("demo", filepath.Join(dir, "missing.py"), dir)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	d, err := o.SpawnDebug("demo", entry, dir)
	require.NoError(t, err)
	assert.Greater(t, d.PID, 0)
	assert.Equal(t, KindDebug, d.Kind)
	assert.Equal(t, []string{"/bin/sh", "-m", "pdb", entry}, d.Args)
	assert.Empty(t, o.List())
	assert.Equal(t, []EventType{EventDetached}, rec.types())
}

func TestGetAndCancelNotFound(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)

	_, err := o.Get("nonexistent")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
	assert.Equal(t, errs.NotFound, errs.KindOf(o.Cancel("nonexistent")))
}

func TestList(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "true\n")

	j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)
	waitJob(t, j)

	list := o.List()
	require.Len(t, list, 1)
	assert.Equal(t, j.ID(), list[0].ID)
}

func TestFinishedJobsAreBounded(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	o := New(Options{Interpreter: "/bin/sh", KeepFinished: 2, GracePeriod: 200 * time.Millisecond})
	dir, entry := writeScript(t, "true\n")

	var ids []string
	for i := 0; i < 4; i++ {
		j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
		require.NoError(t, err)
		waitJob(t, j)
		ids = append(ids, j.ID())
	}
	// Another project keeps its own allowance.
	other, err := o.SpawnRun(context.Background(), "other", entry, dir)
	require.NoError(t, err)
	waitJob(t, other)

	list := o.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[2], ids[3], other.ID()}, []string{list[0].ID, list[1].ID, list[2].ID})

	_, err = o.Get(ids[0])
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSpawnRun_ReplaceKeepsPreviousOutput(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReplace, nil)
	dir, firstEntry := writeScript(t, "echo first\nexec sleep 5\n")
	_, secondEntry := writeScript(t, "echo second\n")

	first, err := o.SpawnRun(context.Background(), "demo", firstEntry, dir)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return string(first.Transcript().Bytes()) == "first\n"
	}, 5*time.Second, 10*time.Millisecond)

	second, err := o.SpawnRun(context.Background(), "demo", secondEntry, dir)
	require.NoError(t, err)
	waitJob(t, first)
	waitJob(t, second)

	assert.Equal(t, "first\n", string(first.Transcript().Bytes()))
	for _, c := range first.Transcript().ReadAll() {
		assert.Equal(t, first.ID(), c.JobID)
	}
	assert.Equal(t, "second\n", string(second.Transcript().Bytes()))
	for _, c := range second.Transcript().ReadAll() {
		assert.Equal(t, second.ID(), c.JobID)
	}
}

func TestSpawnRun_AlreadyCanceledContext(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "echo never\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j, err := o.SpawnRun(ctx, "demo", entry, dir)
	assert.Equal(t, errs.Canceled, errs.KindOf(err))
	require.NotNil(t, j)
	assert.Equal(t, StateFailed, j.State())
	assert.Nil(t, o.Active("demo", KindRun))
}

func TestSpawnRun_DescendantHoldsOutputOpen(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "sleep 2 &\necho done\n")

	j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)

	res := waitJob(t, j)
	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, 0, res.ExitCode)
	assert.NoError(t, res.Err)
	assert.Contains(t, string(res.Output), "done")
}

func TestSpawnRun_InterpreterMissing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX PATH lookup")
	}
	o := New(Options{Interpreter: "definitely-not-an-interpreter-xyz"})
	dir, entry := writeScript(t, "echo hi\n")

	j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	assert.Equal(t, errs.ToolNotFound, errs.KindOf(err))
	assert.ErrorIs(t, err, errs.ErrNotFound)
	require.NotNil(t, j)
	assert.Equal(t, StateFailed, j.State())

	_, err = o.SpawnDebug("demo", entry, dir)
	assert.Equal(t, errs.ToolNotFound, errs.KindOf(err))
}

func TestShutdown(t *testing.T) {
	o := newTestOrchestrator(t, PolicyReject, nil)
	dir, entry := writeScript(t, "exec sleep 5\n")

	j, err := o.SpawnRun(context.Background(), "demo", entry, dir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))
	assert.True(t, j.State().Terminal())
}
