package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"simplic/internal/errs"
	"simplic/internal/logging"
	"simplic/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultHistoryChunks = 4096
	defaultGracePeriod   = 5 * time.Second
	defaultKeepFinished  = 8
)

// Policy decides what happens to a second Run while one is active for the
// same project.
type Policy string

const (
	// PolicyReject fails the second Run with errs.Busy.
	PolicyReject Policy = "reject"
	// PolicyReplace cancels the active Run and starts the new one. The old
	// job keeps its own transcript.
	PolicyReplace Policy = "replace"
)

// EventType distinguishes the events posted to a Sink.
type EventType string

const (
	EventStarted  EventType = "job.started"
	EventOutput   EventType = "job.output"
	EventFinished EventType = "job.finished"
	EventDetached EventType = "job.detached"
)

// Event is a job lifecycle notification.
type Event struct {
	Type     EventType
	Job      Info
	Chunk    *Chunk
	Detached *Detached
}

// Sink receives job events. Post must not block.
type Sink interface {
	Post(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Post calls f(e).
func (f SinkFunc) Post(e Event) { f(e) }

// Options configures an Orchestrator.
type Options struct {
	Interpreter    string
	DebuggerModule string
	Policy         Policy
	HistoryChunks  int
	GracePeriod    time.Duration
	// KeepFinished bounds the finished jobs kept per project and kind.
	KeepFinished int
	Sink         Sink
	Logger         *zap.Logger
}

type jobKey struct {
	project string
	kind    Kind
}

// Orchestrator spawns and supervises external processes.
type Orchestrator struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	active map[jobKey]*Job
	sink   Sink

	interpreter    string
	debuggerModule string
	policy         Policy
	historyChunks  int
	grace          time.Duration
	keepFinished   int
	log            *zap.Logger
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Policy == "" {
		opts.Policy = PolicyReject
	}
	if opts.HistoryChunks == 0 {
		opts.HistoryChunks = defaultHistoryChunks
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	if opts.KeepFinished <= 0 {
		opts.KeepFinished = defaultKeepFinished
	}
	if opts.DebuggerModule == "" {
		opts.DebuggerModule = "pdb"
	}
	return &Orchestrator{
		jobs:           make(map[string]*Job),
		active:         make(map[jobKey]*Job),
		sink:           opts.Sink,
		interpreter:    opts.Interpreter,
		debuggerModule: opts.DebuggerModule,
		policy:         opts.Policy,
		historyChunks:  opts.HistoryChunks,
		grace:          opts.GracePeriod,
		keepFinished:   opts.KeepFinished,
		log:            logging.OrNop(opts.Logger),
	}
}

// SetSink replaces the event sink.
func (o *Orchestrator) SetSink(s Sink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sink = s
}

func (o *Orchestrator) post(e Event) {
	o.mu.Lock()
	s := o.sink
	o.mu.Unlock()
	if s != nil {
		s.Post(e)
	}
}

// SpawnRun runs "<interpreter> <entryFile>" in workDir without blocking.
//
// If entryFile does not exist no process is spawned: the returned job is
// already terminal with a NotFound error, and the same error is returned.
// A spawn failure is reported the same way with SpawnError. ctx bounds the
// lifetime of the process, not only the spawn.
func (o *Orchestrator) SpawnRun(ctx context.Context, projectID, entryFile, workDir string) (*Job, error) {
	args := []string{o.interpreter, entryFile}
	if err := checkEntry(entryFile, "run"); err != nil {
		return o.failed(projectID, KindRun, workDir, args, err), err
	}
	if o.interpreter == "" {
		err := errs.New(errs.NotFound, "run", "", "no interpreter configured")
		return o.failed(projectID, KindRun, workDir, args, err), err
	}
	return o.start(ctx, projectID, KindRun, workDir, args, o.historyChunks)
}

// SpawnBuild runs cmdArgs (executable first) in workDir without blocking.
// Wait on the returned job for the blocking form. Output is retained in full.
func (o *Orchestrator) SpawnBuild(ctx context.Context, projectID string, cmdArgs []string, workDir string) (*Job, error) {
	if len(cmdArgs) == 0 {
		err := errs.New(errs.SpawnError, "build", "", "empty command")
		return o.failed(projectID, KindBuild, workDir, cmdArgs, err), err
	}
	return o.start(ctx, projectID, KindBuild, workDir, cmdArgs, 0)
}

// SpawnDebug starts "<interpreter> -m <debugger> <entryFile>" detached. The
// process inherits the shell's console and is never tracked.
func (o *Orchestrator) SpawnDebug(projectID, entryFile, workDir string) (*Detached, error) {
	if err := checkEntry(entryFile, "debug"); err != nil {
		return nil, err
	}

	args := []string{o.interpreter, "-m", o.debuggerModule, entryFile}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = workDir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		o.log.Error("debug spawn failed", zap.String("project", projectID), zap.Error(err))
		return nil, spawnError("debug", args[0], err)
	}

	d := &Detached{
		ID:        uuid.New().String(),
		Project:   projectID,
		Kind:      KindDebug,
		PID:       cmd.Process.Pid,
		Args:      args,
		StartedAt: time.Now().UTC(),
	}
	// Reap the child; its exit is not reported.
	go cmd.Wait()

	metrics.JobStarted(string(KindDebug), false)
	o.log.Info("debug session detached", zap.String("project", projectID), zap.Int("pid", d.PID))
	o.post(Event{Type: EventDetached, Detached: d})
	return d, nil
}

// spawnError classifies a failed cmd.Start. A missing executable is reported
// as ToolNotFound so it reads as a configuration problem.
func spawnError(op, exe string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return errs.Wrap(errs.ToolNotFound, op, exe, err)
	}
	return errs.Wrap(errs.SpawnError, op, exe, err)
}

func checkEntry(entryFile, op string) error {
	info, err := os.Stat(entryFile)
	if err != nil {
		return errs.Wrap(errs.NotFound, op, entryFile, err)
	}
	if info.IsDir() {
		return errs.New(errs.NotFound, op, entryFile, "entry is a directory")
	}
	return nil
}

// failed records a job that terminated before a process existed.
func (o *Orchestrator) failed(projectID string, kind Kind, dir string, args []string, cause error) *Job {
	now := time.Now().UTC()
	j := &Job{
		id:         uuid.New().String(),
		project:    projectID,
		kind:       kind,
		dir:        dir,
		args:       args,
		state:      StateFailed,
		started:    now,
		ended:      now,
		exitCode:   -1,
		err:        cause,
		transcript: newTranscript("", 0),
		done:       make(chan struct{}),
	}
	j.transcript.jobID = j.id
	j.transcript.Close()
	close(j.done)

	o.mu.Lock()
	o.jobs[j.id] = j
	o.pruneLocked(jobKey{project: projectID, kind: kind})
	o.mu.Unlock()

	o.log.Warn("job not started", zap.String("project", projectID), zap.String("kind", string(kind)), zap.Error(cause))
	o.post(Event{Type: EventFinished, Job: j.Info()})
	return j
}

func (o *Orchestrator) start(ctx context.Context, projectID string, kind Kind, dir string, args []string, history int) (*Job, error) {
	key := jobKey{project: projectID, kind: kind}

	o.mu.Lock()
	if prev, ok := o.active[key]; ok {
		if kind != KindRun || o.policy == PolicyReject {
			o.mu.Unlock()
			return nil, errs.New(errs.Busy, string(kind), projectID,
				fmt.Sprintf("a %s is already in progress", kind))
		}
		delete(o.active, key)
		o.log.Info("replacing active run", zap.String("project", projectID), zap.String("job", prev.id))
		defer prev.Cancel()
	}

	jobCtx, cancel := context.WithCancel(ctx)
	j := &Job{
		id:      uuid.New().String(),
		project: projectID,
		kind:    kind,
		dir:     dir,
		args:    args,
		state:   StateSpawning,
		started: time.Now().UTC(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	j.transcript = newTranscript(j.id, history)

	cmd := exec.CommandContext(jobCtx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &outputWriter{o: o, job: j, stream: Stdout}
	cmd.Stderr = &outputWriter{o: o, job: j, stream: Stderr}
	cmd.Cancel = func() error {
		// Interrupt first; WaitDelay escalates to a kill.
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = o.grace
	j.cmd = cmd

	o.jobs[j.id] = j
	o.active[key] = j
	o.mu.Unlock()

	if err := cmd.Start(); err != nil {
		cancel()
		j.mu.Lock()
		var spawnErr error
		if j.canceled || ctx.Err() != nil {
			spawnErr = errs.Wrap(errs.Canceled, string(kind), projectID, context.Canceled)
		} else {
			spawnErr = spawnError(string(kind), args[0], err)
		}
		j.state = StateFailed
		j.exitCode = -1
		j.err = spawnErr
		j.ended = time.Now().UTC()
		j.mu.Unlock()

		o.mu.Lock()
		if o.active[key] == j {
			delete(o.active, key)
		}
		o.pruneLocked(key)
		o.mu.Unlock()
		j.transcript.Close()
		close(j.done)

		o.log.Error("spawn failed", zap.String("project", projectID), zap.String("kind", string(kind)), zap.Error(err))
		o.post(Event{Type: EventFinished, Job: j.Info()})
		return j, spawnErr
	}

	j.mu.Lock()
	j.state = StateRunning
	j.pid = cmd.Process.Pid
	j.mu.Unlock()

	metrics.JobStarted(string(kind), true)
	o.log.Info("job started",
		zap.String("project", projectID),
		zap.String("job", j.id),
		zap.String("kind", string(kind)),
		zap.Int("pid", j.pid))
	o.post(Event{Type: EventStarted, Job: j.Info()})

	go o.waitForExit(ctx, j, key)
	return j, nil
}

// outputWriter receives one stream of the child. os/exec copies each stream
// from a single goroutine, so writes arrive in the order produced.
type outputWriter struct {
	o      *Orchestrator
	job    *Job
	stream Stream
}

func (w *outputWriter) Write(p []byte) (int, error) {
	c, ok := w.job.transcript.Append(w.stream, p)
	if ok {
		metrics.OutputCaptured(string(w.job.kind), len(p))
		w.o.post(Event{Type: EventOutput, Job: Info{ID: w.job.id, Project: w.job.project, Kind: w.job.kind, State: StateRunning}, Chunk: &c})
	}
	return len(p), nil
}

// waitForExit waits for the subprocess to exit and records the terminal state.
func (o *Orchestrator) waitForExit(parent context.Context, j *Job, key jobKey) {
	err := j.cmd.Wait()
	j.cancel()

	j.mu.Lock()
	j.ended = time.Now().UTC()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		j.state = StateSucceeded
		j.exitCode = 0
	case j.canceled || parent.Err() != nil:
		j.state = StateFailed
		j.exitCode = -1
		if errors.As(err, &exitErr) {
			j.exitCode = exitErr.ExitCode()
		}
		j.err = errs.Wrap(errs.Canceled, string(j.kind), j.project, context.Canceled)
	case errors.Is(err, exec.ErrWaitDelay) && j.cmd.ProcessState != nil && j.cmd.ProcessState.ExitCode() == 0:
		// Exited cleanly; a descendant kept the output pipes open.
		j.state = StateSucceeded
		j.exitCode = 0
	case errors.As(err, &exitErr):
		j.state = StateFailed
		j.exitCode = exitErr.ExitCode()
	default:
		j.state = StateFailed
		j.exitCode = -1
		j.err = errs.Wrap(errs.IOError, string(j.kind), j.project, err)
	}
	state, exitCode := j.state, j.exitCode
	j.mu.Unlock()

	j.transcript.Close()

	o.mu.Lock()
	if o.active[key] == j {
		delete(o.active, key)
	}
	o.pruneLocked(key)
	o.mu.Unlock()
	close(j.done)

	metrics.JobFinished(string(j.kind), string(state))
	o.log.Info("job finished",
		zap.String("project", j.project),
		zap.String("job", j.id),
		zap.String("kind", string(j.kind)),
		zap.String("state", string(state)),
		zap.Int("exit_code", exitCode))
	o.post(Event{Type: EventFinished, Job: j.Info()})
}

// Get returns a job by ID.
func (o *Orchestrator) Get(id string) (*Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	j, ok := o.jobs[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "job.get", id, "job not found")
	}
	return j, nil
}

// Active returns the running job of kind for project, or nil.
func (o *Orchestrator) Active(projectID string, kind Kind) *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[jobKey{project: projectID, kind: kind}]
}

// List returns all known jobs, oldest first.
func (o *Orchestrator) List() []Info {
	o.mu.Lock()
	jobs := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		jobs = append(jobs, j)
	}
	o.mu.Unlock()

	out := make([]Info, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Info())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out
}

// Cancel cancels a job by ID.
func (o *Orchestrator) Cancel(id string) error {
	j, err := o.Get(id)
	if err != nil {
		return err
	}
	j.Cancel()
	return nil
}

// pruneLocked drops the oldest finished jobs of key beyond keepFinished.
// o.mu must be held.
func (o *Orchestrator) pruneLocked(key jobKey) {
	var finished []*Job
	for _, j := range o.jobs {
		if j.project == key.project && j.kind == key.kind && j.State().Terminal() {
			finished = append(finished, j)
		}
	}
	if len(finished) <= o.keepFinished {
		return
	}
	sort.Slice(finished, func(i, k int) bool { return finished[i].started.Before(finished[k].started) })
	for _, j := range finished[:len(finished)-o.keepFinished] {
		delete(o.jobs, j.id)
	}
}

// Shutdown cancels all running jobs and waits for them until ctx is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	running := make([]*Job, 0, len(o.active))
	for _, j := range o.active {
		running = append(running, j)
	}
	o.mu.Unlock()

	for _, j := range running {
		j.Cancel()
	}
	for _, j := range running {
		select {
		case <-j.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
