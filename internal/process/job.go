package process

import (
	"context"
	"os/exec"
	"sync"
	"time"
)

// Kind is the action a job performs.
type Kind string

const (
	KindRun   Kind = "run"
	KindDebug Kind = "debug"
	KindBuild Kind = "build"
)

// State is the lifecycle state of a tracked job.
type State string

const (
	StateSpawning  State = "spawning"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Stream identifies a standard stream of the child process.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Chunk is one piece of output as it arrived from a stream.
type Chunk struct {
	JobID  string    `json:"jobId"`
	Seq    uint64    `json:"seq"`
	Stream Stream    `json:"stream"`
	Data   []byte    `json:"data"`
	Time   time.Time `json:"time"`
}

// Info is a snapshot of a job's metadata and state.
type Info struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	Kind      Kind      `json:"kind"`
	State     State     `json:"state"`
	Dir       string    `json:"dir"`
	Args      []string  `json:"args"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
	ExitCode  int       `json:"exitCode"`
	Error     string    `json:"error,omitempty"`
}

// Result is the terminal outcome of a tracked job.
type Result struct {
	JobID    string
	Project  string
	Kind     Kind
	State    State
	ExitCode int
	Output   []byte // combined output in arrival order
	Duration time.Duration
	Err      error // spawn failure, cancellation or missing entry; nil for a plain exit
}

// Success reports whether the process exited with status 0.
func (r Result) Success() bool {
	return r.State == StateSucceeded
}

// Job is a tracked Run or Build invocation.
type Job struct {
	id      string
	project string
	kind    Kind
	dir     string
	args    []string

	mu       sync.Mutex
	state    State
	pid      int
	started  time.Time
	ended    time.Time
	exitCode int
	err      error
	canceled bool

	transcript *Transcript
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	done       chan struct{}
}

// ID returns the job ID.
func (j *Job) ID() string { return j.id }

// Kind returns the job kind.
func (j *Job) Kind() Kind { return j.kind }

// Project returns the project the job belongs to.
func (j *Job) Project() string { return j.project }

// Transcript returns the job's output log.
func (j *Job) Transcript() *Transcript { return j.transcript }

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Info returns a snapshot of the job.
func (j *Job) Info() Info {
	j.mu.Lock()
	defer j.mu.Unlock()
	info := Info{
		ID:        j.id,
		Project:   j.project,
		Kind:      j.kind,
		State:     j.state,
		Dir:       j.dir,
		Args:      append([]string(nil), j.args...),
		PID:       j.pid,
		StartedAt: j.started,
		EndedAt:   j.ended,
		ExitCode:  j.exitCode,
	}
	if j.err != nil {
		info.Error = j.err.Error()
	}
	return info
}

// Result returns the terminal result, or false while the job is running.
func (j *Job) Result() (Result, bool) {
	select {
	case <-j.done:
	default:
		return Result{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return Result{
		JobID:    j.id,
		Project:  j.project,
		Kind:     j.kind,
		State:    j.state,
		ExitCode: j.exitCode,
		Output:   j.transcript.Bytes(),
		Duration: j.ended.Sub(j.started),
		Err:      j.err,
	}, true
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		r, _ := j.Result()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel interrupts the process; it is killed if still alive after the
// grace period. Cancelling a finished job is a no-op.
func (j *Job) Cancel() {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}
	j.canceled = true
	cancel := j.cancel
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stream returns a channel that replays the retained output from the start
// and then follows live output until the job finishes or ctx is done. Each
// call starts a fresh reader; the producer never waits for readers.
func (j *Job) Stream(ctx context.Context) <-chan Chunk {
	ch := make(chan Chunk, 64)
	go func() {
		defer close(ch)
		var seq uint64
		for {
			chunks, next, wait, closed := j.transcript.Since(seq)
			for _, c := range chunks {
				select {
				case ch <- c:
				case <-ctx.Done():
					return
				}
			}
			seq = next
			if len(chunks) > 0 {
				continue
			}
			if closed {
				return
			}
			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Detached is a fire-and-forget process. It has no output capture and no
// terminal status; the process owns its own console.
type Detached struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	Kind      Kind      `json:"kind"`
	PID       int       `json:"pid"`
	Args      []string  `json:"args"`
	StartedAt time.Time `json:"startedAt"`
}
