// Package workspace coordinates one interactive session: the project registry,
// the open project's tree and tabs, and the jobs started against it.
//
// All session state is owned by the goroutine running Workspace.Run. Commands
// from clients and events from processes and the filesystem watcher are
// funnelled through one unbounded FIFO queue and applied there in order.
package workspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"simplic/internal/build"
	"simplic/internal/errs"
	"simplic/internal/process"
	"simplic/internal/project"
	"simplic/internal/tabs"
	"simplic/internal/tree"
	"simplic/internal/watcher"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStopped is returned by commands issued after Run has returned.
var ErrStopped = errors.New("workspace stopped")

// Options configures a Workspace.
type Options struct {
	Registry     *project.Registry
	Orchestrator *process.Orchestrator
	Pipeline     *build.Pipeline

	// Watch enables the filesystem change hint for the open project.
	Watch         bool
	WatchDebounce time.Duration
	// ShutdownTimeout bounds how long Run waits for jobs when it stops.
	ShutdownTimeout time.Duration

	Logger *zap.Logger
}

// openProject is the state that exists while a project is open.
type openProject struct {
	proj    project.Project
	tree    *tree.Index
	tabs    *tabs.Session
	watcher *watcher.Watcher
}

type pendingBuild struct {
	jobID string
	proj  project.Project
}

// Workspace is the session coordinator.
type Workspace struct {
	queue *queue
	done  chan struct{}
	log   *zap.Logger

	listenerMu sync.Mutex
	listeners  map[string]Listener

	registry *project.Registry
	orch     *process.Orchestrator
	pipeline *build.Pipeline

	watch         bool
	watchDebounce time.Duration
	shutdown      time.Duration

	// Owned by the loop goroutine.
	ctx      context.Context
	stopping bool
	current  *openProject
	builds   map[string]pendingBuild // by project ID
}

// New creates a workspace and registers it as the orchestrator's event sink.
func New(opts Options) *Workspace {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	w := &Workspace{
		queue:         newQueue(),
		done:          make(chan struct{}),
		log:           log,
		listeners:     make(map[string]Listener),
		registry:      opts.Registry,
		orch:          opts.Orchestrator,
		pipeline:      opts.Pipeline,
		watch:         opts.Watch,
		watchDebounce: opts.WatchDebounce,
		shutdown:      opts.ShutdownTimeout,
		ctx:           context.Background(),
		builds:        make(map[string]pendingBuild),
	}
	if w.orch != nil {
		w.orch.SetSink(process.SinkFunc(w.onJobEvent))
	}
	return w
}

// Subscribe registers l for notifications and returns a function that
// removes it. Listeners are called on the loop goroutine and must not block.
func (w *Workspace) Subscribe(l Listener) func() {
	id := uuid.New().String()
	w.listenerMu.Lock()
	w.listeners[id] = l
	w.listenerMu.Unlock()
	return func() {
		w.listenerMu.Lock()
		delete(w.listeners, id)
		w.listenerMu.Unlock()
	}
}

func (w *Workspace) emit(typ NotificationType, payload any) {
	n := Notification{Type: typ, Payload: payload, Time: time.Now().UTC()}
	w.listenerMu.Lock()
	ls := make([]Listener, 0, len(w.listeners))
	for _, l := range w.listeners {
		ls = append(ls, l)
	}
	w.listenerMu.Unlock()
	for _, l := range ls {
		l(n)
	}
}

// Run processes queued work until ctx is done, then stops the watcher and
// cancels running jobs.
func (w *Workspace) Run(ctx context.Context) error {
	w.ctx = ctx
	defer close(w.done)

	w.log.Info("workspace started")
	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil
		case <-w.queue.ready:
			for _, fn := range w.queue.drain() {
				fn()
			}
		}
	}
}

func (w *Workspace) stop() {
	w.stopping = true
	w.queue.close()
	w.log.Info("workspace stopping", zap.Int("pending", w.queue.len()))
	w.closeCurrent()
	if w.orch != nil {
		sctx, cancel := context.WithTimeout(context.Background(), w.shutdown)
		defer cancel()
		if err := w.orch.Shutdown(sctx); err != nil {
			w.log.Warn("jobs still running at shutdown", zap.Error(err))
		}
	}
	// Release callers whose commands never ran.
	for _, fn := range w.queue.drain() {
		fn()
	}
	w.log.Info("workspace stopped")
}

// Do runs fn on the loop goroutine and returns its result. It blocks until fn
// has run, ctx is done or the workspace stops.
func (w *Workspace) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	type reply struct {
		v   any
		err error
	}
	ch := make(chan reply, 1)
	ok := w.queue.push(func() {
		if w.stopping {
			ch <- reply{err: ErrStopped}
			return
		}
		v, err := fn()
		ch <- reply{v, err}
	})
	if !ok {
		return nil, ErrStopped
	}

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.done:
		select {
		case r := <-ch:
			return r.v, r.err
		default:
			return nil, ErrStopped
		}
	}
}

// do is Do with a typed result. A failed command is reported as a notice.
func do[T any](ctx context.Context, w *Workspace, fn func() (T, error)) (T, error) {
	v, err := w.Do(ctx, func() (any, error) {
		v, err := fn()
		if err != nil {
			w.notice(err)
		}
		return v, err
	})
	t, _ := v.(T)
	return t, err
}

func (w *Workspace) notice(err error) {
	if errors.Is(err, ErrStopped) {
		return
	}
	n := Notice{
		Message: errs.Notice(err),
		Output:  string(errs.OutputOf(err)),
	}
	if k := errs.KindOf(err); k != 0 {
		n.Kind = k.String()
	}
	w.log.Debug("notice", zap.String("message", n.Message))
	w.emit(NoteNotice, n)
}

func (w *Workspace) requireProject() (*openProject, error) {
	if w.current == nil {
		return nil, errs.New(errs.NotFound, "workspace", "", "no project is open")
	}
	return w.current, nil
}

func (w *Workspace) closeCurrent() {
	if w.current == nil {
		return
	}
	if w.current.watcher != nil {
		w.current.watcher.Stop()
	}
	w.current.tabs.CloseAll()
	w.current = nil
}

// onJobEvent is the orchestrator sink. It runs on process goroutines and only
// enqueues.
func (w *Workspace) onJobEvent(e process.Event) {
	w.queue.push(func() { w.handleJobEvent(e) })
}

// onTreeChange is the watcher callback.
func (w *Workspace) onTreeChange(root string) {
	w.queue.push(func() {
		if w.current == nil || w.current.tree.Root() != root {
			return
		}
		w.emitTree()
	})
}
