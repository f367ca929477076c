package workspace

import (
	"context"

	"simplic/internal/errs"
	"simplic/internal/process"
	"simplic/internal/project"
	"simplic/internal/tabs"
	"simplic/internal/tree"
	"simplic/internal/watcher"

	"go.uber.org/zap"
)

// Projects

// ListProjects returns the projects whose name contains filter.
func (w *Workspace) ListProjects(ctx context.Context, filter string) ([]project.Project, error) {
	return do(ctx, w, func() ([]project.Project, error) {
		return w.registry.List(filter)
	})
}

// CreateProject creates a project and opens it.
func (w *Workspace) CreateProject(ctx context.Context, name string, t project.Type) (ProjectOpened, error) {
	return do(ctx, w, func() (ProjectOpened, error) {
		p, err := w.registry.Create(name, t)
		if err != nil {
			return ProjectOpened{}, err
		}
		return w.open(p)
	})
}

// OpenProject opens the project called name under the projects root.
func (w *Workspace) OpenProject(ctx context.Context, name string) (ProjectOpened, error) {
	return do(ctx, w, func() (ProjectOpened, error) {
		p, err := w.registry.Open(name)
		if err != nil {
			return ProjectOpened{}, err
		}
		return w.open(p)
	})
}

// OpenPath opens an existing folder anywhere as the current project.
func (w *Workspace) OpenPath(ctx context.Context, dir string) (ProjectOpened, error) {
	return do(ctx, w, func() (ProjectOpened, error) {
		p, err := project.OpenPath(dir)
		if err != nil {
			return ProjectOpened{}, err
		}
		return w.open(p)
	})
}

// Current returns the open project.
func (w *Workspace) Current(ctx context.Context) (project.Project, error) {
	return do(ctx, w, func() (project.Project, error) {
		cur, err := w.requireProject()
		if err != nil {
			return project.Project{}, err
		}
		return cur.proj, nil
	})
}

// open replaces the current project. Tabs of the previous project are
// dropped. On failure the previous project stays open.
func (w *Workspace) open(p project.Project) (ProjectOpened, error) {
	ix, err := tree.New(p.Root, w.log)
	if err != nil {
		return ProjectOpened{}, err
	}
	entries, err := ix.Walk(treeDepth)
	if err != nil {
		return ProjectOpened{}, err
	}

	w.closeCurrent()
	cur := &openProject{
		proj: p,
		tree: ix,
		tabs: tabs.NewSession(p.Root, w.log),
	}
	if w.watch {
		wt := watcher.New(ix.Root(), w.onTreeChange, w.log)
		if w.watchDebounce > 0 {
			wt.SetDebounce(w.watchDebounce)
		}
		if err := wt.Start(); err != nil {
			w.log.Warn("watch failed", zap.String("project", p.ID), zap.Error(err))
		} else {
			cur.watcher = wt
		}
	}
	w.current = cur

	w.log.Info("project opened", zap.String("project", p.ID), zap.String("type", string(p.Type)))
	opened := ProjectOpened{Project: p, Tree: entries}
	w.emit(NoteProjectOpened, opened)
	w.emit(NoteTabChanged, TabChanged{Project: p.ID, Tabs: cur.tabs.Snapshots()})
	return opened, nil
}

// Tree

// ListTree lists one directory of the open project.
func (w *Workspace) ListTree(ctx context.Context, dir string) ([]tree.Entry, error) {
	return do(ctx, w, func() ([]tree.Entry, error) {
		cur, err := w.requireProject()
		if err != nil {
			return nil, err
		}
		return cur.tree.List(dir)
	})
}

// WalkTree returns the nested tree of the open project.
func (w *Workspace) WalkTree(ctx context.Context, maxDepth int) ([]tree.Entry, error) {
	return do(ctx, w, func() ([]tree.Entry, error) {
		cur, err := w.requireProject()
		if err != nil {
			return nil, err
		}
		return cur.tree.Walk(maxDepth)
	})
}

// CreateFile creates an empty file and returns its root-relative path.
func (w *Workspace) CreateFile(ctx context.Context, dir, name string) (string, error) {
	return w.mutateTree(ctx, func(ix *tree.Index) (string, error) {
		return ix.Create(dir, name)
	})
}

// CreateDir creates a directory and returns its root-relative path.
func (w *Workspace) CreateDir(ctx context.Context, dir, name string) (string, error) {
	return w.mutateTree(ctx, func(ix *tree.Index) (string, error) {
		return ix.CreateDir(dir, name)
	})
}

// DeletePath removes a file or directory tree.
func (w *Workspace) DeletePath(ctx context.Context, path string) error {
	_, err := w.mutateTree(ctx, func(ix *tree.Index) (string, error) {
		return path, ix.Delete(path)
	})
	return err
}

// RenamePath renames an entry in place and returns its new path.
func (w *Workspace) RenamePath(ctx context.Context, path, newName string) (string, error) {
	return w.mutateTree(ctx, func(ix *tree.Index) (string, error) {
		return ix.Rename(path, newName)
	})
}

func (w *Workspace) mutateTree(ctx context.Context, fn func(*tree.Index) (string, error)) (string, error) {
	return do(ctx, w, func() (string, error) {
		cur, err := w.requireProject()
		if err != nil {
			return "", err
		}
		p, err := fn(cur.tree)
		if err != nil {
			return "", err
		}
		w.emitTree()
		return p, nil
	})
}

func (w *Workspace) emitTree() {
	entries, err := w.current.tree.Walk(treeDepth)
	if err != nil {
		w.log.Warn("tree refresh failed", zap.String("project", w.current.proj.ID), zap.Error(err))
		return
	}
	w.emit(NoteTreeChanged, TreeChanged{Project: w.current.proj.ID, Tree: entries})
}

// Tabs

// OpenTab opens path in a tab, or focuses the tab already open for its
// filename. A missing file opens nothing; other read failures still open a
// tab showing the error, returned alongside the snapshot.
func (w *Workspace) OpenTab(ctx context.Context, path string) (tabs.Snapshot, error) {
	return do(ctx, w, func() (tabs.Snapshot, error) {
		cur, err := w.requireProject()
		if err != nil {
			return tabs.Snapshot{}, err
		}
		abs, err := cur.tree.Abs(path)
		if err != nil {
			return tabs.Snapshot{}, err
		}
		t, _, openErr := cur.tabs.Open(abs)
		if t == nil {
			return tabs.Snapshot{}, openErr
		}
		w.emitTabs()
		snap, _ := cur.tabs.Snapshot(t.Filename)
		return snap, openErr
	})
}

// EditTab replaces a tab's buffer.
func (w *Workspace) EditTab(ctx context.Context, filename, content string) (tabs.Snapshot, error) {
	return w.tabOp(ctx, filename, func(s *tabs.Session) error {
		_, err := s.Edit(filename, content)
		return err
	})
}

// SaveTab writes a tab's buffer to disk.
func (w *Workspace) SaveTab(ctx context.Context, filename string) (tabs.Snapshot, error) {
	return w.tabOp(ctx, filename, func(s *tabs.Session) error {
		return s.Save(filename)
	})
}

// FocusTab makes a tab active.
func (w *Workspace) FocusTab(ctx context.Context, filename string) (tabs.Snapshot, error) {
	return w.tabOp(ctx, filename, func(s *tabs.Session) error {
		return s.Focus(filename)
	})
}

// CloseTab closes a tab. Unsaved edits are discarded.
func (w *Workspace) CloseTab(ctx context.Context, filename string) error {
	_, err := do(ctx, w, func() (struct{}, error) {
		cur, err := w.requireProject()
		if err != nil {
			return struct{}{}, err
		}
		if err := cur.tabs.Close(filename); err != nil {
			return struct{}{}, err
		}
		w.emitTabs()
		return struct{}{}, nil
	})
	return err
}

// Tabs returns the open tabs in open order.
func (w *Workspace) Tabs(ctx context.Context) ([]tabs.Snapshot, error) {
	return do(ctx, w, func() ([]tabs.Snapshot, error) {
		cur, err := w.requireProject()
		if err != nil {
			return nil, err
		}
		return cur.tabs.Snapshots(), nil
	})
}

func (w *Workspace) tabOp(ctx context.Context, filename string, fn func(*tabs.Session) error) (tabs.Snapshot, error) {
	return do(ctx, w, func() (tabs.Snapshot, error) {
		cur, err := w.requireProject()
		if err != nil {
			return tabs.Snapshot{}, err
		}
		if err := fn(cur.tabs); err != nil {
			return tabs.Snapshot{}, err
		}
		w.emitTabs()
		return cur.tabs.Snapshot(filename)
	})
}

func (w *Workspace) emitTabs() {
	w.emit(NoteTabChanged, TabChanged{Project: w.current.proj.ID, Tabs: w.current.tabs.Snapshots()})
}

// Jobs

// RunProject runs the open project's entry file. The job outlives ctx; it is
// bound to the workspace.
func (w *Workspace) RunProject(ctx context.Context) (process.Info, error) {
	return do(ctx, w, func() (process.Info, error) {
		cur, err := w.requireProject()
		if err != nil {
			return process.Info{}, err
		}
		job, err := w.orch.SpawnRun(w.ctx, cur.proj.ID, cur.proj.EntryPath(), cur.proj.Root)
		if job == nil {
			return process.Info{}, err
		}
		return job.Info(), err
	})
}

// DebugProject starts a detached debugger on the open project's entry file.
func (w *Workspace) DebugProject(ctx context.Context) (*process.Detached, error) {
	return do(ctx, w, func() (*process.Detached, error) {
		cur, err := w.requireProject()
		if err != nil {
			return nil, err
		}
		return w.orch.SpawnDebug(cur.proj.ID, cur.proj.EntryPath(), cur.proj.Root)
	})
}

// StartBuild starts building the open project and returns immediately. The
// result arrives as a build.finished notification.
func (w *Workspace) StartBuild(ctx context.Context) (process.Info, error) {
	return do(ctx, w, func() (process.Info, error) {
		cur, err := w.requireProject()
		if err != nil {
			return process.Info{}, err
		}
		if _, ok := w.builds[cur.proj.ID]; ok {
			return process.Info{}, errs.New(errs.Busy, "build", cur.proj.ID, "a build is already in progress")
		}
		job, err := w.pipeline.Start(w.ctx, cur.proj)
		if err != nil {
			if job != nil {
				return job.Info(), err
			}
			return process.Info{}, err
		}
		w.builds[cur.proj.ID] = pendingBuild{jobID: job.ID(), proj: cur.proj}
		return job.Info(), nil
	})
}

// BuildInProgress reports whether the open project is being built.
func (w *Workspace) BuildInProgress(ctx context.Context) (bool, error) {
	return do(ctx, w, func() (bool, error) {
		cur, err := w.requireProject()
		if err != nil {
			return false, err
		}
		_, ok := w.builds[cur.proj.ID]
		return ok, nil
	})
}

// CancelJob cancels a tracked job.
func (w *Workspace) CancelJob(ctx context.Context, id string) error {
	_, err := do(ctx, w, func() (struct{}, error) {
		return struct{}{}, w.orch.Cancel(id)
	})
	return err
}

// Jobs lists the tracked jobs.
func (w *Workspace) Jobs(ctx context.Context) ([]process.Info, error) {
	return do(ctx, w, func() ([]process.Info, error) {
		return w.orch.List(), nil
	})
}

// Job returns a tracked job for streaming its transcript. It does not go
// through the queue.
func (w *Workspace) Job(id string) (*process.Job, error) {
	return w.orch.Get(id)
}

func (w *Workspace) handleJobEvent(e process.Event) {
	switch e.Type {
	case process.EventStarted:
		w.emit(NoteJobStarted, e.Job)
	case process.EventOutput:
		w.emit(NoteJobOutput, JobOutput{
			JobID:   e.Job.ID,
			Project: e.Job.Project,
			Kind:    e.Job.Kind,
			Seq:     e.Chunk.Seq,
			Stream:  e.Chunk.Stream,
			Data:    string(e.Chunk.Data),
		})
	case process.EventDetached:
		w.emit(NoteJobDetached, e.Detached)
	case process.EventFinished:
		w.emit(NoteJobFinished, e.Job)
		if e.Job.Kind == process.KindBuild {
			w.finishBuild(e.Job)
		}
	}
}

func (w *Workspace) finishBuild(info process.Info) {
	pb, ok := w.builds[info.Project]
	if !ok || pb.jobID != info.ID {
		return
	}
	delete(w.builds, info.Project)

	job, err := w.orch.Get(info.ID)
	if err != nil {
		return
	}
	res, ok := job.Result()
	if !ok {
		return
	}
	r := w.pipeline.Interpret(pb.proj, res)
	w.emit(NoteBuildFinished, buildFinished(r))
	if r.Err != nil {
		w.notice(r.Err)
	}
}

// Snapshot is the full display state of the session.
type Snapshot struct {
	Project *project.Project `json:"project,omitempty"`
	Tree    []tree.Entry     `json:"tree,omitempty"`
	Tabs    []tabs.Snapshot  `json:"tabs,omitempty"`
	Jobs    []process.Info   `json:"jobs"`
	Builds  []string         `json:"builds,omitempty"` // projects being built
}

// State returns the current display state. Unlike the other commands it
// never emits a notice.
func (w *Workspace) State(ctx context.Context) (Snapshot, error) {
	v, err := w.Do(ctx, func() (any, error) {
		s := Snapshot{Jobs: w.orch.List()}
		for id := range w.builds {
			s.Builds = append(s.Builds, id)
		}
		if w.current == nil {
			return s, nil
		}
		p := w.current.proj
		s.Project = &p
		s.Tabs = w.current.tabs.Snapshots()
		entries, err := w.current.tree.Walk(treeDepth)
		if err != nil {
			return s, err
		}
		s.Tree = entries
		return s, nil
	})
	s, _ := v.(Snapshot)
	return s, err
}
