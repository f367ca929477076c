// Package build turns a project into a distributable artifact by invoking the
// packaging tool registered for its type.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"simplic/internal/errs"
	"simplic/internal/metrics"
	"simplic/internal/process"
	"simplic/internal/project"

	"go.uber.org/zap"
)

// Result is the interpreted outcome of one build.
type Result struct {
	Project   string        `json:"project"`
	Type      project.Type  `json:"type"`
	JobID     string        `json:"jobId,omitempty"`
	Success   bool          `json:"success"`
	ExitCode  int           `json:"exitCode"`
	Output    []byte        `json:"output,omitempty"`
	OutputDir string        `json:"outputDir,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Strategy prepares the packager command for one project type. Prepare may
// create directories; it must not touch the project when it returns an error
// from validation.
type Strategy interface {
	Prepare(packager string, p project.Project) ([]string, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(packager string, p project.Project) ([]string, error)

// Prepare calls f.
func (f StrategyFunc) Prepare(packager string, p project.Project) ([]string, error) {
	return f(packager, p)
}

// Options configures a Pipeline.
type Options struct {
	Packager string
	Logger   *zap.Logger
}

// Pipeline dispatches builds by project type.
type Pipeline struct {
	orch       *process.Orchestrator
	packager   string
	strategies map[project.Type]Strategy
	log        *zap.Logger
}

// New creates a pipeline with the PyToExe strategy registered.
func New(orch *process.Orchestrator, opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{
		orch:       orch,
		packager:   opts.Packager,
		strategies: make(map[project.Type]Strategy),
		log:        log,
	}
	p.Register(project.PyToExe, StrategyFunc(pyToExe))
	return p
}

// Register sets the strategy for t.
func (p *Pipeline) Register(t project.Type, s Strategy) {
	p.strategies[t] = s
}

// Supported reports whether t has a registered strategy.
func (p *Pipeline) Supported(t project.Type) bool {
	_, ok := p.strategies[t]
	return ok
}

// Start validates the project and launches the packager without waiting.
func (p *Pipeline) Start(ctx context.Context, proj project.Project) (*process.Job, error) {
	s, ok := p.strategies[proj.Type]
	if !ok {
		return nil, errs.New(errs.NotImplemented, "build", proj.ID,
			fmt.Sprintf("build for %s is not implemented", proj.Type))
	}

	args, err := s.Prepare(p.packager, proj)
	if err != nil {
		p.log.Warn("build rejected", zap.String("project", proj.ID), zap.Error(err))
		return nil, err
	}

	p.log.Info("build started", zap.String("project", proj.ID), zap.Strings("args", args))
	return p.orch.SpawnBuild(ctx, proj.ID, args, proj.Root)
}

// Build runs the packager and blocks until it exits or ctx is done. The
// returned error is the same as Result.Err.
func (p *Pipeline) Build(ctx context.Context, proj project.Project) (Result, error) {
	job, err := p.Start(ctx, proj)
	if err != nil {
		return p.reject(proj, job, err), err
	}
	res, err := job.Wait(ctx)
	if err != nil {
		job.Cancel()
		<-job.Done()
		res, _ = job.Result()
	}
	out := p.Interpret(proj, res)
	return out, out.Err
}

func (p *Pipeline) reject(proj project.Project, job *process.Job, err error) Result {
	r := Result{Project: proj.ID, Type: proj.Type, ExitCode: -1, Err: err}
	if job != nil {
		r.JobID = job.ID()
	}
	return r
}

// Interpret maps a finished build job to a Result. Exit code 0 is success; a
// nonzero exit is a BuildFailure carrying the combined packager output.
func (p *Pipeline) Interpret(proj project.Project, res process.Result) Result {
	r := Result{
		Project:   proj.ID,
		Type:      proj.Type,
		JobID:     res.JobID,
		ExitCode:  res.ExitCode,
		Output:    res.Output,
		OutputDir: proj.OutputsPath(),
		Duration:  res.Duration,
	}
	metrics.ObserveBuild(res.Duration)

	switch {
	case res.Err != nil:
		r.Err = res.Err
	case res.Success():
		r.Success = true
		arts, err := artifacts(r.OutputDir)
		if err != nil {
			p.log.Warn("listing artifacts failed", zap.String("project", proj.ID), zap.Error(err))
		}
		r.Artifacts = arts
	default:
		r.Err = &errs.Error{
			Kind:   errs.BuildFailure,
			Op:     "build",
			Path:   proj.ID,
			Msg:    fmt.Sprintf("packager exited with status %d", res.ExitCode),
			Output: res.Output,
		}
	}

	if r.Success {
		p.log.Info("build succeeded",
			zap.String("project", proj.ID),
			zap.Duration("duration", r.Duration),
			zap.Int("artifacts", len(r.Artifacts)))
	} else {
		p.log.Warn("build failed",
			zap.String("project", proj.ID),
			zap.Int("exit_code", r.ExitCode),
			zap.Error(r.Err))
	}
	return r
}

// pyToExe checks the packager and entry file, makes sure outputs/ and build/
// exist and returns
//
//	<packager> <entry> --distpath <outputs> --workpath <build> --specpath <build> --noconfirm
func pyToExe(packager string, p project.Project) ([]string, error) {
	tool, err := ResolveTool(packager)
	if err != nil {
		return nil, err
	}

	entry := p.EntryPath()
	if info, err := os.Stat(entry); err != nil || info.IsDir() {
		return nil, errs.New(errs.EntryMissing, "build", entry,
			fmt.Sprintf("project has no %s", project.EntryFile))
	}

	outputs, work := p.OutputsPath(), p.BuildPath()
	for _, dir := range []string{outputs, work} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errs.Wrap(errs.IOError, "build", dir, err)
		}
	}

	return []string{
		tool, entry,
		"--distpath", outputs,
		"--workpath", work,
		"--specpath", work,
		"--noconfirm",
	}, nil
}

// ResolveTool returns the path of the packaging tool. A name with a path
// separator must exist as a file; a bare name is looked up in PATH.
func ResolveTool(tool string) (string, error) {
	if tool == "" {
		return "", errs.New(errs.ToolNotFound, "build", "", "no packager configured")
	}
	if filepath.Base(tool) != tool {
		info, err := os.Stat(tool)
		if err != nil || info.IsDir() {
			return "", errs.New(errs.ToolNotFound, "build", tool, "packager not found")
		}
		return tool, nil
	}
	path, err := exec.LookPath(tool)
	if err != nil {
		return "", errs.Wrap(errs.ToolNotFound, "build", tool, err)
	}
	return path, nil
}

// artifacts lists the files under dir as slash paths relative to dir.
func artifacts(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(out)
	return out, err
}
