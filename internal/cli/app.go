package cli

import (
	"context"
	"fmt"

	"simplic/internal/build"
	"simplic/internal/config"
	"simplic/internal/logging"
	"simplic/internal/process"
	"simplic/internal/project"
	"simplic/internal/workspace"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the wired set of components behind every command.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *project.Registry
	orch     *process.Orchestrator
	pipeline *build.Pipeline
	ws       *workspace.Workspace
	print    printer
}

// loadApp reads the config and wires the components. It does not start the
// workspace loop.
func loadApp(cmd *cobra.Command, opts *rootOptions, watch bool) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	missing := cfg.ResolveTools()
	grace, err := cfg.Grace()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logging.SetGlobal(log)
	for _, tool := range missing {
		log.Warn("tool not found; commands that need it will fail", zap.String("tool", tool))
	}

	reg, err := project.NewRegistry(cfg.ProjectsRoot, log.Named("project"))
	if err != nil {
		return nil, err
	}
	if err := reg.Ensure(); err != nil {
		return nil, err
	}

	orch := process.New(process.Options{
		Interpreter:    cfg.Tools.Interpreter,
		DebuggerModule: cfg.Tools.DebuggerModule,
		Policy:         process.Policy(cfg.Jobs.RunPolicy),
		HistoryChunks:  cfg.Jobs.HistoryChunks,
		GracePeriod:    grace,
		KeepFinished:   cfg.Jobs.KeepFinished,
		Logger:         log.Named("process"),
	})
	pipeline := build.New(orch, build.Options{
		Packager: cfg.Tools.Packager,
		Logger:   log.Named("build"),
	})
	ws := workspace.New(workspace.Options{
		Registry:        reg,
		Orchestrator:    orch,
		Pipeline:        pipeline,
		Watch:           watch && cfg.WatchEnabled(),
		ShutdownTimeout: grace + grace,
		Logger:          log.Named("workspace"),
	})

	return &app{
		cfg:      cfg,
		log:      log,
		registry: reg,
		orch:     orch,
		pipeline: pipeline,
		ws:       ws,
		print: printer{
			out:     cmd.OutOrStdout(),
			errOut:  cmd.ErrOrStderr(),
			quiet:   opts.quiet,
			noColor: opts.noColor,
		},
	}, nil
}

// start runs the workspace loop until ctx is done. The returned function
// stops the loop and waits for running jobs to be cancelled.
func (a *app) start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.ws.Run(ctx); err != nil {
			a.log.Error("workspace loop failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
		logging.Sync()
	}
}
