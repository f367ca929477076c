package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"simplic/internal/errs"
	"simplic/internal/process"
	"simplic/internal/workspace"

	"github.com/spf13/cobra"
)

// exitError reports a child's nonzero exit status.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("process exited with status %d", e.code)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run PROJECT",
		Short: "Run the project's entry file and stream its output",
		Long: `Run main.py with the configured interpreter in the project folder.
Output is streamed until the process exits; Ctrl-C stops it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, stop, err := openProject(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer stop()

			info, err := a.ws.RunProject(ctx)
			if err != nil {
				return err
			}
			res, err := follow(ctx, a, info.ID, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if res.Err != nil {
				return res.Err
			}
			if !res.Success() {
				return &exitError{code: res.ExitCode}
			}
			return nil
		},
	}
}

func newDebugCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "debug PROJECT",
		Short: "Start a detached debugger on the project's entry file",
		Long: `Start the configured debugger module on main.py. The debugger shares this
terminal and is not tracked: simplic returns as soon as it has started.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, stop, err := openProject(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer stop()

			d, err := a.ws.DebugProject(ctx)
			if err != nil {
				return err
			}
			a.print.success("Debugger started for %s (pid %d)", d.Project, d.PID)
			return nil
		},
	}
}

func newBuildCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build PROJECT",
		Short: "Package the project with the configured packager",
		Long: `Build the project according to its type. PyToExe projects are packaged into
the outputs/ folder; other types are not implemented yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, stop, err := openProject(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer stop()

			finished := make(chan workspace.BuildFinished, 1)
			unsubscribe := a.ws.Subscribe(func(n workspace.Notification) {
				if n.Type != workspace.NoteBuildFinished {
					return
				}
				select {
				case finished <- n.Payload.(workspace.BuildFinished):
				default:
				}
			})
			defer unsubscribe()

			info, err := a.ws.StartBuild(ctx)
			if err != nil {
				return err
			}
			a.print.info("Building %s %s", info.Project, a.print.dim(fmt.Sprint(info.Args)))

			// Packager output goes to stderr so stdout carries only the result.
			if _, err := follow(ctx, a, info.ID, cmd.ErrOrStderr(), cmd.ErrOrStderr()); err != nil {
				return err
			}

			var res workspace.BuildFinished
			select {
			case res = <-finished:
			case <-ctx.Done():
				return errs.Wrap(errs.Canceled, "build", info.Project, ctx.Err())
			}
			if !res.Success {
				return fmt.Errorf("build failed: %s", res.Error)
			}

			a.print.success("Built %s in %s", res.Project, res.Duration.Round(1e6))
			for _, art := range res.Artifacts {
				a.print.info("  %s", art)
			}
			return nil
		},
	}
}

// openProject loads the app, starts the workspace bound to Ctrl-C and opens
// the named project.
func openProject(cmd *cobra.Command, opts *rootOptions, name string) (*app, context.Context, func(), error) {
	a, err := loadApp(cmd, opts, false)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	stopLoop := a.start(ctx)
	stop := func() {
		stopLoop()
		stopSignals()
	}

	if _, err := a.ws.OpenProject(ctx, name); err != nil {
		stop()
		return nil, nil, nil, err
	}
	return a, ctx, stop, nil
}

// follow copies a job's output to stdout and stderr until it finishes, then
// returns its result. When ctx is cancelled the job is cancelled with it.
func follow(ctx context.Context, a *app, jobID string, stdout, stderr io.Writer) (process.Result, error) {
	job, err := a.ws.Job(jobID)
	if err != nil {
		return process.Result{}, err
	}

	for c := range job.Stream(ctx) {
		w := stdout
		if c.Stream == process.Stderr {
			w = stderr
		}
		w.Write(c.Data)
	}

	select {
	case <-job.Done():
	case <-ctx.Done():
		job.Cancel()
		<-job.Done()
	}
	res, _ := job.Result()
	return res, nil
}
