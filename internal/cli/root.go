// Package cli implements the simplic command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"simplic/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set from main via ldflags.
var Version = "dev"

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	logLevel   string
	quiet      bool
	noColor    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "simplic",
		Short: "Lightweight local development shell",
		Long: `simplic manages small projects under a projects folder.

Use "simplic serve" to start the editor back end, or drive a project
directly from the terminal:
  simplic project new demo --type PyToExe
  simplic run demo
  simplic build demo`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default simplic.hcl)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log_level from the config")
	cmd.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newServeCmd(opts),
		newProjectCmd(opts),
		newRunCmd(opts),
		newDebugCmd(opts),
		newBuildCmd(opts),
		newTreeCmd(opts),
	)
	return cmd
}

// Execute runs the root command and exits nonzero on error. A failed run
// exits with the child's status.
func Execute() {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err == nil {
		logging.Sync()
		return
	}

	logging.L().Debug("command failed", zap.Error(err))
	logging.Sync()
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.code)
	}
	printError(cmd.ErrOrStderr(), err)
	os.Exit(1)
}

// printError prints an error message to w.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
}
