package cli

import (
	"fmt"
	"io"
	"strings"

	"simplic/internal/tree"

	"github.com/spf13/cobra"
)

func newTreeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Inspect and change a project's files",
	}
	cmd.AddCommand(newTreeListCmd(opts), newTreeRemoveCmd(opts), newTreeMoveCmd(opts))
	return cmd
}

func newTreeListCmd(opts *rootOptions) *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:     "ls PROJECT [PATH]",
		Aliases: []string{"list"},
		Short:   "List a project directory",
		Long: `List the files of a project. Without PATH the tree is walked from the
project root down to --depth levels; with PATH a single directory is listed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, stop, err := openProject(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer stop()

			var entries []tree.Entry
			if len(args) == 2 {
				entries, err = a.ws.ListTree(ctx, args[1])
			} else {
				entries, err = a.ws.WalkTree(ctx, depth)
			}
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), a.print, entries, 0)
			return nil
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", 3, "Levels to descend when listing the whole tree")
	return cmd
}

func newTreeRemoveCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "rm PROJECT PATH",
		Aliases: []string{"delete"},
		Short:   "Delete a file or directory",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(fmt.Sprintf("Delete %s from %s?", args[1], args[0]))
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			a, ctx, stop, err := openProject(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer stop()

			if err := a.ws.DeletePath(ctx, args[1]); err != nil {
				return err
			}
			a.print.success("Deleted %s", args[1])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newTreeMoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "mv PROJECT PATH NEW_NAME",
		Aliases: []string{"rename"},
		Short:   "Rename a file or directory in place",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, stop, err := openProject(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer stop()

			path, err := a.ws.RenamePath(ctx, args[1], args[2])
			if err != nil {
				return err
			}
			a.print.success("Renamed %s to %s", args[1], path)
			return nil
		},
	}
}

// printEntries writes entries as an indented listing, directories first.
func printEntries(w io.Writer, p printer, entries []tree.Entry, level int) {
	indent := strings.Repeat("  ", level)
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(w, "%s%s/\n", indent, e.Name)
			printEntries(w, p, e.Children, level+1)
			continue
		}
		fmt.Fprintf(w, "%s%s %s\n", indent, e.Name, p.dim(fmt.Sprintf("(%d B)", e.Size)))
	}
}
