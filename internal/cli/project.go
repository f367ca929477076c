package cli

import (
	"fmt"
	"text/tabwriter"

	"simplic/internal/project"

	"github.com/spf13/cobra"
)

func newProjectCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "List and create projects",
	}
	cmd.AddCommand(newProjectListCmd(opts), newProjectNewCmd(opts))
	return cmd
}

func newProjectListCmd(opts *rootOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects, optionally filtered by name",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, false)
			if err != nil {
				return err
			}
			stop := a.start(cmd.Context())
			defer stop()

			projects, err := a.ws.ListProjects(cmd.Context(), query)
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				a.print.info("No projects found in %s", a.registry.Root())
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tPATH")
			for _, p := range projects {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Type, p.Root)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Case-insensitive name filter")
	return cmd
}

func newProjectNewCmd(opts *rootOptions) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "new [NAME]",
		Short: "Create a project with a starter entry file",
		Long: `Create a project folder under the projects root containing main.py
and the project type marker. Missing arguments are prompted for.

Project types:
  PyToExe   Python → Executable (.exe)
  PyToApk   Python → APK (coming soon)
  KoToApk   Kotlin → APK (coming soon)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, false)
			if err != nil {
				return err
			}

			var name string
			if len(args) == 1 {
				name = args[0]
			} else if name, err = promptProjectName(); err != nil {
				return err
			}

			var typ project.Type
			if typeName != "" {
				if typ, err = project.ParseType(typeName); err != nil {
					return err
				}
			} else if typ, err = promptProjectType(); err != nil {
				return err
			}

			stop := a.start(cmd.Context())
			defer stop()

			opened, err := a.ws.CreateProject(cmd.Context(), name, typ)
			if err != nil {
				return err
			}
			a.print.success("Created %s project %q at %s", opened.Project.Type, opened.Project.ID, opened.Project.Root)
			if !a.pipeline.Supported(typ) {
				a.print.warning("Building %s projects is not implemented yet", typ)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&typeName, "type", "t", "", "Project type (PyToExe, PyToApk, KoToApk)")
	return cmd
}
