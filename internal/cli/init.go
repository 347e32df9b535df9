package cli

import (
	"fmt"
	"path/filepath"

	"sqlrunner/internal/config"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a .sqlrunner/ workspace with a config template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			abs, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			if err := config.InitWorkspace(abs); err != nil {
				return err
			}

			ws := filepath.Join(abs, config.WorkspaceDirName)
			fmt.Fprintln(cmd.OutOrStdout(), pterm.DefaultBox.
				WithTitle(pterm.NewStyle(pterm.FgGreen, pterm.Bold).Sprint("Workspace created")).
				WithPadding(1).
				Sprintf("Config: %s\nSQL library: %s\n\nSet superset.base_url, then add an account:\n  sqlrunner creds add <username>",
					filepath.Join(ws, config.WorkspaceConfigFile), filepath.Join(ws, "sql")))
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sqlrunner version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sqlrunner %s\n", Version)
		},
	}
}
