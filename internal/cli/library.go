package cli

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newBrandsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "brands",
		Short: "List brands in the SQL library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			brands, err := s.svc.Brands()
			if err != nil {
				return err
			}
			if len(brands) == 0 {
				pterm.Info.Printfln("No brands under %s", s.cfg.Storage.SQLDir)
				return nil
			}
			return printList(cmd, brands)
		},
	}
}

func newFilesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "files <brand>",
		Short: "List the SQL files of a brand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			files, err := s.svc.Files(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				pterm.Info.Printfln("No .sql files for %s", args[0])
				return nil
			}
			return printList(cmd, files)
		},
	}
}

func newShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <brand> <file.sql>",
		Short: "Print a library file and its placeholders",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			content, err := s.svc.Content(args[0], args[1])
			if err != nil {
				return err
			}
			names, err := s.svc.Placeholders(args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, content)
			if len(names) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, pterm.Bold.Sprint("Placeholders:"))
				items := make([]pterm.BulletListItem, 0, len(names))
				for _, n := range names {
					items = append(items, pterm.BulletListItem{Level: 0, Text: n})
				}
				rendered, err := pterm.DefaultBulletList.WithItems(items).Srender()
				if err != nil {
					return err
				}
				fmt.Fprint(out, rendered)
			}
			return nil
		},
	}
}

func printList(cmd *cobra.Command, names []string) error {
	items := make([]pterm.BulletListItem, 0, len(names))
	for _, n := range names {
		items = append(items, pterm.BulletListItem{Level: 0, Text: n})
	}
	rendered, err := pterm.DefaultBulletList.WithItems(items).Srender()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}
