package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newCredsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "creds",
		Aliases: []string{"credentials"},
		Short:   "Manage stored Superset accounts",
	}
	cmd.AddCommand(
		newCredsAddCommand(opts),
		newCredsListCommand(opts),
		newCredsUseCommand(opts),
		newCredsRemoveCommand(opts),
	)
	return cmd
}

func newCredsAddCommand(opts *globalOptions) *cobra.Command {
	var (
		activate      bool
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Store an account; the password goes to the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			var err error
			if passwordStdin {
				password, err = readPasswordLine(cmd.InOrStdin())
			} else {
				password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password for " + args[0])
			}
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.svc.AddCredential(args[0], password, activate); err != nil {
				return err
			}
			pterm.Success.Printfln("Saved credential %s", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&activate, "activate", false, "Make this the active account")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	return cmd
}

func newCredsListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			list, err := s.svc.Credentials()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				pterm.Info.Println("No credentials stored. Add one with: sqlrunner creds add <username>")
				return nil
			}
			data := pterm.TableData{{"Username", "Active"}}
			for _, c := range list {
				mark := ""
				if c.Active {
					mark = "*"
				}
				data = append(data, []string{c.Username, mark})
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newCredsUseCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use <username>",
		Short: "Make an account the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.svc.ActivateCredential(args[0]); err != nil {
				return err
			}
			pterm.Success.Printfln("Active credential: %s", args[0])
			return nil
		},
	}
}

func newCredsRemoveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <username>",
		Aliases: []string{"rm"},
		Short:   "Delete an account and its stored password",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.svc.RemoveCredential(args[0]); err != nil {
				return err
			}
			pterm.Success.Printfln("Removed credential %s", args[0])
			return nil
		},
	}
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
