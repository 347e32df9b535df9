package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"sqlrunner/internal/engine"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// errRunFailed is returned after a failure has been rendered, so main exits
// non-zero without printing it twice.
var errRunFailed = errors.New("query failed")

func newRunCommand(opts *globalOptions) *cobra.Command {
	var (
		sqlText string
		sqlFile string
		sets    []string
		csvPath string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "run <brand> [file.sql]",
		Short: "Run a library file or ad-hoc SQL through SQL Lab",
		Long: `Run a SQL statement through Superset SQL Lab.

With a library file, {{placeholders}} are filled from --set key=value flags.
Without one, pass the statement with --sql or --sql-file (- reads stdin).`,
		Example: `  sqlrunner run acme daily_orders.sql --set day=2024-01-02
  sqlrunner run acme --sql "SELECT count(*) FROM orders" --csv out.csv`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			brand := args[0]
			file := ""
			if len(args) == 2 {
				file = args[1]
			}

			adhoc, err := adhocSQL(cmd.InOrStdin(), sqlText, sqlFile)
			if err != nil {
				return err
			}
			if file == "" && adhoc == "" {
				return errors.New("pass a library file or --sql/--sql-file")
			}
			if file != "" && adhoc != "" {
				return errors.New("pass either a library file or --sql/--sql-file, not both")
			}
			values, err := parseSetFlags(sets)
			if err != nil {
				return err
			}

			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			var spinner *pterm.SpinnerPrinter
			if !jsonOut {
				spinner, _ = pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Running query in SQL Lab")
			}

			var res engine.Result
			if file != "" {
				var unresolved []string
				res, unresolved, err = s.svc.RunTemplate(cmd.Context(), brand, file, values)
				if err == nil && len(unresolved) > 0 && !jsonOut {
					pterm.Warning.Printfln("No value for: %v (markers stripped before running)", unresolved)
				}
			} else {
				res = s.svc.RunQuery(cmd.Context(), brand, "", adhoc)
			}
			if spinner != nil {
				_ = spinner.Stop()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res.Payload()); err != nil {
					return err
				}
			} else if err := renderResult(out, res); err != nil {
				return err
			}

			if res.Failure != nil {
				return errRunFailed
			}
			if csvPath != "" {
				if err := writeCSVFile(csvPath, res.Success); err != nil {
					return err
				}
				if !jsonOut {
					pterm.Success.Printfln("Wrote %d row(s) to %s", res.RowCount(), csvPath)
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&sqlText, "sql", "", "SQL statement to run")
	f.StringVar(&sqlFile, "sql-file", "", "Read the SQL statement from a file (- for stdin)")
	f.StringArrayVar(&sets, "set", nil, "Placeholder value as key=value (repeatable)")
	f.StringVar(&csvPath, "csv", "", "Export result rows to this CSV file")
	f.BoolVar(&jsonOut, "json", false, "Print the raw result payload as JSON")
	return cmd
}

func adhocSQL(stdin io.Reader, text, path string) (string, error) {
	if text != "" && path != "" {
		return "", errors.New("--sql and --sql-file are mutually exclusive")
	}
	if path == "" {
		return text, nil
	}
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read sql: %w", err)
	}
	return string(raw), nil
}
