package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent query runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(true)
			if err != nil {
				return err
			}
			defer s.Close()

			if !s.svc.HistoryEnabled() {
				pterm.Info.Println("History is disabled (storage.history_dsn is empty)")
				return nil
			}
			runs, err := s.svc.History(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				pterm.Info.Println("No runs recorded yet")
				return nil
			}

			data := pterm.TableData{{"When", "Brand", "File", "User", "Outcome", "Rows", "Duration"}}
			for _, r := range runs {
				data = append(data, []string{
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					r.Brand,
					r.File,
					r.Username,
					r.Outcome,
					strconv.Itoa(r.Rows),
					(time.Duration(r.DurationMs) * time.Millisecond).String(),
				})
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, table)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print runs as JSON")
	return cmd
}
