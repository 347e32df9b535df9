package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"sqlrunner/internal/engine"

	"github.com/pterm/pterm"
)

// maxTableRows caps rows rendered in the terminal; CSV export always has all rows.
const maxTableRows = 200

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case json.Number:
		return val.String()
	case map[string]interface{}, []interface{}:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// tableData lays a success result out as header plus up to limit rows.
func tableData(s *engine.Success, limit int) pterm.TableData {
	cols := s.ColumnNames()
	data := pterm.TableData{cols}
	for i, row := range s.Rows {
		if limit > 0 && i >= limit {
			break
		}
		line := make([]string, len(cols))
		for j, c := range cols {
			line[j] = formatCell(row[c])
		}
		data = append(data, line)
	}
	return data
}

// writeCSV writes the header and every row of s.
func writeCSV(w io.Writer, s *engine.Success) error {
	cols := s.ColumnNames()
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	for _, row := range s.Rows {
		line := make([]string, len(cols))
		for j, c := range cols {
			v := row[c]
			if v == nil {
				line[j] = ""
				continue
			}
			line[j] = formatCell(v)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeCSVFile(path string, s *engine.Success) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := writeCSV(f, s); err != nil {
		_ = f.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}

// renderResult prints a run as a titled table or a failure box.
func renderResult(w io.Writer, res engine.Result) error {
	elapsed := res.Duration.Round(10 * time.Millisecond)

	if res.Failure != nil {
		f := res.Failure
		title := pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(f.Title())
		details := f.Text()
		if f.Kind == engine.RemotePermissionDenied && len(f.RawBody) > 0 {
			details += "\n\n" + string(f.RawBody)
		}
		details += fmt.Sprintf("\n\nRun: %s  Duration: %s", res.RunID, elapsed)
		fmt.Fprintln(w, pterm.DefaultBox.WithTitle(title).WithPadding(1).Sprint(details))
		return nil
	}

	s := res.Success
	heading := pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint(s.Title)
	fmt.Fprintf(w, "%s  %d row(s) in %s\n", heading, len(s.Rows), elapsed)
	for _, warn := range s.Warnings {
		fmt.Fprintln(w, pterm.Warning.Sprint(warn))
	}
	if len(s.Rows) == 0 {
		return nil
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(tableData(s, maxTableRows)).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)
	if len(s.Rows) > maxTableRows {
		fmt.Fprintf(w, "... %d more row(s); use --csv to export everything\n", len(s.Rows)-maxTableRows)
	}
	return nil
}

// parseSetFlags turns repeated key=value flags into template values.
func parseSetFlags(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", p)
		}
		values[k] = v
	}
	return values, nil
}
