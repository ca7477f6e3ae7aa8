package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/rowstore/internal/store"
	"github.com/alfredjeanlab/rowstore/internal/ui"
)

const maxCellWidth = 40

// visibleColumns returns the fields shown in tables: the column model's
// visible columns when the server sent one, otherwise every field.
func visibleColumns(s *store.Store) []string {
	if cols := s.Columns(); len(cols) > 0 {
		var names []string
		for _, c := range cols {
			if !c.Hidden {
				names = append(names, c.DataIndex)
			}
		}
		if len(names) > 0 {
			return names
		}
	}
	return s.Fields().Names()
}

// recordJSON maps field names to typed values.
func recordJSON(s *store.Store, r *store.Record) map[string]any {
	out := make(map[string]any)
	for _, name := range s.Fields().Names() {
		out[name] = r.Get(name)
	}
	return out
}

func printRecordsJSON(w io.Writer, s *store.Store, records []*store.Record) error {
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, recordJSON(s, r))
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printRecordsTable(w io.Writer, s *store.Store, records []*store.Record) error {
	cols := visibleColumns(s)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	color := ui.ShouldUseColor(w)
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = strings.ToUpper(c)
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	cells := make([]string, len(cols))
	for _, r := range records {
		for i, c := range cols {
			cells[i] = truncate(r.DisplayValue(c), maxCellWidth)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, ui.Muted.Render(fmt.Sprintf("\n%d rows (%d total)", len(records), s.RowCount()), color))
	return err
}

func printRecords(w io.Writer, s *store.Store, records []*store.Record) error {
	if jsonOutput {
		return printRecordsJSON(w, s, records)
	}
	return printRecordsTable(w, s, records)
}

// printRecord shows one record as "field: value" lines.
func printRecord(w io.Writer, s *store.Store, r *store.Record) error {
	if jsonOutput {
		return printRecordsJSON(w, s, []*store.Record{r})
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range s.Fields().Names() {
		fmt.Fprintf(tw, "%s:\t%s\n", name, r.DisplayValue(name))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// parseAssignments reads name=value pairs. An empty value clears the field.
func parseAssignments(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q, want name=value", p)
		}
		if value == "" {
			values[name] = nil
		} else {
			values[name] = value
		}
	}
	return values, nil
}
