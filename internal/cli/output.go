package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// outputFormat is set by the root command's -o flag.
// Supported values: "table" (default), "json", "yaml".
var outputFormat string

// printTable writes rows under headers in aligned columns.
func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	writeRow := func(cols []string) {
		for i, col := range cols {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, col)
		}
		fmt.Fprintln(w)
	}
	writeRow(headers)
	for _, row := range rows {
		writeRow(row)
	}
	w.Flush()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

// printOutput writes v as JSON or YAML, or as a table built from rows when
// the format is "table".
func printOutput(v interface{}, headers []string, rows [][]string) error {
	switch outputFormat {
	case "json":
		if err := printJSON(v); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
	case "yaml":
		if err := printYAML(v); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
	case "", "table":
		printTable(headers, rows)
	default:
		return fmt.Errorf("unknown output format %q (table|json|yaml)", outputFormat)
	}
	return nil
}

// formatAge returns a human-readable duration string relative to the given
// time, such as "5s", "3m", "2h", "4d". Returns "<unknown>" for zero times.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "<unknown>"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
