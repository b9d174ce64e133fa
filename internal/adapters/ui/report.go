package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// Output formats of the CLI.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (text, json, yaml)", s)
}

// Encode writes v as JSON or YAML.
func Encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("format %q is not a data format", format)
}

// RenderReport prints one block per declaration and a summary table.
func RenderReport(u core.UI, r *core.Report) error {
	for _, it := range r.Items {
		renderItem(u, it)
	}
	u.Println("")

	s := r.Summary()
	title := fmt.Sprintf("Summary (tx %s)", r.TxID)
	if r.DryRun {
		title += " [test]"
	}
	u.Section(title)
	return u.Table([][]string{
		{"Succeeded", "Changed", "Failed", "Skipped", "Total", "Duration"},
		{
			pterm.Green(s.Succeeded),
			pterm.Yellow(s.Changed),
			failedCount(s.Failed),
			fmt.Sprint(s.Skipped),
			fmt.Sprint(s.Total),
			fmt.Sprintf("%.1f ms", r.Duration),
		},
	})
}

func failedCount(n int) string {
	if n > 0 {
		return pterm.Red(n)
	}
	return fmt.Sprint(n)
}

func renderItem(u core.UI, it core.ItemReport) {
	var result string
	switch {
	case !it.Result:
		result = pterm.Red("False")
	case it.Changed:
		result = pterm.Yellow("True")
	default:
		result = pterm.Green("True")
	}

	u.Println("----------")
	u.Printf("%12s: %s\n", "ID", it.ID)
	u.Printf("%12s: %s\n", "Function", it.Function)
	u.Printf("%12s: %s\n", "Name", it.Name)
	u.Printf("%12s: %s\n", "Result", result)
	u.Printf("%12s: %s\n", "Comment", indent(it.Comment, 14))
	u.Printf("%12s: %.3f ms\n", "Duration", it.Duration)

	u.Printf("%12s:\n", "Changes")
	keys := make([]string, 0, len(it.Changes))
	for k := range it.Changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := it.Changes[k]
		u.Printf("%14s%s:\n", "", k)
		u.Printf("%18s%s: %v\n", "", "old", changeValue(c.Old))
		u.Printf("%18s%s: %v\n", "", "new", changeValue(c.New))
	}
}

func changeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(val, ", ")
	}
	return v
}

// indent continues multi-line comments under the value column.
func indent(s string, n int) string {
	return strings.ReplaceAll(s, "\n", "\n"+strings.Repeat(" ", n))
}

// RenderDrift prints the read-only audit as a table.
func RenderDrift(u core.UI, results []core.DriftResult) error {
	rows := [][]string{{"ID", "FUNCTION", "NAME", "STATUS", "DETAIL"}}
	for _, r := range results {
		status := string(r.Status)
		switch r.Status {
		case core.StatusSynced:
			status = pterm.Green(status)
		case core.StatusDrifted:
			status = pterm.Yellow(status)
		case core.StatusError:
			status = pterm.Red(status)
		}
		rows = append(rows, []string{r.ID, r.Function, r.Name, status, firstLine(r.Detail)})
	}
	return u.Table(rows)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
