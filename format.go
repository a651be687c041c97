package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// Size units, largest first.
var sizeUnits = []struct {
	bytes int64
	name  string
}{
	{1 << 40, "TB"},
	{1 << 30, "GB"},
	{1 << 20, "MB"},
	{1 << 10, "KB"},
}

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	for _, u := range sizeUnits {
		if bytes >= u.bytes {
			return fmt.Sprintf("%.1f %s", float64(bytes)/float64(u.bytes), u.name)
		}
	}

	return fmt.Sprintf("%d B", bytes)
}

// formatBuildState renders a HubSpot build or deploy status for tables:
// lowercase, with "-" when the step never reported one.
func formatBuildState(status string) string {
	if status == "" {
		return "-"
	}

	return strings.ToLower(strings.ReplaceAll(status, "_", " "))
}

// formatBuildResult summarizes how a recorded build ended.
func formatBuildResult(b buildOutput) string {
	switch {
	case b.Deployed && b.Reprovisioned:
		return "deployed, restaged"
	case b.Deployed:
		return "deployed"
	case b.Error != "":
		return "failed: " + b.Error
	default:
		return "not deployed"
	}
}

// formatFinished renders a build's finish time in local time.
func formatFinished(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format(time.DateTime)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	// Compute column widths.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Print header.
	printRow(w, headers, widths)

	// Print rows.
	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
