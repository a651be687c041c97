// Package ui renders dev session status lines: an interactive bubbletea
// view with a spinner and key forwarding for terminals, and a slog-backed
// renderer for everything else.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF7A59")).
			Bold(true).
			MarginBottom(1)

	lineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#33475B", Dark: "#EAF0F6"})

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F5C26B"))

	logStyle = lipgloss.NewStyle().Faint(true)

	helpStyle = lipgloss.NewStyle().
			Faint(true).
			MarginTop(1)
)

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
